package analyze

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/nevindra/recall"
)

// Recognizer patterns. Confidence reflects how often each pattern produces a
// memory worth keeping, on a 0.6..0.95 scale.
var (
	reProfile    = regexp.MustCompile(`(?i)\bmy ([a-z][a-z ]{1,30}?) is ([^.,;\n]{1,60})`)
	rePreference = regexp.MustCompile(`(?i)\bi (?:use|prefer|like|always use) ([a-zA-Z0-9][a-zA-Z0-9_/+-]{0,39})`)
	reDecision   = regexp.MustCompile(`(?i)\b(?:we|i|the team) decided (?:to|on|that) ([^.;\n]{3,120})`)
	reAssign     = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_.]{1,40})\s*=\s*([^\s,;]{1,80})`)
	reURL        = regexp.MustCompile(`https?://[^\s)>"']+`)
	reVersion    = regexp.MustCompile(`(?i)\b([a-z][a-z0-9_-]{1,20})\s+v?(\d+\.\d+(?:\.\d+)?)\b`)

	reFailFix = regexp.MustCompile(`(?i)([^.\n]{5,150}?(?:failed|crashed|broke|errored|timed out)[^.\n]{0,100})[.;]\s*([^.\n]{5,150}?(?:fixed|resolved|worked|recovered|solved)[^.\n]{0,100})`)
	reLesson  = regexp.MustCompile(`(?i)\b(?:lesson(?: learned)?|til):?\s+([^.\n]{5,200})`)
	reWarning = regexp.MustCompile(`(?i)\b(?:never|do not|don't)\s+([a-z][^.;\n]{4,120})`)
)

// heuristicAnalyze runs all recognizers over the user text. Output facts
// carry no project or source; the caller stamps those.
func heuristicAnalyze(text string) Candidates {
	var c Candidates

	for _, m := range reProfile.FindAllStringSubmatch(text, -1) {
		c.Facts = append(c.Facts, recall.Fact{
			Scope:      recall.ScopeUser,
			Category:   "profile",
			Key:        keyify(m[1]),
			Value:      strings.TrimSpace(m[2]),
			Confidence: 0.85,
		})
	}
	for _, m := range rePreference.FindAllStringSubmatch(text, -1) {
		v := strings.TrimSpace(m[1])
		c.Facts = append(c.Facts, recall.Fact{
			Scope:      recall.ScopeUser,
			Category:   "preference",
			Key:        keyify(v),
			Value:      v,
			Confidence: 0.8,
		})
	}
	for _, m := range reDecision.FindAllStringSubmatch(text, -1) {
		v := strings.TrimSpace(m[1])
		c.Facts = append(c.Facts, recall.Fact{
			Scope:      recall.ScopeProject,
			Category:   "decision",
			Key:        keyify(firstWords(v, 4)),
			Value:      v,
			Confidence: 0.85,
		})
	}
	for _, m := range reAssign.FindAllStringSubmatch(text, -1) {
		c.Facts = append(c.Facts, recall.Fact{
			Scope:      recall.ScopeProject,
			Category:   "setting",
			Key:        keyify(m[1]),
			Value:      m[2],
			Confidence: 0.75,
		})
	}
	for _, raw := range reURL.FindAllString(text, -1) {
		u, err := url.Parse(strings.TrimRight(raw, ".,"))
		if err != nil || u.Host == "" {
			continue
		}
		c.Facts = append(c.Facts, recall.Fact{
			Scope:      recall.ScopeProject,
			Category:   "reference",
			Key:        keyify(u.Host),
			Value:      u.String(),
			Confidence: 0.7,
		})
	}
	for _, m := range reVersion.FindAllStringSubmatch(text, -1) {
		c.Facts = append(c.Facts, recall.Fact{
			Scope:      recall.ScopeProject,
			Category:   "version",
			Key:        keyify(m[1]),
			Value:      m[2],
			Confidence: 0.7,
		})
	}

	for _, m := range reFailFix.FindAllStringSubmatch(text, -1) {
		situation := strings.TrimSpace(m[1])
		action := strings.TrimSpace(m[2])
		c.Episodes = append(c.Episodes, recall.Episode{
			Situation:  situation,
			Action:     action,
			Outcome:    "resolved",
			Lesson:     action,
			LessonType: recall.LessonProcedure,
			Confidence: 0.75,
			Quality:    0.6,
		})
	}
	for _, m := range reLesson.FindAllStringSubmatch(text, -1) {
		lesson := strings.TrimSpace(m[1])
		situation := sentenceBefore(text, m[0])
		if situation == "" {
			situation = lesson
		}
		c.Episodes = append(c.Episodes, recall.Episode{
			Situation:  situation,
			Action:     lesson,
			Outcome:    "stated explicitly",
			Lesson:     lesson,
			LessonType: recall.LessonPattern,
			Confidence: 0.85,
			Quality:    0.7,
		})
	}
	for _, m := range reWarning.FindAllStringSubmatch(text, -1) {
		advice := strings.TrimSpace(m[1])
		c.Episodes = append(c.Episodes, recall.Episode{
			Situation:  strings.TrimSpace(m[0]),
			Action:     "avoid " + advice,
			Outcome:    "stated explicitly",
			Lesson:     "never " + advice,
			LessonType: recall.LessonWarning,
			Confidence: 0.65,
			Quality:    0.6,
		})
	}
	return c
}

// keyify turns free text into a stable fact key: lowercased, alphanumeric
// runs joined by underscores, capped at 64 characters.
func keyify(s string) string {
	var b strings.Builder
	lastUnder := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnder = false
		default:
			if !lastUnder {
				b.WriteByte('_')
				lastUnder = true
			}
		}
	}
	key := strings.Trim(b.String(), "_")
	if len(key) > 64 {
		key = key[:64]
	}
	return key
}

func firstWords(s string, n int) string {
	fields := strings.Fields(s)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

// sentenceBefore returns the last sentence preceding the match, or "".
func sentenceBefore(text, match string) string {
	i := strings.Index(text, match)
	if i <= 0 {
		return ""
	}
	before := strings.TrimSpace(text[:i])
	if before == "" {
		return ""
	}
	if j := strings.LastIndexAny(before[:len(before)-1], ".!?\n"); j >= 0 {
		before = before[j+1:]
	}
	return strings.Trim(strings.TrimSpace(before), ".!?")
}
