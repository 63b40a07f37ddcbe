// Package analyze turns dialog turns into candidate memories. The analyzer
// is a pure function over its input: it proposes facts and episodes with
// confidences but never writes to any store. Commit decisions belong to the
// caller.
//
// Two modes are supported. Heuristic mode runs pattern recognizers over the
// user's text and needs no model. Model mode sends the turn to a completion
// provider with a strict JSON contract and falls back to the heuristics when
// the response does not parse.
package analyze

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/nevindra/recall"
)

// Turn is one user/assistant exchange.
type Turn = recall.DialogTurn

// Candidates is the analyzer's proposal for one turn, already filtered by
// the confidence gates.
type Candidates = recall.Extraction

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithProvider enables model-assisted extraction. Without a provider the
// analyzer is purely heuristic.
func WithProvider(p recall.Provider) Option {
	return func(a *Analyzer) { a.provider = p }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithMinFactConfidence sets the fact gate (default 0.7).
func WithMinFactConfidence(c float64) Option {
	return func(a *Analyzer) { a.minFactConf = c }
}

// WithMinEpisodeConfidence sets the episode gate (default 0.6).
func WithMinEpisodeConfidence(c float64) Option {
	return func(a *Analyzer) { a.minEpisodeConf = c }
}

// WithMinMessageLength sets the shortest message worth analyzing (default 10).
func WithMinMessageLength(n int) Option {
	return func(a *Analyzer) { a.minLength = n }
}

// WithSkipPatterns sets regexps for messages to skip entirely, matched
// against the trimmed lowercased user text. Invalid patterns are dropped.
func WithSkipPatterns(patterns []string) Option {
	return func(a *Analyzer) {
		a.skip = a.skip[:0]
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				a.logger.Warn("analyze: dropping invalid skip pattern", "pattern", p, "error", err)
				continue
			}
			a.skip = append(a.skip, re)
		}
	}
}

// Analyzer extracts candidate memories from conversation turns.
type Analyzer struct {
	provider       recall.Provider
	logger         *slog.Logger
	minFactConf    float64
	minEpisodeConf float64
	minLength      int
	skip           []*regexp.Regexp
}

var defaultSkip = []*regexp.Regexp{
	regexp.MustCompile(`^test$`),
	regexp.MustCompile(`^help$`),
	regexp.MustCompile(`^hello$`),
}

// New builds an Analyzer. Defaults: heuristic mode, fact gate 0.7, episode
// gate 0.6, minimum length 10.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		logger:         recall.NopLogger(),
		minFactConf:    0.7,
		minEpisodeConf: 0.6,
		minLength:      10,
		skip:           defaultSkip,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// ShouldAnalyze reports whether the user text clears the length filter and
// the skip patterns.
func (a *Analyzer) ShouldAnalyze(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < a.minLength {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, re := range a.skip {
		if re.MatchString(lower) {
			return false
		}
	}
	return true
}

// Analyze proposes facts and episodes for one turn. Candidates carry the
// given project ID and the extractor source; confidences below the gates are
// dropped before return.
func (a *Analyzer) Analyze(ctx context.Context, projectID string, turn Turn) (Candidates, error) {
	if err := recall.ValidateProjectID(projectID); err != nil {
		return Candidates{}, err
	}
	if !a.ShouldAnalyze(turn.User) {
		return Candidates{}, nil
	}

	var cands Candidates
	if a.provider != nil {
		modelCands, err := a.modelAnalyze(ctx, turn)
		if err == nil {
			cands = modelCands
		} else {
			a.logger.Warn("analyze: model extraction failed, using heuristics", "error", err)
			cands = heuristicAnalyze(turn.User)
		}
	} else {
		cands = heuristicAnalyze(turn.User)
	}

	out := Candidates{}
	for _, f := range cands.Facts {
		f.ProjectID = projectID
		f.Source = recall.SourceExtractor
		if f.Confidence >= a.minFactConf {
			out.Facts = append(out.Facts, f)
		}
	}
	for _, e := range cands.Episodes {
		e.ProjectID = projectID
		if e.Confidence >= a.minEpisodeConf {
			out.Episodes = append(out.Episodes, e)
		}
	}
	a.logger.Debug("analyze: turn analyzed",
		"project_id", projectID,
		"facts", len(out.Facts), "episodes", len(out.Episodes),
		"model", a.provider != nil)
	return out, nil
}
