package recall

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var foldLower = cases.Lower(language.Und)

// NormalizeText canonicalizes text for fingerprinting: NFKC normalization,
// Unicode lowercasing, and whitespace runs collapsed to single spaces.
func NormalizeText(s string) string {
	s = norm.NFKC.String(s)
	s = foldLower.String(s)
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}

// EpisodeFingerprint computes the dedup fingerprint for an episode: SHA-256
// over the normalized situation, action, and outcome joined by a separator
// that cannot occur in normalized text.
func EpisodeFingerprint(situation, action, outcome string) string {
	h := sha256.New()
	h.Write([]byte(NormalizeText(situation)))
	h.Write([]byte{0x1f})
	h.Write([]byte(NormalizeText(action)))
	h.Write([]byte{0x1f})
	h.Write([]byte(NormalizeText(outcome)))
	return hex.EncodeToString(h.Sum(nil))
}

// CacheKey fingerprints a retrieval request as a 128-bit truncated SHA-256
// over project ‖ query ‖ topK.
func CacheKey(projectID, query string, topK int) string {
	h := sha256.New()
	h.Write([]byte(projectID))
	h.Write([]byte{0x1f})
	h.Write([]byte(query))
	h.Write([]byte{0x1f})
	h.Write([]byte(strconv.Itoa(topK)))
	return hex.EncodeToString(h.Sum(nil)[:16])
}
