package recall

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NowUnix returns current time as Unix seconds.
func NowUnix() int64 {
	return time.Now().Unix()
}

// NewProjectID derives a project ID from a human name: "name-shortUUID",
// where shortUUID is the first 8 hex characters of a fresh UUIDv7. The name
// is lowercased and non-conforming runes collapse to hyphens.
func NewProjectID(name string) (string, error) {
	name = slugify(name)
	if name == "" || len(name) > 32 {
		return "", E(KindInvalidInput, "project name must be 1..32 lower-alphanumerics/hyphens")
	}
	short := strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")[:8]
	return name + "-" + short, nil
}

// ValidateProjectID checks the "name-shortUUID" grammar: name is 1..32
// lower-alphanumerics/hyphens, shortUUID is exactly 8 hex characters.
func ValidateProjectID(id string) error {
	i := strings.LastIndexByte(id, '-')
	if i <= 0 || i == len(id)-1 {
		return E(KindInvalidInput, "project id %q: want name-shortUUID", id)
	}
	name, short := id[:i], id[i+1:]
	if len(name) < 1 || len(name) > 32 {
		return E(KindInvalidInput, "project id %q: name must be 1..32 chars", id)
	}
	for _, r := range name {
		if !isLowerAlnum(r) && r != '-' {
			return E(KindInvalidInput, "project id %q: name has invalid rune %q", id, r)
		}
	}
	if len(short) != 8 {
		return E(KindInvalidInput, "project id %q: short uuid must be 8 hex chars", id)
	}
	for _, r := range short {
		if !isHex(r) {
			return E(KindInvalidInput, "project id %q: short uuid has invalid rune %q", id, r)
		}
	}
	return nil
}

func isLowerAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f')
}

func slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case isLowerAlnum(r):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == ' ':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
