package capture

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ArtifactExt is the extension of every persisted composite.
const ArtifactExt = ".png"

const hostileChars = `/\?%*:|"<>`

// MaxPartBytes bounds each sanitized filename part so the joined name stays
// under the 255-byte filesystem limit.
const MaxPartBytes = 100

// Filename derives the deterministic artifact name
// <sanitizedDate>_<sanitizedName>_<index>.png for item.
func Filename(item Item) string {
	return fmt.Sprintf("%s_%s_%d%s", Sanitize(item.Date), Sanitize(item.Name), item.Index, ArtifactExt)
}

// Sanitize replaces path-hostile characters with '-' and whitespace with '_'.
// Leading dots are dropped so the result is never a hidden or relative name.
// The result is cut to MaxPartBytes on a rune boundary.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.TrimSpace(s) {
		switch {
		case strings.ContainsRune(hostileChars, r):
			b.WriteByte('-')
		case unicode.IsSpace(r):
			b.WriteByte('_')
		case unicode.IsControl(r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	out := truncate(strings.TrimLeft(b.String(), "."), MaxPartBytes)
	if out == "" {
		return "untitled"
	}
	return out
}

func truncate(s string, limit int) string {
	for i, r := range s {
		if i+utf8.RuneLen(r) > limit {
			return s[:i]
		}
	}
	return s
}
