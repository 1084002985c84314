package pkg

import (
	"strings"
	"unicode"

	"github.com/oklog/ulid/v2"
)

const maxSlugBase = 60

// Slugify lowercases name, keeps ASCII letters and digits, and joins words with hyphens.
func Slugify(name string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		if b.Len() >= maxSlugBase {
			break
		}
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		default:
			pendingHyphen = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// UniqueSlug appends the last six characters of id, which are random in a ULID.
func UniqueSlug(name string, id ulid.ULID) string {
	suffix := strings.ToLower(id.String()[20:])
	base := Slugify(name)
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}
