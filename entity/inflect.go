package entity

import "strings"

// ValidName reports whether name is an ASCII identifier: a letter followed by
// letters, digits or underscores. Anything else cannot be inflected reliably.
func ValidName(name string) bool {
	if name == "" || !isLetter(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if !isLetter(c) && !isDigit(c) && c != '_' {
			return false
		}
	}
	return true
}

// Underscore converts a camel-cased name to snake case.
//
// An underscore is inserted between a lowercase letter or digit and the
// uppercase letter that follows it, and before the last capital of an
// acronym run when a lowercase letter follows ("HTMLParser" -> "html_parser").
func Underscore(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)

	for i := 0; i < len(name); i++ {
		c := name[i]
		if isUpper(c) && i > 0 {
			prev := name[i-1]
			switch {
			case isLower(prev) || isDigit(prev):
				b.WriteByte('_')
			case isUpper(prev) && i+1 < len(name) && isLower(name[i+1]):
				b.WriteByte('_')
			}
		}
		b.WriteByte(toLower(c))
	}
	return b.String()
}

// Camelize upper-cases the first letter of every underscore separated segment
// and drops the separators. The rest of each segment keeps its case, so an
// already camel-cased name is returned unchanged.
func Camelize(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	upper := true
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '_' {
			upper = true
			continue
		}
		if upper {
			c = toUpper(c)
			upper = false
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isLetter(c byte) bool { return isUpper(c) || isLower(c) }
func isUpper(c byte) bool  { return c >= 'A' && c <= 'Z' }
func isLower(c byte) bool  { return c >= 'a' && c <= 'z' }
func isDigit(c byte) bool  { return c >= '0' && c <= '9' }

func toLower(c byte) byte {
	if isUpper(c) {
		return c + ('a' - 'A')
	}
	return c
}

func toUpper(c byte) byte {
	if isLower(c) {
		return c - ('a' - 'A')
	}
	return c
}
