package entity

import (
	"fmt"
	"sort"
	"strings"
)

// Overrides customizes the naming surface of one principal type.
//
// Email is the legacy spelling of IdentifierField. Normalize folds it into
// IdentifierField so resolution only ever reads one key.
type Overrides struct {
	AuthenticationToken string `json:"authentication_token,omitempty"`
	IdentifierField     string `json:"identifier_field,omitempty"`
	Email               string `json:"email,omitempty"`
	Identifier          string `json:"identifier,omitempty"`
}

// HeaderNames maps a snake-cased principal key (e.g. "super_admin") to its overrides.
type HeaderNames map[string]Overrides

// Normalize returns a cleaned copy of the overrides.
//
// Keys are snake-cased, the legacy Email field is folded into
// IdentifierField, and malformed values are dropped so naming falls back to
// convention. Every dropped value is described in the returned issues.
func (h HeaderNames) Normalize() (HeaderNames, []string) {
	out := make(HeaderNames, len(h))
	var issues []string

	keys := make([]string, 0, len(h))
	for key := range h {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, rawKey := range keys {
		key := strings.TrimSpace(rawKey)
		if !ValidName(key) {
			issues = append(issues, fmt.Sprintf("header_names: key %q is not a principal name", rawKey))
			continue
		}
		key = Underscore(key)

		normalized, entryIssues := h[rawKey].normalize(key)
		issues = append(issues, entryIssues...)
		if prev, ok := out[key]; ok {
			normalized = prev.merge(normalized)
		}
		out[key] = normalized
	}
	return out, issues
}

// Clone returns a deep copy.
func (h HeaderNames) Clone() HeaderNames {
	if h == nil {
		return HeaderNames{}
	}
	out := make(HeaderNames, len(h))
	for key, value := range h {
		out[key] = value
	}
	return out
}

func (o Overrides) normalize(key string) (Overrides, []string) {
	var issues []string
	out := Overrides{}

	if value := strings.TrimSpace(o.AuthenticationToken); value != "" {
		if validHeaderName(value) {
			out.AuthenticationToken = value
		} else {
			issues = append(issues, fmt.Sprintf("header_names.%s.authentication_token: %q is not a header name", key, o.AuthenticationToken))
		}
	}
	if value := strings.TrimSpace(o.Identifier); value != "" {
		if validHeaderName(value) {
			out.Identifier = value
		} else {
			issues = append(issues, fmt.Sprintf("header_names.%s.identifier: %q is not a header name", key, o.Identifier))
		}
	}

	if value := strings.TrimSpace(o.IdentifierField); value != "" {
		if ValidName(value) {
			out.IdentifierField = value
		} else {
			issues = append(issues, fmt.Sprintf("header_names.%s.identifier_field: %q is not a field name", key, o.IdentifierField))
		}
	}
	if value := strings.TrimSpace(o.Email); value != "" && out.IdentifierField == "" {
		if ValidName(value) {
			out.IdentifierField = value
		} else {
			issues = append(issues, fmt.Sprintf("header_names.%s.email: %q is not a field name", key, o.Email))
		}
	}

	return out, issues
}

func (o Overrides) merge(next Overrides) Overrides {
	if next.AuthenticationToken != "" {
		o.AuthenticationToken = next.AuthenticationToken
	}
	if next.Identifier != "" {
		o.Identifier = next.Identifier
	}
	if next.IdentifierField != "" {
		o.IdentifierField = next.IdentifierField
	}
	return o
}

// validHeaderName accepts RFC 7230 token characters only.
func validHeaderName(name string) bool {
	if name == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isLetter(c) || isDigit(c) {
			continue
		}
		if !strings.ContainsRune("!#$%&'*+-.^_`|~", rune(c)) {
			return false
		}
	}
	return true
}
