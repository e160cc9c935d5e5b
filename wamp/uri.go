package wamp

import (
	"fmt"
	"strings"
)

// URI names realms, topics, procedures and errors.
type URI string

// Validate checks u against WAMP's URI rules. Loose URIs only forbid empty
// components, whitespace and '#'; strict URIs restrict every component to
// lowercase letters, digits and underscores.
func (u URI) Validate(strict bool) error {
	if u == "" {
		return fmt.Errorf("uri is empty")
	}
	for i, c := range strings.Split(string(u), ".") {
		if c == "" {
			return fmt.Errorf("uri %q: component %d is empty", u, i)
		}
		for _, r := range c {
			if strict {
				if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
					return fmt.Errorf("uri %q: invalid character %q in strict mode", u, r)
				}
				continue
			}
			if r == '#' || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
				return fmt.Errorf("uri %q: invalid character %q", u, r)
			}
		}
	}
	return nil
}

// Reserved reports whether u lives in the "wamp." namespace that only the
// router may register or publish into.
func (u URI) Reserved() bool {
	return strings.HasPrefix(string(u), "wamp.")
}
