// Package hostname holds the hostname arithmetic the matrix is built on:
// canonical form, registrable domain, and the ancestor chain walked by the
// evaluator and the snapshot aggregator.
package hostname

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

const (
	// Any is the wildcard scope and the aggregate destination row.
	Any = "*"
	// FirstParty is the pseudo-hostname of the first-party row.
	FirstParty = "1st-party"
)

// Reserved reports whether a canonical name is one of the pseudo-hostnames
// that label aggregate rows. Real requests never carry them.
func Reserved(name string) bool {
	return name == Any || name == FirstParty
}

// Canonical returns a hostname in canonical form:
// - Lowercased
// - Trimmed of surrounding whitespace
// - No trailing dots
func Canonical(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.TrimRight(name, ".")
}

// Domain returns the registrable domain (eTLD+1) of a canonical hostname.
// IP literals, the reserved rows and names that are themselves public
// suffixes are their own domain.
func Domain(name string) string {
	name = Canonical(name)
	if name == Any || name == FirstParty || name == "" {
		return name
	}
	if isIP(name) {
		return name
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(name)
	if err != nil {
		return name
	}
	return d
}

// Parent strips the leftmost label. ok is false when name has a single label.
func Parent(name string) (string, bool) {
	i := strings.IndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return "", false
	}
	return name[i+1:], true
}

// Chain returns name followed by each ancestor down to and including its
// registrable domain. A name that is not under its domain yields just itself.
func Chain(name string) []string {
	name = Canonical(name)
	if name == "" {
		return nil
	}
	domain := Domain(name)
	out := []string{name}
	if name == domain || isIP(name) || !strings.HasSuffix(name, "."+domain) {
		return out
	}
	for cur := name; cur != domain; {
		parent, ok := Parent(cur)
		if !ok {
			break
		}
		out = append(out, parent)
		cur = parent
	}
	return out
}

// IsAncestor reports whether ancestor equals name or is one of its parent
// labels.
func IsAncestor(ancestor, name string) bool {
	return ancestor == name || strings.HasSuffix(name, "."+ancestor)
}

// Valid reports whether name is a usable canonical hostname: 1-255 bytes,
// dot-separated labels of 1-63 bytes drawn from [a-z0-9-_]. IP literals
// (IPv6 without brackets) are accepted.
func Valid(name string) bool {
	if name == "" || len(name) > 255 {
		return false
	}
	if isIP(name) {
		return true
	}
	for _, label := range strings.Split(name, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			switch {
			case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
			default:
				return false
			}
		}
	}
	return true
}

// FromURL extracts the canonical hostname of a request URL. URLs without a
// host (data:, about:blank) yield "".
func FromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return Canonical(u.Hostname())
}

func isIP(name string) bool {
	return net.ParseIP(strings.Trim(name, "[]")) != nil
}
