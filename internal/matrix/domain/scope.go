package domain

import (
	"fmt"
	"strings"

	"github.com/haukened/rr-matrix/internal/matrix/common/hostname"
)

// ScopeLevel selects how a page's policy scope is derived.
type ScopeLevel uint8

const (
	ScopeGlobal ScopeLevel = iota
	ScopeDomain
	ScopeSite
)

func (l ScopeLevel) String() string {
	switch l {
	case ScopeGlobal:
		return "global"
	case ScopeDomain:
		return "domain"
	case ScopeSite:
		return "site"
	default:
		return fmt.Sprintf("ScopeLevel(%d)", l)
	}
}

// ParseScopeLevel accepts "global", "domain" or "site" (case-insensitive).
func ParseScopeLevel(s string) (ScopeLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "global", "*":
		return ScopeGlobal, nil
	case "domain":
		return ScopeDomain, nil
	case "site":
		return ScopeSite, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidLevel, s)
	}
}

// Scope returns the policy scope for a page. Pages without a hostname fall
// back to the global scope.
func (l ScopeLevel) Scope(pageHostname, pageDomain string) string {
	switch l {
	case ScopeSite:
		if pageHostname != "" {
			return pageHostname
		}
	case ScopeDomain:
		if pageDomain != "" {
			return pageDomain
		}
	}
	return hostname.Any
}

func (l ScopeLevel) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *ScopeLevel) UnmarshalText(b []byte) error {
	v, err := ParseScopeLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}
