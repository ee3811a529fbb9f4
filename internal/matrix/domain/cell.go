package domain

import (
	"fmt"

	"github.com/haukened/rr-matrix/internal/matrix/common/hostname"
)

// CellKey addresses one matrix cell: who is asking (Scope), for what
// destination (Hostname), and which column (Type).
//
// Scope is a hostname, a domain, or "*". Hostname may also be "*" (the
// aggregate row) or "1st-party".
type CellKey struct {
	Scope    string
	Hostname string
	Type     RequestType
}

// NewCellKey canonicalizes and validates the parts of a key.
func NewCellKey(scope, host string, t RequestType) (CellKey, error) {
	k := CellKey{
		Scope:    hostname.Canonical(scope),
		Hostname: hostname.Canonical(host),
		Type:     t,
	}
	if err := k.Validate(); err != nil {
		return CellKey{}, err
	}
	return k, nil
}

// Validate checks an already canonical key.
func (k CellKey) Validate() error {
	if !ValidScope(k.Scope) {
		return fmt.Errorf("%w: %q", ErrInvalidScope, k.Scope)
	}
	if !ValidHostname(k.Hostname) {
		return fmt.Errorf("%w: %q", ErrInvalidHostname, k.Hostname)
	}
	if !k.Type.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidType, k.Type)
	}
	return nil
}

// WithScope returns a copy of k addressed from another scope.
func (k CellKey) WithScope(scope string) CellKey {
	k.Scope = scope
	return k
}

// WithHostname returns a copy of k addressed to another destination.
func (k CellKey) WithHostname(h string) CellKey {
	k.Hostname = h
	return k
}

func (k CellKey) String() string {
	return k.Scope + " " + k.Hostname + " " + k.Type.String()
}

// Less orders keys by scope, hostname, then column.
func (k CellKey) Less(o CellKey) bool {
	if k.Scope != o.Scope {
		return k.Scope < o.Scope
	}
	if k.Hostname != o.Hostname {
		return k.Hostname < o.Hostname
	}
	return k.Type < o.Type
}

// ValidScope reports whether s is "*" or a canonical hostname.
func ValidScope(s string) bool {
	return s == hostname.Any || hostname.Valid(s)
}

// ValidHostname reports whether h can be a destination row.
func ValidHostname(h string) bool {
	return h == hostname.Any || h == hostname.FirstParty || hostname.Valid(h)
}

// Rule is one explicit cell.
type Rule struct {
	CellKey
	Hue Hue
}

// NewRule validates the key and requires a storable hue.
func NewRule(scope, host string, t RequestType, h Hue) (Rule, error) {
	k, err := NewCellKey(scope, host, t)
	if err != nil {
		return Rule{}, err
	}
	if !h.Storable() {
		return Rule{}, fmt.Errorf("%w: %s", ErrInvalidHue, h)
	}
	return Rule{CellKey: k, Hue: h}, nil
}

// SwitchRule is one explicit per-scope filtering switch.
type SwitchRule struct {
	Scope   string
	Enabled bool
}

// NewSwitchRule validates the scope.
func NewSwitchRule(scope string, enabled bool) (SwitchRule, error) {
	scope = hostname.Canonical(scope)
	if !ValidScope(scope) {
		return SwitchRule{}, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	return SwitchRule{Scope: scope, Enabled: enabled}, nil
}
