package domain

import (
	"fmt"
	"strings"
)

// DiffKind distinguishes cell differences from switch differences.
type DiffKind uint8

const (
	DiffCell DiffKind = iota
	DiffSwitch
)

func (k DiffKind) String() string {
	if k == DiffSwitch {
		return "switch"
	}
	return "cell"
}

func (k DiffKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *DiffKind) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "cell", "":
		*k = DiffCell
	case "switch":
		*k = DiffSwitch
	default:
		return fmt.Errorf("unsupported diff kind: %q", string(b))
	}
	return nil
}

// DiffEntry names one key whose state differs between two layers. Switch
// entries only carry Scope.
type DiffEntry struct {
	Kind     DiffKind    `json:"kind"`
	Scope    string      `json:"scope"`
	Hostname string      `json:"hostname,omitempty"`
	Type     RequestType `json:"type"`
}

// CellDiff and SwitchDiff are the two entry constructors.
func CellDiff(k CellKey) DiffEntry {
	return DiffEntry{Kind: DiffCell, Scope: k.Scope, Hostname: k.Hostname, Type: k.Type}
}

func SwitchDiff(scope string) DiffEntry {
	return DiffEntry{Kind: DiffSwitch, Scope: scope}
}

// Key returns the cell key of a cell entry.
func (e DiffEntry) Key() CellKey {
	return CellKey{Scope: e.Scope, Hostname: e.Hostname, Type: e.Type}
}

// Less orders entries by kind, scope, hostname and column.
func (e DiffEntry) Less(o DiffEntry) bool {
	if e.Kind != o.Kind {
		return e.Kind < o.Kind
	}
	return e.Key().Less(o.Key())
}

func (e DiffEntry) String() string {
	if e.Kind == DiffSwitch {
		return "switch " + e.Scope
	}
	return "cell " + e.Key().String()
}
