package domain

import (
	"fmt"
	"strings"
)

// Hue is the semantic verdict of a cell.
type Hue uint8

const (
	// Transparent marks aggregate or no-op contexts. It is never stored.
	Transparent Hue = iota
	Block
	Allow
	Graylist
)

func (h Hue) String() string {
	switch h {
	case Transparent:
		return "transparent"
	case Block:
		return "block"
	case Allow:
		return "allow"
	case Graylist:
		return "graylist"
	default:
		return fmt.Sprintf("Hue(%d)", h)
	}
}

// Storable reports whether h may be held by an explicit cell.
func (h Hue) Storable() bool {
	return h == Block || h == Allow || h == Graylist
}

// ParseHue converts a rule-text state token into a storable Hue.
func ParseHue(s string) (Hue, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "block", "deny":
		return Block, nil
	case "allow":
		return Allow, nil
	case "graylist", "gray", "neutral":
		return Graylist, nil
	default:
		return Transparent, fmt.Errorf("%w: %q", ErrInvalidHue, s)
	}
}

func (h Hue) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hue) UnmarshalText(b []byte) error {
	if string(b) == "transparent" {
		*h = Transparent
		return nil
	}
	v, err := ParseHue(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// Specificity tells whether a resolved hue matched the queried key exactly.
type Specificity uint8

const (
	Inherited Specificity = iota
	Exact
)

func (s Specificity) String() string {
	if s == Exact {
		return "exact"
	}
	return "inherited"
}

// Color is a resolved cell value: a hue tagged with its specificity.
type Color struct {
	Hue         Hue
	Specificity Specificity
}

// String renders e.g. "exact-block" or "inherited-graylist".
func (c Color) String() string {
	return c.Specificity.String() + "-" + c.Hue.String()
}

func (c Color) IsExact() bool { return c.Specificity == Exact }
func (c Color) IsBlock() bool { return c.Hue == Block }
func (c Color) IsAllow() bool { return c.Hue == Allow }

// ExactBlock and ExactAllow are the explicit colors the classifier keys on.
func (c Color) ExactBlock() bool { return c.IsExact() && c.IsBlock() }
func (c Color) ExactAllow() bool { return c.IsExact() && c.IsAllow() }

func (c Color) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Color) UnmarshalText(b []byte) error {
	spec, hue, ok := strings.Cut(string(b), "-")
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidHue, string(b))
	}
	var out Color
	switch spec {
	case "exact":
		out.Specificity = Exact
	case "inherited":
		out.Specificity = Inherited
	default:
		return fmt.Errorf("%w: %q", ErrInvalidHue, string(b))
	}
	if err := out.Hue.UnmarshalText([]byte(hue)); err != nil {
		return err
	}
	*c = out
	return nil
}
