package evaluator

import (
	"fmt"
	"strings"

	"github.com/haukened/rr-matrix/internal/matrix/domain"
)

// Defaults holds the hue a column resolves to when no rule matches anywhere.
type Defaults [domain.ColumnCount]domain.Hue

// BuiltinDefaults returns the stock per-column defaults: style sheets and
// images load, plugins are blocked, everything else is graylisted.
func BuiltinDefaults() Defaults {
	var d Defaults
	for i := range d {
		d[i] = domain.Graylist
	}
	d[domain.TypeCSS] = domain.Allow
	d[domain.TypeImage] = domain.Allow
	d[domain.TypePlugin] = domain.Block
	return d
}

// ParseDefaults applies "type=hue" overrides on top of BuiltinDefaults.
func ParseDefaults(pairs []string) (Defaults, error) {
	d := BuiltinDefaults()
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			return Defaults{}, fmt.Errorf("invalid default %q: want type=hue", p)
		}
		t, err := domain.ParseRequestType(name)
		if err != nil {
			return Defaults{}, err
		}
		h, err := domain.ParseHue(value)
		if err != nil {
			return Defaults{}, err
		}
		d[t] = h
	}
	return d, nil
}

// Hue returns the default for column t.
func (d Defaults) Hue(t domain.RequestType) domain.Hue {
	if !t.Valid() {
		return domain.Graylist
	}
	return d[t]
}

// Pairs renders the defaults as "type=hue" strings in column order.
func (d Defaults) Pairs() []string {
	out := make([]string, 0, len(d))
	for _, t := range domain.Columns() {
		out = append(out, t.String()+"="+d[t].String())
	}
	return out
}
