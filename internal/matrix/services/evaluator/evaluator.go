// Package evaluator resolves matrix cells and switches. Every method is a
// pure function of the matrix it is handed and the query.
package evaluator

import (
	"github.com/haukened/rr-matrix/internal/matrix/common/hostname"
	"github.com/haukened/rr-matrix/internal/matrix/domain"
	"github.com/haukened/rr-matrix/internal/matrix/repos/rules"
)

// Source tells where a resolved hue came from.
type Source uint8

const (
	SourceDefault Source = iota
	SourceInherited
	SourceExact
)

func (s Source) String() string {
	switch s {
	case SourceExact:
		return "exact"
	case SourceInherited:
		return "inherited"
	default:
		return "default"
	}
}

// Resolution is the outcome of EvaluateCell. Key is the explicit cell that
// matched; it is zero for SourceDefault.
type Resolution struct {
	Hue    domain.Hue
	Source Source
	Key    domain.CellKey
}

// Color folds the source into a specificity. Defaults are inherited.
func (r Resolution) Color() domain.Color {
	spec := domain.Inherited
	if r.Source == SourceExact {
		spec = domain.Exact
	}
	return domain.Color{Hue: r.Hue, Specificity: spec}
}

// Evaluator resolves cells, rows and switches against a rules.Reader. It is
// immutable after New.
type Evaluator struct {
	defaults     Defaults
	globalSwitch bool
}

// Options configures New.
type Options struct {
	Defaults Defaults
	// FilteringOff flips the global switch used when no scope has one.
	FilteringOff bool
}

// New returns an Evaluator using opts.Defaults for cells no rule covers.
func New(opts Options) *Evaluator {
	return &Evaluator{defaults: opts.Defaults, globalSwitch: !opts.FilteringOff}
}

// Default returns an evaluator with the builtin defaults and filtering on.
func Default() *Evaluator {
	return New(Options{Defaults: BuiltinDefaults()})
}

// Defaults returns the fallback hues the evaluator was built with.
func (e *Evaluator) Defaults() Defaults { return e.defaults }

// GlobalSwitch reports whether filtering is on when no scope sets a switch.
func (e *Evaluator) GlobalSwitch() bool { return e.globalSwitch }

// EvaluateCell resolves (scope, host, t) against m. Lookup order:
//  1. the exact key
//  2. host's ancestors up to its registrable domain, same scope
//  3. host and its ancestors under the "*" scope
//  4. the "*" row, first under scope then under "*"
//  5. the column default
func (e *Evaluator) EvaluateCell(m rules.Reader, scope, host string, t domain.RequestType) Resolution {
	scope = hostname.Canonical(scope)
	host = hostname.Canonical(host)

	k := domain.CellKey{Scope: scope, Hostname: host, Type: t}
	if h, ok := m.Cell(k); ok {
		return Resolution{Hue: h, Source: SourceExact, Key: k}
	}

	chain := hostname.Chain(host)
	if len(chain) > 1 {
		for _, anc := range chain[1:] {
			if r, ok := lookup(m, k.WithHostname(anc)); ok {
				return r
			}
		}
	}
	if scope != hostname.Any {
		for _, anc := range chain {
			if r, ok := lookup(m, domain.CellKey{Scope: hostname.Any, Hostname: anc, Type: t}); ok {
				return r
			}
		}
	}
	if host != hostname.Any {
		if r, ok := lookup(m, k.WithHostname(hostname.Any)); ok {
			return r
		}
		if scope != hostname.Any {
			if r, ok := lookup(m, domain.CellKey{Scope: hostname.Any, Hostname: hostname.Any, Type: t}); ok {
				return r
			}
		}
	}
	return Resolution{Hue: e.defaults.Hue(t), Source: SourceDefault}
}

func lookup(m rules.Reader, k domain.CellKey) (Resolution, bool) {
	h, ok := m.Cell(k)
	if !ok {
		return Resolution{}, false
	}
	return Resolution{Hue: h, Source: SourceInherited, Key: k}, true
}

// EvaluateColor is EvaluateCell folded into a Color.
func (e *Evaluator) EvaluateColor(m rules.Reader, scope, host string, t domain.RequestType) domain.Color {
	return e.EvaluateCell(m, scope, host, t).Color()
}

// EvaluateRow resolves every column of (scope, host).
func (e *Evaluator) EvaluateRow(m rules.Reader, scope, host string) []domain.Color {
	out := make([]domain.Color, domain.ColumnCount)
	for _, t := range domain.Columns() {
		out[t.Column()] = e.EvaluateColor(m, scope, host, t)
	}
	return out
}

// EvaluateSwitch walks scope, its ancestors down to the registrable domain,
// then "*". The first explicit switch wins; otherwise the global switch.
func (e *Evaluator) EvaluateSwitch(m rules.Reader, scope string) bool {
	scope = hostname.Canonical(scope)
	if scope != hostname.Any {
		for _, s := range hostname.Chain(scope) {
			if on, ok := m.Switch(s); ok {
				return on
			}
		}
	}
	if on, ok := m.Switch(hostname.Any); ok {
		return on
	}
	return e.globalSwitch
}

// Decide returns the verdict for a request. Only Block blocks, and only
// while filtering is enabled for scope.
func (e *Evaluator) Decide(m rules.Reader, scope, host string, t domain.RequestType) domain.Decision {
	h := e.EvaluateCell(m, scope, host, t).Hue
	filtering := e.EvaluateSwitch(m, scope)
	return domain.Decision{
		Hue:       h,
		Blocked:   filtering && h == domain.Block,
		Filtering: filtering,
	}
}
