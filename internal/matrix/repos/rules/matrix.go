package rules

import (
	"sort"
	"strings"

	"github.com/haukened/rr-matrix/internal/matrix/common/hostname"
	logpkg "github.com/haukened/rr-matrix/internal/matrix/common/log"
	"github.com/haukened/rr-matrix/internal/matrix/domain"
	"github.com/haukened/rr-matrix/internal/matrix/repos/rules/parsers"
)

// minBloomCapacity keeps a freshly rebuilt prefilter roomy enough for the
// edits that follow a load.
const minBloomCapacity = 1024

// Matrix is one rule layer: explicit cells keyed by (scope, hostname, type)
// plus explicit per-scope switches. The temporary and permanent layers are two
// independent Matrix values.
//
// Matrix is not safe for concurrent use; callers serialize writes.
type Matrix struct {
	cells    map[domain.CellKey]domain.Hue
	switches map[string]bool

	// prefilter holds every hostname that was given a cell since the last
	// rebuild. Cell consults it before the map; it is nil when disabled.
	prefilter BloomFilter
	factory   BloomFactory
	fpRate    float64

	logger logpkg.Logger
}

// Option configures a Matrix.
type Option func(*Matrix)

// WithBloom enables the hostname prefilter.
func WithBloom(factory BloomFactory, fpRate float64) Option {
	return func(m *Matrix) {
		m.factory = factory
		m.fpRate = fpRate
	}
}

// WithLogger sets the logger used when loading rule text.
func WithLogger(l logpkg.Logger) Option {
	return func(m *Matrix) {
		if l != nil {
			m.logger = l
		}
	}
}

// New returns an empty matrix.
func New(opts ...Option) *Matrix {
	m := &Matrix{
		cells:    make(map[domain.CellKey]domain.Hue),
		switches: make(map[string]bool),
		logger:   logpkg.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.rebuildPrefilter()
	return m
}

// Cell returns the explicit state at k.
func (m *Matrix) Cell(k domain.CellKey) (domain.Hue, bool) {
	if m.prefilter != nil && !m.prefilter.MightContain([]byte(k.Hostname)) {
		return domain.Transparent, false
	}
	h, ok := m.cells[k]
	return h, ok
}

// Switch returns the explicit switch of scope.
func (m *Matrix) Switch(scope string) (bool, bool) {
	on, ok := m.switches[scope]
	return on, ok
}

// SetCell canonicalizes and stores one explicit cell. Malformed input is
// rejected without mutating the matrix.
func (m *Matrix) SetCell(scope, host string, t domain.RequestType, h domain.Hue) error {
	r, err := domain.NewRule(scope, host, t, h)
	if err != nil {
		return err
	}
	m.put(r)
	return nil
}

// SetRule stores an explicit cell after validating it.
func (m *Matrix) SetRule(r domain.Rule) error {
	nr, err := domain.NewRule(r.Scope, r.Hostname, r.Type, r.Hue)
	if err != nil {
		return err
	}
	m.put(nr)
	return nil
}

func (m *Matrix) put(r domain.Rule) {
	m.cells[r.CellKey] = r.Hue
	if m.prefilter != nil {
		m.prefilter.Add([]byte(r.Hostname))
	}
}

// RemoveCell drops the explicit cell at (scope, host, t). It reports whether a
// cell existed.
func (m *Matrix) RemoveCell(scope, host string, t domain.RequestType) bool {
	k, err := domain.NewCellKey(scope, host, t)
	if err != nil {
		return false
	}
	return m.RemoveKey(k)
}

// RemoveKey drops the explicit cell at an already canonical key.
func (m *Matrix) RemoveKey(k domain.CellKey) bool {
	if _, ok := m.cells[k]; !ok {
		return false
	}
	delete(m.cells, k)
	return true
}

// SetSwitch stores an explicit switch for scope.
func (m *Matrix) SetSwitch(scope string, enabled bool) error {
	sw, err := domain.NewSwitchRule(scope, enabled)
	if err != nil {
		return err
	}
	m.switches[sw.Scope] = sw.Enabled
	return nil
}

// RemoveSwitch drops the explicit switch of scope.
func (m *Matrix) RemoveSwitch(scope string) bool {
	scope = hostname.Canonical(scope)
	if _, ok := m.switches[scope]; !ok {
		return false
	}
	delete(m.switches, scope)
	return true
}

// ToggleSwitch writes the opposite of current, the switch state the caller
// evaluated for scope.
func (m *Matrix) ToggleSwitch(scope string, current bool) error {
	return m.SetSwitch(scope, !current)
}

// AssignFrom replaces every cell and switch with a copy of other's.
func (m *Matrix) AssignFrom(other *Matrix) {
	cells := make(map[domain.CellKey]domain.Hue, len(other.cells))
	for k, v := range other.cells {
		cells[k] = v
	}
	switches := make(map[string]bool, len(other.switches))
	for k, v := range other.switches {
		switches[k] = v
	}
	m.cells = cells
	m.switches = switches
	m.rebuildPrefilter()
}

// Reset drops every cell and switch.
func (m *Matrix) Reset() {
	m.cells = make(map[domain.CellKey]domain.Hue)
	m.switches = make(map[string]bool)
	m.rebuildPrefilter()
}

// Replace swaps the whole layer for the given explicit state. Invalid entries
// are skipped and counted out of the returned total.
func (m *Matrix) Replace(rules []domain.Rule, switches []domain.SwitchRule) int {
	next := New(WithBloom(m.factory, m.fpRate), WithLogger(m.logger))
	n := 0
	for _, r := range rules {
		if err := next.SetRule(r); err != nil {
			m.logger.Debug(map[string]any{"rule": r.CellKey.String(), "error": err.Error()}, "skip_invalid_rule")
			continue
		}
		n++
	}
	for _, sw := range switches {
		if err := next.SetSwitch(sw.Scope, sw.Enabled); err != nil {
			m.logger.Debug(map[string]any{"scope": sw.Scope, "error": err.Error()}, "skip_invalid_switch")
			continue
		}
		n++
	}
	m.AssignFrom(next)
	return n
}

// Rules lists explicit cells in key order.
func (m *Matrix) Rules() []domain.Rule {
	out := make([]domain.Rule, 0, len(m.cells))
	for k, h := range m.cells {
		out = append(out, domain.Rule{CellKey: k, Hue: h})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CellKey.Less(out[j].CellKey) })
	return out
}

// Switches lists explicit switches in scope order.
func (m *Matrix) Switches() []domain.SwitchRule {
	out := make([]domain.SwitchRule, 0, len(m.switches))
	for s, on := range m.switches {
		out = append(out, domain.SwitchRule{Scope: s, Enabled: on})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope < out[j].Scope })
	return out
}

// Len returns the number of explicit cells and switches.
func (m *Matrix) Len() int { return len(m.cells) + len(m.switches) }

// Equal reports whether both layers hold the same explicit state.
func (m *Matrix) Equal(other *Matrix) bool {
	if len(m.cells) != len(other.cells) || len(m.switches) != len(other.switches) {
		return false
	}
	for k, v := range m.cells {
		if ov, ok := other.cells[k]; !ok || ov != v {
			return false
		}
	}
	for k, v := range m.switches {
		if ov, ok := other.switches[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Serialize renders the layer in canonical rule text.
func (m *Matrix) Serialize() string {
	return parsers.FormatRuleText(parsers.RuleSet{Rules: m.Rules(), Switches: m.Switches()})
}

// Deserialize replaces the layer with the rules in text. Malformed lines are
// skipped; the layer is swapped only once the whole text has been read. It
// returns the number of accepted entries.
func (m *Matrix) Deserialize(text string) (int, error) {
	set, err := parsers.ParseRuleText(strings.NewReader(text), "rule_text", m.logger)
	if err != nil {
		return 0, err
	}
	return m.Replace(set.Rules, set.Switches), nil
}

// rebuildPrefilter sizes a fresh filter for the current hostnames.
func (m *Matrix) rebuildPrefilter() {
	if m.factory == nil {
		m.prefilter = nil
		return
	}
	hosts := make(map[string]struct{}, len(m.cells))
	for k := range m.cells {
		hosts[k.Hostname] = struct{}{}
	}
	capacity := uint64(2 * len(hosts))
	if capacity < minBloomCapacity {
		capacity = minBloomCapacity
	}
	bf := m.factory.New(capacity, m.fpRate)
	for h := range hosts {
		bf.Add([]byte(h))
	}
	m.prefilter = bf
}
