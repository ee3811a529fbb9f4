// Package reconciler compares and merges the temporary and permanent layers.
package reconciler

import (
	"sort"

	"github.com/haukened/rr-matrix/internal/matrix/common/hostname"
	"github.com/haukened/rr-matrix/internal/matrix/domain"
	"github.com/haukened/rr-matrix/internal/matrix/repos/rules"
	"github.com/haukened/rr-matrix/internal/matrix/services/evaluator"
)

// Reconciler compares and copies explicit state between rule layers.
type Reconciler struct {
	eval *evaluator.Evaluator
}

// New returns a Reconciler that resolves inherited colors with eval.
func New(eval *evaluator.Evaluator) *Reconciler {
	if eval == nil {
		eval = evaluator.Default()
	}
	return &Reconciler{eval: eval}
}

// Scopes returns the scopes a page is evaluated from: the page hostname and
// its ancestors down to the registrable domain, then "*".
func Scopes(pageHostname string) []string {
	pageHostname = hostname.Canonical(pageHostname)
	if pageHostname == "" || pageHostname == hostname.Any || !domain.ValidScope(pageHostname) {
		return []string{hostname.Any}
	}
	return append(hostname.Chain(pageHostname), hostname.Any)
}

// closeHostnames adds every ancestor of each hostname, and the "*" row, since
// resolving a hostname reads them.
func closeHostnames(hosts []string) []string {
	seen := map[string]struct{}{hostname.Any: {}}
	out := []string{hostname.Any}
	for _, h := range hosts {
		for _, anc := range hostname.Chain(h) {
			if !domain.ValidHostname(anc) {
				continue
			}
			if _, ok := seen[anc]; ok {
				continue
			}
			seen[anc] = struct{}{}
			out = append(out, anc)
		}
	}
	return out
}

// Diff lists the keys whose state differs between from and to, over the
// scopes of pageHostname and the given hostnames. A cell differs when its
// explicit state or its resolved hue differs; a switch when its explicit or
// evaluated state differs. Entries are sorted.
func (r *Reconciler) Diff(from, to rules.Reader, pageHostname string, hosts []string) []domain.DiffEntry {
	scopes := Scopes(pageHostname)
	all := closeHostnames(hosts)

	var out []domain.DiffEntry
	for _, scope := range scopes {
		for _, h := range all {
			for _, t := range domain.Columns() {
				k := domain.CellKey{Scope: scope, Hostname: h, Type: t}
				if r.cellDiffers(from, to, k) {
					out = append(out, domain.CellDiff(k))
				}
			}
		}
		if r.switchDiffers(from, to, scope) {
			out = append(out, domain.SwitchDiff(scope))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

func (r *Reconciler) cellDiffers(from, to rules.Reader, k domain.CellKey) bool {
	fh, fok := from.Cell(k)
	th, tok := to.Cell(k)
	if fok != tok || fh != th {
		return true
	}
	return r.eval.EvaluateCell(from, k.Scope, k.Hostname, k.Type).Hue !=
		r.eval.EvaluateCell(to, k.Scope, k.Hostname, k.Type).Hue
}

func (r *Reconciler) switchDiffers(from, to rules.Reader, scope string) bool {
	fon, fok := from.Switch(scope)
	ton, tok := to.Switch(scope)
	if fok != tok || fon != ton {
		return true
	}
	return r.eval.EvaluateSwitch(from, scope) != r.eval.EvaluateSwitch(to, scope)
}

// ApplyDiff copies the explicit state at each entry's key from from into to,
// reading from at apply time. It reports whether to changed. Malformed
// entries are ignored.
func (r *Reconciler) ApplyDiff(entries []domain.DiffEntry, from rules.Reader, to rules.Writer) bool {
	changed := false
	for _, e := range entries {
		switch e.Kind {
		case domain.DiffSwitch:
			if copySwitch(from, to, e.Scope) {
				changed = true
			}
		default:
			k := e.Key()
			if k.Validate() != nil {
				continue
			}
			if copyCell(from, to, k) {
				changed = true
			}
		}
	}
	return changed
}

func copyCell(from rules.Reader, to rules.Writer, k domain.CellKey) bool {
	fh, fok := from.Cell(k)
	th, tok := to.Cell(k)
	if !fok {
		return tok && to.RemoveKey(k)
	}
	if tok && th == fh {
		return false
	}
	return to.SetRule(domain.Rule{CellKey: k, Hue: fh}) == nil
}

func copySwitch(from rules.Reader, to rules.Writer, scope string) bool {
	if !domain.ValidScope(scope) {
		return false
	}
	fon, fok := from.Switch(scope)
	ton, tok := to.Switch(scope)
	if !fok {
		return tok && to.RemoveSwitch(scope)
	}
	if tok && ton == fon {
		return false
	}
	return to.SetSwitch(scope, fon) == nil
}

// Assign overwrites target with a deep copy of source.
func (r *Reconciler) Assign(target, source *rules.Matrix) {
	target.AssignFrom(source)
}
