// Package snapshot rolls a page's request log up into a hostname tree
// annotated with resolved colors and counts.
package snapshot

import (
	"sort"

	"github.com/haukened/rr-matrix/internal/matrix/common/hostname"
	"github.com/haukened/rr-matrix/internal/matrix/domain"
	"github.com/haukened/rr-matrix/internal/matrix/repos/pagestore"
	"github.com/haukened/rr-matrix/internal/matrix/repos/rules"
	"github.com/haukened/rr-matrix/internal/matrix/services/evaluator"
	"github.com/haukened/rr-matrix/internal/matrix/services/reconciler"
)

// Row is one hostname of a snapshot. Vectors are indexed by column offset.
type Row struct {
	Domain    string         `json:"domain"`
	Temporary []domain.Color `json:"temporary"`
	Permanent []domain.Color `json:"permanent"`
	// Counts are requests to this exact hostname.
	Counts []int `json:"counts"`
	// Totals are requests rolled up to this row as a domain (or to "*").
	Totals []int `json:"totals"`
}

// Snapshot is the read model of one page.
type Snapshot struct {
	PageURL      string             `json:"url"`
	Hostname     string             `json:"hostname"`
	Domain       string             `json:"domain"`
	Scope        string             `json:"scope"`
	Headers      map[string]int     `json:"headers"`
	TSwitch      bool               `json:"tSwitch"`
	PSwitch      bool               `json:"pSwitch"`
	BlockedCount int                `json:"blockedCount"`
	Rows         map[string]*Row    `json:"rows"`
	RowCount     int                `json:"rowCount"`
	Diff         []domain.DiffEntry `json:"diff"`
}

// Hostnames returns the row keys in sorted order.
func (s *Snapshot) Hostnames() []string {
	out := make([]string, 0, len(s.Rows))
	for h := range s.Rows {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Empty returns the snapshot of an unknown page.
func Empty() *Snapshot {
	return &Snapshot{
		Scope:   hostname.Any,
		Headers: domain.Headers(),
		Rows:    map[string]*Row{},
		Diff:    []domain.DiffEntry{},
	}
}

// Aggregator builds matrix snapshots for a page from its request log and the
// two rule layers. It holds no state of its own and is safe for concurrent use.
type Aggregator struct {
	eval *evaluator.Evaluator
	rec  *reconciler.Reconciler
}

// New returns an Aggregator. Nil arguments fall back to the builtin evaluator
// and a reconciler over it.
func New(eval *evaluator.Evaluator, rec *reconciler.Reconciler) *Aggregator {
	if eval == nil {
		eval = evaluator.Default()
	}
	if rec == nil {
		rec = reconciler.New(eval)
	}
	return &Aggregator{eval: eval, rec: rec}
}

// Aggregate builds the snapshot of page. A nil page yields Empty.
func (a *Aggregator) Aggregate(page *pagestore.Page, temp, perm rules.Reader, level domain.ScopeLevel) *Snapshot {
	s := Empty()
	if page == nil {
		return s
	}
	s.PageURL = page.URL
	s.Hostname = page.Hostname
	s.Domain = page.Domain
	s.BlockedCount = page.BlockedCount
	s.Scope = level.Scope(page.Hostname, page.Domain)
	s.TSwitch = a.eval.EvaluateSwitch(temp, s.Scope)
	s.PSwitch = a.eval.EvaluateSwitch(perm, s.Scope)

	newRow := func(host, dom string) *Row {
		return &Row{
			Domain:    dom,
			Temporary: a.eval.EvaluateRow(temp, s.Scope, host),
			Permanent: a.eval.EvaluateRow(perm, s.Scope, host),
			Counts:    make([]int, domain.ColumnCount),
			Totals:    make([]int, domain.ColumnCount),
		}
	}
	s.Rows[hostname.Any] = newRow(hostname.Any, hostname.Any)
	s.Rows[hostname.FirstParty] = newRow(hostname.FirstParty, hostname.FirstParty)
	s.RowCount = 1

	anyCol := domain.TypeAny.Column()
	for i := len(page.Requests) - 1; i >= 0; i-- {
		req := page.Requests[i]
		if !req.Type.Valid() {
			continue
		}
		host := hostname.Canonical(req.Hostname)
		if host == "" {
			host = page.Hostname
		}
		if host == "" || hostname.Reserved(host) {
			continue
		}
		dom := hostname.Domain(host)
		if dom == "" {
			dom = host
		}

		for cur := host; ; {
			if _, ok := s.Rows[cur]; ok {
				break
			}
			s.Rows[cur] = newRow(cur, dom)
			s.RowCount++
			if cur == dom {
				break
			}
			parent, ok := hostname.Parent(cur)
			if !ok {
				break
			}
			cur = parent
		}

		col := req.Type.Column()
		row := s.Rows[host]
		row.Counts[col]++
		row.Counts[anyCol]++

		if row, ok := s.Rows[dom]; ok {
			row.Totals[col]++
			row.Totals[anyCol]++
		}

		row = s.Rows[hostname.Any]
		row.Totals[col]++
		row.Totals[anyCol]++
	}

	if d := a.rec.Diff(temp, perm, s.Hostname, s.Hostnames()); d != nil {
		s.Diff = d
	}
	return s
}
