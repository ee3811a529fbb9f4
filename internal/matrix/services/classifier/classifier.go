// Package classifier partitions the domains of a snapshot into display groups.
package classifier

import (
	"sort"
	"strings"
	"sync"

	"github.com/haukened/rr-matrix/internal/matrix/common/hostname"
	"github.com/haukened/rr-matrix/internal/matrix/domain"
	"github.com/haukened/rr-matrix/internal/matrix/services/snapshot"
)

// Group indexes, in display order.
const (
	GroupFirstParty = iota
	GroupPageDomain
	GroupAllowed
	GroupNeutral
	GroupBlocked

	GroupCount
)

// Entry is one domain and the snapshot hostnames under it.
type Entry struct {
	Domain    string   `json:"domain"`
	Hostnames []string `json:"hostnames"`
}

// Groups holds the entries of each group sorted by domain.
type Groups [GroupCount][]Entry

// GroupOf returns the group index of d, or -1.
func (g Groups) GroupOf(d string) int {
	for i, entries := range g {
		for _, e := range entries {
			if e.Domain == d {
				return i
			}
		}
	}
	return -1
}

// Classifier memoizes the last result by the snapshot's row set, so groups
// do not reshuffle while no new hostname shows up.
type Classifier struct {
	mu          sync.Mutex
	fingerprint string
	last        Groups
	valid       bool
}

func New() *Classifier { return &Classifier{} }

// Reset drops the memoized result.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
	c.fingerprint = ""
	c.last = Groups{}
}

// Classify returns the groups for s, reusing the previous result when s has
// the same row set.
func (c *Classifier) Classify(s *snapshot.Snapshot) Groups {
	fp := strings.Join(s.Hostnames(), ",")
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.valid && fp == c.fingerprint {
		return c.last
	}
	c.last = Classify(s)
	c.fingerprint = fp
	c.valid = true
	return c.last
}

// Classify partitions the domains of s. Passes run in order and the first
// one to place a domain wins:
//  1. a domain row with an exact allow or block on "*", or with traffic
//  2. any hostname with an exact allow on "*" places its domain as allowed
//  3. any hostname not exactly blocked and with traffic places it as neutral
//  4. any hostname with an exact block places it as blocked
//  5. everything left is neutral
func Classify(s *snapshot.Snapshot) Groups {
	anyCol := domain.TypeAny.Column()
	hosts := s.Hostnames()
	placed := map[string]int{
		hostname.FirstParty: GroupFirstParty,
		s.Domain:            GroupPageDomain,
	}

	eachRow := func(fn func(host string, row *snapshot.Row)) {
		for _, h := range hosts {
			if h == hostname.Any {
				continue
			}
			row := s.Rows[h]
			if _, ok := placed[row.Domain]; ok {
				continue
			}
			fn(h, row)
		}
	}

	eachRow(func(h string, row *snapshot.Row) {
		if h != row.Domain {
			return
		}
		c := row.Temporary[anyCol]
		switch {
		case c.ExactAllow():
			placed[row.Domain] = GroupAllowed
		case c.ExactBlock():
			placed[row.Domain] = GroupBlocked
		case row.Counts[anyCol] != 0:
			placed[row.Domain] = GroupNeutral
		}
	})
	eachRow(func(_ string, row *snapshot.Row) {
		if row.Temporary[anyCol].ExactAllow() {
			placed[row.Domain] = GroupAllowed
		}
	})
	eachRow(func(_ string, row *snapshot.Row) {
		if !row.Temporary[anyCol].ExactBlock() && row.Counts[anyCol] != 0 {
			placed[row.Domain] = GroupNeutral
		}
	})
	eachRow(func(_ string, row *snapshot.Row) {
		if row.Temporary[anyCol].ExactBlock() {
			placed[row.Domain] = GroupBlocked
		}
	})
	eachRow(func(_ string, row *snapshot.Row) {
		placed[row.Domain] = GroupNeutral
	})

	byDomain := make(map[string]*Entry)
	var order []string
	for _, h := range hosts {
		if h == hostname.Any {
			continue
		}
		d := s.Rows[h].Domain
		e, ok := byDomain[d]
		if !ok {
			e = &Entry{Domain: d}
			byDomain[d] = e
			order = append(order, d)
		}
		e.Hostnames = append(e.Hostnames, h)
	}
	sort.Strings(order)

	var g Groups
	for _, d := range order {
		i := placed[d]
		g[i] = append(g[i], *byDomain[d])
	}
	return g
}
