// Package pagestore keeps the live request log of recently seen pages. The
// number of pages is bounded by an LRU; each page holds an ordered set of
// unique requests.
package pagestore

import (
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-matrix/internal/matrix/common/hostname"
	"github.com/haukened/rr-matrix/internal/matrix/domain"
)

// ErrNoPageHost is returned when a page URL carries no hostname.
var ErrNoPageHost = errors.New("page URL has no hostname")

// ErrReservedHostname is returned for a request or page whose hostname is a
// pseudo-hostname such as "*" or "1st-party".
var ErrReservedHostname = errors.New("reserved hostname")

// Page is a read-only copy of one page's request log. Requests are in
// first-seen order.
type Page struct {
	URL          string
	Hostname     string
	Domain       string
	Requests     []domain.Request
	BlockedCount int
}

type page struct {
	url      string
	hostname string
	domain   string
	requests []domain.Request
	index    map[string]int
	blocked  int
}

// Options configures a Store.
type Options struct {
	// Capacity bounds the number of tracked pages. Values <= 0 use DefaultCapacity.
	Capacity int
}

// DefaultCapacity is the page bound used when Options.Capacity is unset.
const DefaultCapacity = 256

// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	pages *lru.Cache[string, *page]
}

// New creates a page store.
func New(opts Options) (*Store, error) {
	size := opts.Capacity
	if size <= 0 {
		size = DefaultCapacity
	}
	c, err := lru.New[string, *page](size)
	if err != nil {
		return nil, err
	}
	return &Store{pages: c}, nil
}

// Record appends a request to the page's log, creating the page on first
// use. A request already present under the same key keeps its position and
// takes the latest blocked flag. Requests without a hostname are attributed
// to the page. Pseudo-hostnames are refused with ErrReservedHostname.
func (s *Store) Record(pageURL string, r domain.Request) error {
	if r.Hostname == "" {
		r.Hostname = hostname.FromURL(r.URL)
	}
	if hostname.Reserved(hostname.Canonical(r.Hostname)) {
		return ErrReservedHostname
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages.Get(pageURL)
	if !ok {
		host := hostname.FromURL(pageURL)
		if host == "" {
			return ErrNoPageHost
		}
		if hostname.Reserved(host) {
			return ErrReservedHostname
		}
		p = &page{
			url:      pageURL,
			hostname: host,
			domain:   hostname.Domain(host),
			index:    make(map[string]int),
		}
		s.pages.Add(pageURL, p)
	}
	if r.Blocked {
		p.blocked++
	}
	k := r.Key()
	if i, seen := p.index[k]; seen {
		p.requests[i] = r
		return nil
	}
	p.index[k] = len(p.requests)
	p.requests = append(p.requests, r)
	return nil
}

// Lookup returns a copy of the page's log.
func (s *Store) Lookup(pageURL string) (*Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pages.Get(pageURL)
	if !ok {
		return nil, false
	}
	return &Page{
		URL:          p.url,
		Hostname:     p.hostname,
		Domain:       p.domain,
		Requests:     append([]domain.Request(nil), p.requests...),
		BlockedCount: p.blocked,
	}, true
}

// Forget drops a page.
func (s *Store) Forget(pageURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages.Remove(pageURL)
}

// Len returns the number of tracked pages.
func (s *Store) Len() int { return s.pages.Len() }

// Purge drops every page.
func (s *Store) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages.Purge()
}
