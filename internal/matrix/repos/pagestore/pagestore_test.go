package pagestore

import (
	"errors"
	"testing"

	"github.com/haukened/rr-matrix/internal/matrix/domain"
)

func TestStore_RecordAndLookup(t *testing.T) {
	s, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	const pageURL = "https://www.news.com/article"
	reqs := []domain.Request{
		{Type: domain.TypeScript, URL: "https://ads.example.com/a.js", Blocked: true},
		{Type: domain.TypeImage, URL: "https://cdn.news.com/x.png"},
		{Type: domain.TypeImage, URL: "data:image/png;base64,AAAA"},
	}
	for _, r := range reqs {
		if err := s.Record(pageURL, r); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	p, ok := s.Lookup(pageURL)
	if !ok {
		t.Fatal("page not found")
	}
	if p.Hostname != "www.news.com" || p.Domain != "news.com" {
		t.Fatalf("unexpected page identity: %+v", p)
	}
	if len(p.Requests) != 3 || p.BlockedCount != 1 {
		t.Fatalf("unexpected log: %+v", p)
	}
	if p.Requests[0].Hostname != "ads.example.com" || p.Requests[2].Hostname != "" {
		t.Fatalf("unexpected hostnames: %+v", p.Requests)
	}
}

func TestStore_DuplicateRequestKeepsPosition(t *testing.T) {
	s, _ := New(Options{})
	const pageURL = "https://a.com/"
	_ = s.Record(pageURL, domain.Request{Type: domain.TypeScript, URL: "https://x.com/1.js"})
	_ = s.Record(pageURL, domain.Request{Type: domain.TypeImage, URL: "https://x.com/1.js"})
	_ = s.Record(pageURL, domain.Request{Type: domain.TypeScript, URL: "https://x.com/1.js", Blocked: true})

	p, _ := s.Lookup(pageURL)
	if len(p.Requests) != 2 {
		t.Fatalf("type is part of the key, got %d requests", len(p.Requests))
	}
	if p.Requests[0].Type != domain.TypeScript || !p.Requests[0].Blocked {
		t.Fatalf("duplicate should update in place: %+v", p.Requests[0])
	}
}

func TestStore_LookupReturnsCopy(t *testing.T) {
	s, _ := New(Options{})
	_ = s.Record("https://a.com/", domain.Request{Type: domain.TypeCSS, URL: "https://b.com/s.css"})
	p, _ := s.Lookup("https://a.com/")
	p.Requests[0].Hostname = "mutated"
	again, _ := s.Lookup("https://a.com/")
	if again.Requests[0].Hostname != "b.com" {
		t.Fatal("Lookup leaked internal state")
	}
}

func TestStore_Bounds(t *testing.T) {
	s, _ := New(Options{Capacity: 2})
	_ = s.Record("https://a.com/", domain.Request{Type: domain.TypeCSS, URL: "https://x.com/"})
	_ = s.Record("https://b.com/", domain.Request{Type: domain.TypeCSS, URL: "https://x.com/"})
	_ = s.Record("https://c.com/", domain.Request{Type: domain.TypeCSS, URL: "https://x.com/"})
	if s.Len() != 2 {
		t.Fatalf("Len = %d", s.Len())
	}
	if _, ok := s.Lookup("https://a.com/"); ok {
		t.Fatal("oldest page should be evicted")
	}
	if !s.Forget("https://b.com/") || s.Forget("https://b.com/") {
		t.Fatal("Forget reported wrong result")
	}
	s.Purge()
	if s.Len() != 0 {
		t.Fatal("Purge left pages")
	}
}

func TestStore_RejectsHostlessPage(t *testing.T) {
	s, _ := New(Options{})
	err := s.Record("about:blank", domain.Request{Type: domain.TypeCSS, URL: "https://x.com/"})
	if !errors.Is(err, ErrNoPageHost) {
		t.Fatalf("expected ErrNoPageHost, got %v", err)
	}
	if _, ok := s.Lookup("unknown"); ok {
		t.Fatal("unknown page found")
	}
}

func TestStore_RejectsReservedHostnames(t *testing.T) {
	s, _ := New(Options{})
	for _, r := range []domain.Request{
		{Type: domain.TypeImage, Hostname: "*"},
		{Type: domain.TypeImage, Hostname: "1st-Party."},
		{Type: domain.TypeScript, URL: "https://1st-party/x.js"},
	} {
		if err := s.Record("https://a.com/", r); !errors.Is(err, ErrReservedHostname) {
			t.Fatalf("Record(%+v): expected ErrReservedHostname, got %v", r, err)
		}
	}
	if err := s.Record("https://1st-party/", domain.Request{Type: domain.TypeCSS, Hostname: "x.com"}); !errors.Is(err, ErrReservedHostname) {
		t.Fatalf("reserved page: expected ErrReservedHostname, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("rejected requests created %d pages", s.Len())
	}
}
