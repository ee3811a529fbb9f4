package rules

import (
	"errors"
	"strings"
	"testing"

	"github.com/haukened/rr-matrix/internal/matrix/domain"
)

func key(scope, host string, t domain.RequestType) domain.CellKey {
	return domain.CellKey{Scope: scope, Hostname: host, Type: t}
}

// setFilter is an exact in-memory BloomFilter for tests.
type setFilter map[string]struct{}

func (s setFilter) Add(k []byte) { s[string(k)] = struct{}{} }

func (s setFilter) MightContain(k []byte) bool {
	_, ok := s[string(k)]
	return ok
}

type setFactory struct{ built int }

func (f *setFactory) New(uint64, float64) BloomFilter {
	f.built++
	return setFilter{}
}

func TestMatrix_SetCellCanonicalizes(t *testing.T) {
	m := New()
	if err := m.SetCell(" Example.COM. ", "ADS.Example.com", domain.TypeScript, domain.Block); err != nil {
		t.Fatalf("SetCell: %v", err)
	}
	h, ok := m.Cell(key("example.com", "ads.example.com", domain.TypeScript))
	if !ok || h != domain.Block {
		t.Fatalf("Cell = %v,%v", h, ok)
	}
	if _, ok := m.Cell(key("example.com", "ads.example.com", domain.TypeImage)); ok {
		t.Fatal("unexpected cell in another column")
	}
}

func TestMatrix_SetCellRejectsMalformed(t *testing.T) {
	m := New()
	_ = m.SetCell("*", "a.com", domain.TypeImage, domain.Allow)
	before := m.Serialize()

	cases := []struct {
		name  string
		scope string
		host  string
		typ   domain.RequestType
		hue   domain.Hue
		want  error
	}{
		{"empty scope", "", "a.com", domain.TypeImage, domain.Block, domain.ErrInvalidScope},
		{"bad scope", "a b", "a.com", domain.TypeImage, domain.Block, domain.ErrInvalidScope},
		{"bad host", "*", "a..com", domain.TypeImage, domain.Block, domain.ErrInvalidHostname},
		{"bad type", "*", "a.com", domain.RequestType(42), domain.Block, domain.ErrInvalidType},
		{"transparent", "*", "a.com", domain.TypeImage, domain.Transparent, domain.ErrInvalidHue},
	}
	for _, tc := range cases {
		err := m.SetCell(tc.scope, tc.host, tc.typ, tc.hue)
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
	if m.Serialize() != before {
		t.Fatalf("matrix mutated by rejected input:\n%s", m.Serialize())
	}
}

func TestMatrix_RemoveCell(t *testing.T) {
	m := New()
	_ = m.SetCell("*", "a.com", domain.TypeImage, domain.Block)
	if !m.RemoveCell("*", "A.com", domain.TypeImage) {
		t.Fatal("expected removal")
	}
	if m.RemoveCell("*", "a.com", domain.TypeImage) {
		t.Fatal("second removal should report false")
	}
	if m.RemoveCell("", "a.com", domain.TypeImage) {
		t.Fatal("malformed removal should report false")
	}
	if m.Len() != 0 {
		t.Fatalf("Len = %d", m.Len())
	}
}

func TestMatrix_GraylistDistinctFromUnset(t *testing.T) {
	m := New()
	_ = m.SetCell("*", "a.com", domain.TypeCSS, domain.Graylist)
	h, ok := m.Cell(key("*", "a.com", domain.TypeCSS))
	if !ok || h != domain.Graylist {
		t.Fatalf("explicit graylist lost: %v,%v", h, ok)
	}
	if _, ok := m.Cell(key("*", "b.com", domain.TypeCSS)); ok {
		t.Fatal("unset cell reported as present")
	}
}

func TestMatrix_Switches(t *testing.T) {
	m := New()
	if _, ok := m.Switch("a.com"); ok {
		t.Fatal("expected no switch")
	}
	if err := m.SetSwitch("A.com", false); err != nil {
		t.Fatalf("SetSwitch: %v", err)
	}
	if on, ok := m.Switch("a.com"); !ok || on {
		t.Fatalf("Switch = %v,%v", on, ok)
	}
	if err := m.ToggleSwitch("a.com", false); err != nil {
		t.Fatalf("ToggleSwitch: %v", err)
	}
	if on, _ := m.Switch("a.com"); !on {
		t.Fatal("toggle should enable")
	}
	if err := m.SetSwitch("bad scope", true); !errors.Is(err, domain.ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}
	if !m.RemoveSwitch("a.com") || m.RemoveSwitch("a.com") {
		t.Fatal("RemoveSwitch reported wrong result")
	}
}

func TestMatrix_AssignFromIsDeepClone(t *testing.T) {
	src := New()
	_ = src.SetCell("*", "a.com", domain.TypeImage, domain.Block)
	_ = src.SetSwitch("b.com", false)
	dst := New()
	_ = dst.SetCell("*", "z.com", domain.TypeCSS, domain.Allow)

	dst.AssignFrom(src)
	if !dst.Equal(src) {
		t.Fatalf("AssignFrom not equal:\n%s\nvs\n%s", dst.Serialize(), src.Serialize())
	}
	_ = src.SetCell("*", "c.com", domain.TypeImage, domain.Block)
	if dst.Equal(src) {
		t.Fatal("clone shares state with source")
	}
}

func TestMatrix_Equal(t *testing.T) {
	a, b := New(), New()
	if !a.Equal(b) {
		t.Fatal("empty matrices should be equal")
	}
	_ = a.SetCell("*", "a.com", domain.TypeImage, domain.Block)
	_ = b.SetCell("*", "a.com", domain.TypeImage, domain.Allow)
	if a.Equal(b) {
		t.Fatal("different hues reported equal")
	}
	_ = b.SetCell("*", "a.com", domain.TypeImage, domain.Block)
	_ = a.SetSwitch("*", true)
	_ = b.SetSwitch("*", false)
	if a.Equal(b) {
		t.Fatal("different switches reported equal")
	}
}

func TestMatrix_SerializeRoundTrip(t *testing.T) {
	m := New()
	_ = m.SetCell("*", "ads.example.com", domain.TypeScript, domain.Block)
	_ = m.SetCell("news.com", "cdn.news.com", domain.TypeAny, domain.Allow)
	_ = m.SetCell("*", "1st-party", domain.TypeAny, domain.Graylist)
	_ = m.SetCell("*", "*", domain.TypeFrame, domain.Block)
	_ = m.SetSwitch("example.org", false)
	_ = m.SetSwitch("*", true)

	text := m.Serialize()
	out := New()
	n, err := out.Deserialize(text)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if n != m.Len() {
		t.Fatalf("accepted %d entries, want %d", n, m.Len())
	}
	if !out.Equal(m) {
		t.Fatalf("round trip mismatch:\n%s\nvs\n%s", out.Serialize(), text)
	}
	if out.Serialize() != text {
		t.Fatal("serialization is not canonical")
	}
}

func TestMatrix_DeserializeReplacesContents(t *testing.T) {
	m := New()
	_ = m.SetCell("*", "old.com", domain.TypeImage, domain.Block)
	n, err := m.Deserialize("* new.com css allow\nnot a rule\n")
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if n != 1 {
		t.Fatalf("accepted %d, want 1", n)
	}
	if _, ok := m.Cell(key("*", "old.com", domain.TypeImage)); ok {
		t.Fatal("old contents survived Deserialize")
	}
	if h, ok := m.Cell(key("*", "new.com", domain.TypeCSS)); !ok || h != domain.Allow {
		t.Fatalf("new cell missing: %v,%v", h, ok)
	}
}

func TestMatrix_DeserializeSkipsOverlongLine(t *testing.T) {
	m := New()
	n, err := m.Deserialize("* a.com image allow\n" + strings.Repeat("x", 2<<20) + "\n* b.com script block\n")
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if n != 2 {
		t.Fatalf("accepted %d, want 2", n)
	}
	if h, ok := m.Cell(key("*", "b.com", domain.TypeScript)); !ok || h != domain.Block {
		t.Fatalf("rule after long line missing: %v,%v", h, ok)
	}
}

func TestMatrix_ReplaceSkipsInvalid(t *testing.T) {
	m := New()
	n := m.Replace(
		[]domain.Rule{
			{CellKey: key("*", "a.com", domain.TypeImage), Hue: domain.Block},
			{CellKey: key("*", "a.com", domain.TypeCSS), Hue: domain.Transparent},
		},
		[]domain.SwitchRule{{Scope: "", Enabled: true}, {Scope: "b.com", Enabled: false}},
	)
	if n != 2 || m.Len() != 2 {
		t.Fatalf("Replace accepted %d, Len %d", n, m.Len())
	}
}

func TestMatrix_ResetAndRules(t *testing.T) {
	m := New()
	_ = m.SetCell("b.com", "x.com", domain.TypeImage, domain.Block)
	_ = m.SetCell("*", "y.com", domain.TypeImage, domain.Block)
	_ = m.SetCell("*", "x.com", domain.TypeScript, domain.Allow)
	rs := m.Rules()
	if len(rs) != 3 || rs[0].Hostname != "x.com" || rs[1].Hostname != "y.com" || rs[2].Scope != "b.com" {
		t.Fatalf("Rules not sorted: %+v", rs)
	}
	m.Reset()
	if m.Len() != 0 || len(m.Rules()) != 0 || len(m.Switches()) != 0 {
		t.Fatal("Reset left state behind")
	}
}

func TestMatrix_PrefilterNeverChangesResults(t *testing.T) {
	f := &setFactory{}
	m := New(WithBloom(f, 0.01))
	if f.built != 1 {
		t.Fatalf("expected prefilter on New, built=%d", f.built)
	}
	_ = m.SetCell("*", "a.com", domain.TypeImage, domain.Block)
	if h, ok := m.Cell(key("*", "a.com", domain.TypeImage)); !ok || h != domain.Block {
		t.Fatalf("prefilter hid a cell: %v,%v", h, ok)
	}
	if _, ok := m.Cell(key("*", "b.com", domain.TypeImage)); ok {
		t.Fatal("prefilter miss reported a cell")
	}

	other := New()
	_ = other.SetCell("*", "c.com", domain.TypeCSS, domain.Allow)
	m.AssignFrom(other)
	if h, ok := m.Cell(key("*", "c.com", domain.TypeCSS)); !ok || h != domain.Allow {
		t.Fatalf("prefilter not rebuilt on AssignFrom: %v,%v", h, ok)
	}
	if _, err := m.Deserialize("* d.com image block\n"); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if _, ok := m.Cell(key("*", "d.com", domain.TypeImage)); !ok {
		t.Fatal("prefilter not rebuilt on Deserialize")
	}
}
