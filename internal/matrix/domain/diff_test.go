package domain

import (
	"encoding/json"
	"sort"
	"testing"
)

func TestDiffEntry_JSON(t *testing.T) {
	in := []DiffEntry{
		CellDiff(CellKey{Scope: "*", Hostname: "a.com", Type: TypeImage}),
		SwitchDiff("example.com"),
	}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `[{"kind":"cell","scope":"*","hostname":"a.com","type":"image"},{"kind":"switch","scope":"example.com","type":"*"}]`
	if string(b) != want {
		t.Fatalf("json = %s\nwant   %s", b, want)
	}
	var out []DiffEntry
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out[0] != in[0] || out[1] != in[1] {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestDiffKind_Unmarshal(t *testing.T) {
	var k DiffKind
	if err := k.UnmarshalText([]byte("SWITCH")); err != nil || k != DiffSwitch {
		t.Fatalf("got %v %v", k, err)
	}
	if err := k.UnmarshalText([]byte("")); err != nil || k != DiffCell {
		t.Fatalf("empty kind should default to cell, got %v %v", k, err)
	}
	if err := k.UnmarshalText([]byte("row")); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestDiffEntry_Ordering(t *testing.T) {
	entries := []DiffEntry{
		SwitchDiff("*"),
		CellDiff(CellKey{Scope: "*", Hostname: "b.com", Type: TypeAny}),
		CellDiff(CellKey{Scope: "*", Hostname: "a.com", Type: TypeScript}),
		CellDiff(CellKey{Scope: "*", Hostname: "a.com", Type: TypeCookie}),
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Less(entries[j]) })
	got := []string{}
	for _, e := range entries {
		got = append(got, e.String())
	}
	want := []string{"cell * a.com cookie", "cell * a.com script", "cell * b.com *", "switch *"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
