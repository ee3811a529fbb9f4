package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-matrix/internal/matrix/domain"
	"github.com/haukened/rr-matrix/internal/matrix/repos/rules"
	"github.com/haukened/rr-matrix/internal/matrix/services/evaluator"
)

func newPair(t *testing.T) (*rules.Matrix, *rules.Matrix) {
	t.Helper()
	return rules.New(), rules.New()
}

func TestScopes(t *testing.T) {
	assert.Equal(t, []string{"*"}, Scopes(""))
	assert.Equal(t, []string{"*"}, Scopes("*"))
	assert.Equal(t, []string{"www.news.com", "news.com", "*"}, Scopes("WWW.news.com"))
}

func TestDiff_SingleCellScenario(t *testing.T) {
	r := New(nil)
	temp, perm := newPair(t)
	require.NoError(t, temp.SetCell("*", "a.com", domain.TypeImage, domain.Allow))

	d := r.Diff(temp, perm, "", []string{"a.com"})
	require.Len(t, d, 1)
	assert.Equal(t, domain.CellDiff(domain.CellKey{Scope: "*", Hostname: "a.com", Type: domain.TypeImage}), d[0])

	assert.True(t, r.ApplyDiff(d, temp, perm))
	assert.Empty(t, r.Diff(temp, perm, "", []string{"a.com"}))
	assert.False(t, r.ApplyDiff(d, temp, perm), "second apply is a no-op")
}

func TestDiff_IdenticalLayersAreEmpty(t *testing.T) {
	r := New(nil)
	temp, perm := newPair(t)
	for _, m := range []*rules.Matrix{temp, perm} {
		require.NoError(t, m.SetCell("*", "ads.example.com", domain.TypeScript, domain.Block))
		require.NoError(t, m.SetSwitch("news.com", false))
	}
	assert.Empty(t, r.Diff(temp, perm, "www.news.com", []string{"cdn.ads.example.com", "news.com"}))
	assert.False(t, r.ApplyDiff(nil, temp, perm))
}

func TestDiff_InheritedDifferencesAreReported(t *testing.T) {
	r := New(nil)
	temp, perm := newPair(t)
	require.NoError(t, temp.SetCell("*", "example.com", domain.TypeScript, domain.Block))

	d := r.Diff(temp, perm, "", []string{"cdn.example.com"})
	keys := make(map[string]bool)
	for _, e := range d {
		keys[e.String()] = true
	}
	assert.True(t, keys["cell * example.com script"])
	assert.True(t, keys["cell * cdn.example.com script"], "descendant resolves differently")
}

func TestDiff_SwitchEntries(t *testing.T) {
	r := New(nil)
	temp, perm := newPair(t)
	require.NoError(t, temp.SetSwitch("news.com", false))

	d := r.Diff(temp, perm, "www.news.com", nil)
	var sw []string
	for _, e := range d {
		if e.Kind == domain.DiffSwitch {
			sw = append(sw, e.Scope)
		}
	}
	assert.ElementsMatch(t, []string{"www.news.com", "news.com"}, sw)

	assert.True(t, r.ApplyDiff(d, temp, perm))
	on, ok := perm.Switch("news.com")
	assert.True(t, ok)
	assert.False(t, on)
	_, ok = perm.Switch("www.news.com")
	assert.False(t, ok, "only explicit state is copied")
	assert.Empty(t, r.Diff(temp, perm, "www.news.com", nil))
}

func TestDiff_SortedOutput(t *testing.T) {
	r := New(nil)
	temp, perm := newPair(t)
	require.NoError(t, temp.SetCell("*", "b.com", domain.TypeImage, domain.Block))
	require.NoError(t, temp.SetCell("news.com", "a.com", domain.TypeCSS, domain.Block))
	require.NoError(t, temp.SetSwitch("*", false))

	d := r.Diff(temp, perm, "news.com", []string{"a.com", "b.com"})
	require.NotEmpty(t, d)
	for i := 1; i < len(d); i++ {
		assert.False(t, d[i].Less(d[i-1]), "entries out of order at %d", i)
	}
	assert.Equal(t, domain.DiffSwitch, d[len(d)-1].Kind)
}

func TestApplyDiff_RemovesWhenSourceUnset(t *testing.T) {
	r := New(nil)
	perm, temp := newPair(t)
	require.NoError(t, temp.SetCell("*", "a.com", domain.TypeImage, domain.Block))

	// revert: copy perm's absence into temp
	d := r.Diff(perm, temp, "", []string{"a.com"})
	require.NotEmpty(t, d)
	assert.True(t, r.ApplyDiff(d, perm, temp))
	_, ok := temp.Cell(domain.CellKey{Scope: "*", Hostname: "a.com", Type: domain.TypeImage})
	assert.False(t, ok)
}

func TestApplyDiff_ReadsSourceAtApplyTime(t *testing.T) {
	r := New(nil)
	temp, perm := newPair(t)
	require.NoError(t, temp.SetCell("*", "a.com", domain.TypeImage, domain.Block))
	d := r.Diff(temp, perm, "", []string{"a.com"})

	require.NoError(t, temp.SetCell("*", "a.com", domain.TypeImage, domain.Allow))
	assert.True(t, r.ApplyDiff(d, temp, perm))
	h, ok := perm.Cell(domain.CellKey{Scope: "*", Hostname: "a.com", Type: domain.TypeImage})
	assert.True(t, ok)
	assert.Equal(t, domain.Allow, h)
}

func TestApplyDiff_IgnoresMalformed(t *testing.T) {
	r := New(nil)
	temp, perm := newPair(t)
	bad := []domain.DiffEntry{
		{Kind: domain.DiffCell, Scope: "", Hostname: "a.com", Type: domain.TypeImage},
		{Kind: domain.DiffCell, Scope: "*", Hostname: "a..com", Type: domain.TypeImage},
		{Kind: domain.DiffSwitch, Scope: "bad scope"},
	}
	assert.False(t, r.ApplyDiff(bad, temp, perm))
	assert.Equal(t, 0, perm.Len())
}

func TestConvergenceLaw(t *testing.T) {
	r := New(evaluator.Default())
	a, b := newPair(t)
	require.NoError(t, a.SetCell("*", "example.com", domain.TypeScript, domain.Block))
	require.NoError(t, a.SetCell("news.com", "cdn.example.com", domain.TypeScript, domain.Allow))
	require.NoError(t, a.SetCell("*", "*", domain.TypeFrame, domain.Block))
	require.NoError(t, a.SetSwitch("www.news.com", false))
	require.NoError(t, b.SetCell("*", "tracker.net", domain.TypeAny, domain.Block))
	require.NoError(t, b.SetCell("news.com", "example.com", domain.TypeImage, domain.Graylist))
	require.NoError(t, b.SetSwitch("*", true))

	hosts := []string{"cdn.example.com", "img.tracker.net", "1st-party"}
	for _, page := range []string{"", "www.news.com", "other.org"} {
		d := r.Diff(a, b, page, hosts)
		r.ApplyDiff(d, a, b)
		assert.Empty(t, r.Diff(a, b, page, hosts), "page %q", page)
	}
}

func TestFullCloneLaw(t *testing.T) {
	r := New(nil)
	a, b := newPair(t)
	require.NoError(t, a.SetCell("*", "example.com", domain.TypeScript, domain.Block))
	require.NoError(t, a.SetSwitch("news.com", false))
	require.NoError(t, b.SetCell("*", "other.com", domain.TypeCSS, domain.Block))

	r.Assign(b, a)
	assert.True(t, b.Equal(a))
	assert.Empty(t, r.Diff(a, b, "www.news.com", []string{"example.com", "other.com"}))
}
