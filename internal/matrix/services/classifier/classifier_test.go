package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-matrix/internal/matrix/domain"
	"github.com/haukened/rr-matrix/internal/matrix/repos/pagestore"
	"github.com/haukened/rr-matrix/internal/matrix/repos/rules"
	"github.com/haukened/rr-matrix/internal/matrix/services/snapshot"
)

func build(t *testing.T, temp *rules.Matrix, reqs ...domain.Request) *snapshot.Snapshot {
	t.Helper()
	p := &pagestore.Page{URL: "https://www.news.com/", Hostname: "www.news.com", Domain: "news.com", Requests: reqs}
	return snapshot.New(nil, nil).Aggregate(p, temp, rules.New(), domain.ScopeGlobal)
}

func req(typ domain.RequestType, host string) domain.Request {
	return domain.Request{Type: typ, Hostname: host, URL: "https://" + host + "/" + typ.String()}
}

func TestClassify_Buckets(t *testing.T) {
	temp := rules.New()
	require.NoError(t, temp.SetCell("*", "allowed.com", domain.TypeAny, domain.Allow))
	require.NoError(t, temp.SetCell("*", "blocked.com", domain.TypeAny, domain.Block))
	require.NoError(t, temp.SetCell("*", "cdn.mixed.com", domain.TypeAny, domain.Allow))
	require.NoError(t, temp.SetCell("*", "ads.tracker.net", domain.TypeAny, domain.Block))

	s := build(t, temp,
		req(domain.TypeScript, "www.news.com"),
		req(domain.TypeImage, "img.allowed.com"),
		req(domain.TypeScript, "blocked.com"),
		req(domain.TypeScript, "cdn.mixed.com"),
		req(domain.TypeScript, "ads.tracker.net"),
		req(domain.TypeCSS, "static.neutral.org"),
	)
	g := Classify(s)

	assert.Equal(t, GroupFirstParty, g.GroupOf("1st-party"))
	assert.Equal(t, GroupPageDomain, g.GroupOf("news.com"))
	assert.Equal(t, GroupAllowed, g.GroupOf("allowed.com"))
	assert.Equal(t, GroupBlocked, g.GroupOf("blocked.com"))
	assert.Equal(t, GroupAllowed, g.GroupOf("mixed.com"), "an allowed hostname promotes its domain")
	assert.Equal(t, GroupBlocked, g.GroupOf("tracker.net"))
	assert.Equal(t, GroupNeutral, g.GroupOf("neutral.org"))
	assert.Equal(t, -1, g.GroupOf("*"))

	require.Len(t, g[GroupPageDomain], 1)
	assert.Equal(t, []string{"news.com", "www.news.com"}, g[GroupPageDomain][0].Hostnames)
}

func TestClassify_TrafficBeatsDescendantBlock(t *testing.T) {
	temp := rules.New()
	require.NoError(t, temp.SetCell("*", "ads.site.com", domain.TypeAny, domain.Block))
	s := build(t, temp,
		req(domain.TypeScript, "ads.site.com"),
		req(domain.TypeImage, "img.site.com"),
	)
	assert.Equal(t, GroupNeutral, Classify(s).GroupOf("site.com"))
}

func TestClassify_EmptySnapshot(t *testing.T) {
	g := Classify(snapshot.Empty())
	for i := range g {
		assert.Empty(t, g[i])
	}
}

func TestClassifier_Memoizes(t *testing.T) {
	temp := rules.New()
	c := New()
	s := build(t, temp, req(domain.TypeScript, "x.com"))
	first := c.Classify(s)
	assert.Equal(t, GroupNeutral, first.GroupOf("x.com"))

	// same row set: the previous grouping is kept even though rules changed
	require.NoError(t, temp.SetCell("*", "x.com", domain.TypeAny, domain.Block))
	s2 := build(t, temp, req(domain.TypeScript, "x.com"))
	assert.Equal(t, first, c.Classify(s2))

	c.Reset()
	assert.Equal(t, GroupBlocked, c.Classify(s2).GroupOf("x.com"))

	s3 := build(t, temp, req(domain.TypeScript, "x.com"), req(domain.TypeCSS, "y.com"))
	assert.Equal(t, GroupNeutral, c.Classify(s3).GroupOf("y.com"))
}
