package vulnscan

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kvesta/vulnmap/internal/logger"
	"github.com/kvesta/vulnmap/pkg/cpe"
	"github.com/kvesta/vulnmap/pkg/delta"
	"github.com/kvesta/vulnmap/pkg/generator"
	"github.com/kvesta/vulnmap/pkg/inventory"
	"github.com/kvesta/vulnmap/pkg/vulnlib"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	nginx118 = "cpe:2.3:a:f5:nginx:1.18.0:*:*:*:*:*:*:*"
	nginx120 = "cpe:2.3:a:f5:nginx:1.20.0:*:*:*:*:*:*:*"
	curl768  = "cpe:2.3:a:haxx:curl:7.68.0:*:*:*:*:*:*:*"
	bogusCPE = "cpe:2.3:a:nobody:nothing:0.0:*:*:*:*:*:*:*"
)

type fakeGenerator struct {
	ids   map[string][]string
	err   error
	calls int
	asked [][]string
}

func (g *fakeGenerator) Generate(ctx context.Context, names []string, kind generator.Kind) (map[string][]string, error) {
	g.calls++
	g.asked = append(g.asked, names)
	if g.err != nil {
		return nil, g.err
	}

	out := map[string][]string{}
	for _, n := range names {
		if ids, ok := g.ids[n]; ok {
			out[n] = ids
		}
	}
	return out, nil
}

type fakeFetcher struct {
	records map[string][]vulnlib.Record
	errs    map[string]error
	calls   map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		records: map[string][]vulnlib.Record{},
		errs:    map[string]error{},
		calls:   map[string]int{},
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, id string) ([]vulnlib.Record, error) {
	f.calls[id]++
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	return f.records[id], nil
}

func (f *fakeFetcher) Updated(ctx context.Context, id string, since time.Time) (bool, error) {
	return true, nil
}

func (f *fakeFetcher) total() int {
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func newOrchestrator(t *testing.T, gen generator.Generator, f vulnlib.Refresher) *Orchestrator {
	t.Helper()

	dir := t.TempDir()
	db, err := vulnlib.OpenDB(filepath.Join(dir, "vulnerability_cache.db"))
	require.NoError(t, err)
	store, err := vulnlib.NewStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return &Orchestrator{
		IDs:       cpe.NewCache(filepath.Join(dir, "cpe_cache.json")),
		Vulns:     store,
		Fetcher:   f,
		Generator: gen,
		Log:       logger.Discard(),
	}
}

func snapshot(items ...inventory.Item) *inventory.Snapshot {
	return &inventory.Snapshot{Machine: "web-1", Items: items}
}

var (
	nginxOld = inventory.Item{Name: "nginx", Version: "1.18.0"}
	nginxNew = inventory.Item{Name: "nginx", Version: "1.20.0"}
	curl     = inventory.Item{Name: "curl", Version: "7.68.0"}
)

func TestResolveIdempotent(t *testing.T) {
	gen := &fakeGenerator{ids: map[string][]string{
		"nginx@1.18.0": {nginx118},
		"curl@7.68.0":  {curl768},
	}}
	f := newFakeFetcher()
	f.records[nginx118] = []vulnlib.Record{{ID: "CVE-2021-23017", Published: "2021-06-01T14:15:09.143"}}
	o := newOrchestrator(t, gen, f)

	snap := snapshot(nginxOld, curl)

	first, err := o.Resolve(context.Background(), "web-1", delta.Detect(nil, snap), generator.Software)
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, 2, f.total())
	assert.Empty(t, first.Incomplete)

	second, err := o.Resolve(context.Background(), "web-1", delta.Detect(snap, snap), generator.Software)
	require.NoError(t, err)
	assert.Equal(t, 1, gen.calls, "no generation for unchanged items")
	assert.Equal(t, 2, f.total(), "no fetch for cached identifiers")

	assert.Equal(t, first.Vulnerabilities, second.Vulnerabilities)
	assert.Equal(t, first.Identifiers, second.Identifiers)
	assert.Contains(t, second.Vulnerabilities, curl768, "empty entries are still hits")
	assert.Empty(t, second.Vulnerabilities[curl768])
	assert.Equal(t, 2, second.Stats.CacheHits)
}

func TestResolveVersionBump(t *testing.T) {
	gen := &fakeGenerator{ids: map[string][]string{
		"nginx@1.18.0": {nginx118},
		"nginx@1.20.0": {nginx120},
		"curl@7.68.0":  {curl768},
	}}
	f := newFakeFetcher()
	o := newOrchestrator(t, gen, f)

	prev := snapshot(nginxOld, curl)
	_, err := o.Resolve(context.Background(), "web-1", delta.Detect(nil, prev), generator.Software)
	require.NoError(t, err)

	cur := snapshot(nginxNew, curl)
	d := delta.Detect(prev, cur)
	require.Equal(t, []inventory.Item{nginxNew}, d.New)

	res, err := o.Resolve(context.Background(), "web-1", d, generator.Software)
	require.NoError(t, err)

	assert.Equal(t, []string{"nginx@1.20.0"}, gen.asked[1])
	assert.Equal(t, 1, f.calls[nginx120])
	assert.Equal(t, 1, f.calls[curl768])
	assert.Equal(t, map[string][]string{
		"nginx@1.20.0": {nginx120},
		"curl@7.68.0":  {curl768},
	}, res.Identifiers)
}

func TestResolveNotFoundNeverRequeried(t *testing.T) {
	gen := &fakeGenerator{ids: map[string][]string{
		"nginx@1.18.0": {bogusCPE, nginx118},
	}}
	f := newFakeFetcher()
	f.errs[bogusCPE] = &vulnlib.QueryError{Kind: vulnlib.KindNotFound, CPE: bogusCPE}
	o := newOrchestrator(t, gen, f)

	snap := snapshot(nginxOld)
	res, err := o.Resolve(context.Background(), "web-1", delta.Detect(nil, snap), generator.Software)
	require.NoError(t, err)

	assert.True(t, o.IDs.Invalid(bogusCPE))
	assert.NotContains(t, res.Vulnerabilities, bogusCPE)
	assert.Equal(t, 1, res.Stats.NotFound)
	assert.Empty(t, res.Incomplete)

	// force regenerates the same candidate, it must stay invalid
	o.Force = true
	_, err = o.Resolve(context.Background(), "web-1", delta.Detect(snap, snap), generator.Software)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls[bogusCPE])
	assert.Equal(t, 2, f.calls[nginx118])

	_, found, err := o.Vulns.Get(bogusCPE)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResolveInvalidUnderAnotherName(t *testing.T) {
	gen := &fakeGenerator{ids: map[string][]string{
		"nginx-core@1.18.0": {bogusCPE},
	}}
	f := newFakeFetcher()
	o := newOrchestrator(t, gen, f)
	o.IDs.MarkInvalid("nginx@1.18.0", bogusCPE)

	_, err := o.Resolve(context.Background(), "web-1",
		delta.Detect(nil, snapshot(inventory.Item{Name: "nginx-core", Version: "1.18.0"})), generator.Software)
	require.NoError(t, err)

	assert.Zero(t, f.total())
	assert.Empty(t, o.IDs.Lookup("nginx-core@1.18.0"))
}

func TestResolveRejectsMalformed(t *testing.T) {
	gen := &fakeGenerator{ids: map[string][]string{
		"curl@7.68.0": {"cpe:2.3:a:haxx:curl", curl768},
	}}
	f := newFakeFetcher()
	o := newOrchestrator(t, gen, f)

	res, err := o.Resolve(context.Background(), "web-1", delta.Detect(nil, snapshot(curl)), generator.Software)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.Rejected)
	assert.True(t, o.IDs.Invalid("cpe:2.3:a:haxx:curl"))
	assert.Equal(t, map[string]int{curl768: 1}, f.calls)
}

func TestResolveGenerationFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("overloaded")}
	f := newFakeFetcher()
	o := newOrchestrator(t, gen, f)

	snap := snapshot(nginxOld, curl)
	res, err := o.Resolve(context.Background(), "web-1", delta.Detect(nil, snap), generator.Software)
	require.NoError(t, err)

	assert.Equal(t, []string{"nginx@1.18.0", "curl@7.68.0"}, res.Incomplete)
	assert.Zero(t, f.total())
	assert.Zero(t, o.IDs.Len())

	// retried on the next run
	gen.err = nil
	gen.ids = map[string][]string{"curl@7.68.0": {curl768}}
	res, err = o.Resolve(context.Background(), "web-1", delta.Detect(snap, snap), generator.Software)
	require.NoError(t, err)
	assert.Equal(t, 2, gen.calls)
	assert.Contains(t, res.Vulnerabilities, curl768)
}

func TestResolveTransientFailure(t *testing.T) {
	gen := &fakeGenerator{ids: map[string][]string{"curl@7.68.0": {curl768}}}
	f := newFakeFetcher()
	f.errs[curl768] = &vulnlib.QueryError{Kind: vulnlib.KindRateLimited, CPE: curl768}
	o := newOrchestrator(t, gen, f)

	res, err := o.Resolve(context.Background(), "web-1", delta.Detect(nil, snapshot(curl)), generator.Software)
	require.NoError(t, err)

	assert.Equal(t, []string{"curl@7.68.0"}, res.Incomplete)
	assert.NotContains(t, res.Vulnerabilities, curl768)
	assert.Equal(t, []string{curl768}, o.IDs.Lookup("curl@7.68.0"), "identifier stays valid")

	_, found, err := o.Vulns.Get(curl768)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestResolveForceFallsBackToCache(t *testing.T) {
	f := newFakeFetcher()
	o := newOrchestrator(t, nil, f)

	cached := []vulnlib.Record{{ID: "CVE-2020-8177"}}
	o.IDs.Store("curl@7.68.0", []string{curl768})
	require.NoError(t, o.Vulns.Put(curl768, cached))

	o.Force = true
	f.errs[curl768] = &vulnlib.QueryError{Kind: vulnlib.KindUnavailable, CPE: curl768}

	snap := snapshot(curl)
	res, err := o.Resolve(context.Background(), "web-1", delta.Detect(snap, snap), generator.Software)
	require.NoError(t, err)

	assert.Equal(t, 1, f.calls[curl768])
	assert.Equal(t, cached, res.Vulnerabilities[curl768])
	assert.Empty(t, res.Incomplete)
	assert.Equal(t, 1, res.Stats.Failed)
}

func TestResolveHardware(t *testing.T) {
	hw := inventory.Item{Name: "model_name", Version: "Intel(R) Xeon(R) CPU E5-2680 v4"}
	xeon := "cpe:2.3:h:intel:xeon_e5-2680_v4:-:*:*:*:*:*:*:*"

	gen := &fakeGenerator{ids: map[string][]string{"model_name: Intel(R) Xeon(R) CPU E5-2680 v4": {xeon}}}
	f := newFakeFetcher()
	o := newOrchestrator(t, gen, f)

	cur := &inventory.Snapshot{Machine: "web-1", Hardware: []inventory.Item{hw}}
	res, err := o.Resolve(context.Background(), "web-1", delta.Hardware(nil, cur), generator.Hardware)
	require.NoError(t, err)

	assert.Contains(t, res.Vulnerabilities, xeon)
	assert.Equal(t, 1, f.calls[xeon])
}

func TestResolveCancelled(t *testing.T) {
	gen := &fakeGenerator{ids: map[string][]string{"curl@7.68.0": {curl768}}}
	o := newOrchestrator(t, gen, newFakeFetcher())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Resolve(ctx, "web-1", delta.Detect(nil, snapshot(curl)), generator.Software)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFromCache(t *testing.T) {
	o := newOrchestrator(t, nil, newFakeFetcher())
	o.IDs.Store("curl@7.68.0", []string{curl768})
	require.NoError(t, o.Vulns.Put(curl768, []vulnlib.Record{{ID: "CVE-2020-8177"}}))
	o.IDs.Store("nginx@1.18.0", []string{nginx118})
	o.IDs.Store("bash@5.0", nil)

	items := []inventory.Item{curl, nginxOld, {Name: "bash", Version: "5.0"}, {Name: "zlib", Version: "1.2.11"}}
	res, err := o.FromCache(items, generator.Software)
	require.NoError(t, err)

	assert.Equal(t, []vulnlib.Record{{ID: "CVE-2020-8177"}}, res.Vulnerabilities[curl768])
	assert.Equal(t, []string{"nginx@1.18.0", "zlib@1.2.11"}, res.Incomplete,
		"generated without result is complete, never generated is not")
}

func TestResolveRecordsEmptyGeneration(t *testing.T) {
	gen := &fakeGenerator{ids: map[string][]string{}}
	o := newOrchestrator(t, gen, newFakeFetcher())

	res, err := o.Resolve(context.Background(), "web-1", delta.Detect(nil, snapshot(curl)), generator.Software)
	require.NoError(t, err)

	assert.Empty(t, res.Incomplete)
	assert.True(t, o.IDs.Has("curl@7.68.0"))
	assert.Empty(t, o.IDs.Lookup("curl@7.68.0"))
}

func TestSyncDropsInvalid(t *testing.T) {
	f := newFakeFetcher()
	f.records[curl768] = []vulnlib.Record{{ID: "CVE-2020-8177"}}
	o := newOrchestrator(t, nil, f)

	require.NoError(t, o.Vulns.Put(curl768, nil))
	require.NoError(t, o.Vulns.Put(bogusCPE, nil))
	o.IDs.MarkInvalid("x@1", bogusCPE)

	n, err := o.Sync(context.Background(), -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	records, _, err := o.Vulns.Get(curl768)
	require.NoError(t, err)
	assert.Equal(t, f.records[curl768], records)

	_, found, err := o.Vulns.Get(bogusCPE)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSyncRetiresNotFound(t *testing.T) {
	f := newFakeFetcher()
	f.errs[curl768] = &vulnlib.QueryError{Kind: vulnlib.KindNotFound, CPE: curl768}
	o := newOrchestrator(t, nil, f)

	o.IDs.Store("curl@7.68.0", []string{curl768})
	o.IDs.Store("curl-minimal@7.68.0", []string{curl768})
	require.NoError(t, o.Vulns.Put(curl768, nil))

	n, err := o.Sync(context.Background(), -time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.True(t, o.IDs.Invalid(curl768))
	assert.Empty(t, o.IDs.Lookup("curl@7.68.0"))
	assert.Empty(t, o.IDs.Lookup("curl-minimal@7.68.0"))

	_, found, err := o.Vulns.Get(curl768)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFlush(t *testing.T) {
	o := newOrchestrator(t, nil, newFakeFetcher())
	o.IDs.Store("curl@7.68.0", []string{curl768})
	require.NoError(t, o.Vulns.Put(curl768, nil))

	require.NoError(t, o.Flush())

	assert.Zero(t, o.IDs.Len())
	n, err := o.Vulns.Count()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestResultMerge(t *testing.T) {
	a := newResult()
	a.Incomplete = []string{"a@1"}
	a.Stats.Fetched = 1

	b := newResult()
	b.Vulnerabilities[curl768] = nil
	b.Incomplete = []string{"a@1", "vendor: Dell"}
	b.Stats.Fetched = 2

	a.Merge(b)
	assert.Equal(t, []string{"a@1", "vendor: Dell"}, a.Incomplete)
	assert.Equal(t, 3, a.Stats.Fetched)
	assert.Contains(t, a.Vulnerabilities, curl768)
}

func TestResolveBatches(t *testing.T) {
	snap := snapshot(nginxOld, curl, inventory.Item{Name: "bash", Version: "5.0"})

	tests := []struct {
		name      string
		batchSize int
		want      [][]string
	}{
		{
			name: "one request by default",
			want: [][]string{{"nginx@1.18.0", "curl@7.68.0", "bash@5.0"}},
		},
		{
			name:      "split when capped",
			batchSize: 2,
			want:      [][]string{{"nginx@1.18.0", "curl@7.68.0"}, {"bash@5.0"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{ids: map[string][]string{}}
			o := newOrchestrator(t, gen, newFakeFetcher())
			o.BatchSize = tt.batchSize

			_, err := o.Resolve(context.Background(), "web-1", delta.Detect(nil, snap), generator.Software)
			require.NoError(t, err)

			assert.Equal(t, tt.want, gen.asked)
		})
	}
}

func TestGenerateBeforeFetch(t *testing.T) {
	gen := &fakeGenerator{ids: map[string][]string{
		"curl@7.68.0":       {curl768},
		"vendor: Dell Inc.": {"cpe:2.3:h:dell:poweredge_r740:-:*:*:*:*:*:*:*"},
	}}
	f := newFakeFetcher()
	o := newOrchestrator(t, gen, f)

	sw, err := o.Generate(context.Background(), "web-1", delta.Detect(nil, snapshot(curl)), generator.Software)
	require.NoError(t, err)
	hwCur := &inventory.Snapshot{Machine: "web-1", Hardware: []inventory.Item{{Name: "vendor", Version: "Dell Inc."}}}
	hw, err := o.Generate(context.Background(), "web-1", delta.Hardware(nil, hwCur), generator.Hardware)
	require.NoError(t, err)

	assert.Equal(t, 2, gen.calls)
	assert.Zero(t, f.total(), "generation makes no lookups")

	res, err := o.Fetch(context.Background(), sw)
	require.NoError(t, err)
	hwRes, err := o.Fetch(context.Background(), hw)
	require.NoError(t, err)
	res.Merge(hwRes)

	assert.Equal(t, 2, f.total())
	assert.Equal(t, 2, res.Stats.Generated)
	assert.Len(t, res.Identifiers, 2)
}

func TestChunk(t *testing.T) {
	assert.Nil(t, chunk(nil, 3))
	assert.Equal(t, [][]string{{"a", "b"}, {"c"}}, chunk([]string{"a", "b", "c"}, 2))
	assert.Equal(t, [][]string{{"a", "b"}}, chunk([]string{"a", "b"}, 2))
	assert.Equal(t, [][]string{{"a", "b", "c"}}, chunk([]string{"a", "b", "c"}, 0))
}
