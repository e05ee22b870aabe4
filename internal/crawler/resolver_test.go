package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/romangod6/sitemap-extractor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves canned documents keyed by URL.
type fakeFetcher struct {
	mu    sync.Mutex
	docs  map[string]string
	errs  map[string]error
	calls []string
	delay time.Duration
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{docs: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	if err, ok := f.errs[rawURL]; ok {
		return nil, err
	}
	doc, ok := f.docs[rawURL]
	if !ok {
		return nil, &FetchError{URL: rawURL, StatusCode: http.StatusNotFound, Err: errors.New("not found")}
	}
	return []byte(doc), nil
}

func urlset(locs ...string) string {
	var b strings.Builder
	b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, loc := range locs {
		fmt.Fprintf(&b, "<url><loc>%s</loc></url>", loc)
	}
	b.WriteString("</urlset>")
	return b.String()
}

func index(locs ...string) string {
	var b strings.Builder
	b.WriteString(`<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	for _, loc := range locs {
		fmt.Fprintf(&b, "<sitemap><loc>%s</loc></sitemap>", loc)
	}
	b.WriteString("</sitemapindex>")
	return b.String()
}

func entryURLs(entries []models.SitemapEntry) []string {
	urls := make([]string, 0, len(entries))
	for _, e := range entries {
		urls = append(urls, e.URL)
	}
	return urls
}

func TestResolveLeafSitemap(t *testing.T) {
	f := newFakeFetcher()
	f.docs["https://example.com/sitemap.xml"] = urlset("https://example.com/a", "https://example.com/b", "https://example.com/c")

	result, err := NewResolver(f, nil, Options{}).Resolve(context.Background(), "https://example.com/sitemap.xml")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}, entryURLs(result.Entries))
	assert.Equal(t, 1, result.SitemapsFetched)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, "https://example.com/sitemap.xml", result.RootURL)
}

func TestResolveIndexTwoChildren(t *testing.T) {
	f := newFakeFetcher()
	f.docs["https://example.com/index.xml"] = index("https://example.com/s1.xml", "https://example.com/s2.xml")
	f.docs["https://example.com/s1.xml"] = urlset("https://example.com/one")
	f.docs["https://example.com/s2.xml"] = urlset("https://example.com/two")

	result, err := NewResolver(f, nil, Options{}).Resolve(context.Background(), "https://example.com/index.xml")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/one", "https://example.com/two"}, entryURLs(result.Entries))
	assert.Equal(t, []string{
		"https://example.com/index.xml",
		"https://example.com/s1.xml",
		"https://example.com/s2.xml",
	}, f.calls)
	assert.Equal(t, 3, result.SitemapsFetched)
}

func TestResolveNestedIndexPreservesOrder(t *testing.T) {
	f := newFakeFetcher()
	f.docs["https://example.com/root.xml"] = index("https://example.com/a.xml", "https://example.com/nested.xml", "https://example.com/d.xml")
	f.docs["https://example.com/a.xml"] = urlset("https://example.com/a1", "https://example.com/a2")
	f.docs["https://example.com/nested.xml"] = index("https://example.com/b.xml", "https://example.com/c.xml")
	f.docs["https://example.com/b.xml"] = urlset("https://example.com/b1")
	f.docs["https://example.com/c.xml"] = urlset("https://example.com/c1", "https://example.com/a1")
	f.docs["https://example.com/d.xml"] = urlset("https://example.com/d1")

	result, err := NewResolver(f, nil, Options{}).Resolve(context.Background(), "https://example.com/root.xml")
	require.NoError(t, err)

	// duplicate page URLs across child sitemaps are kept
	assert.Equal(t, []string{
		"https://example.com/a1",
		"https://example.com/a2",
		"https://example.com/b1",
		"https://example.com/c1",
		"https://example.com/a1",
		"https://example.com/d1",
	}, entryURLs(result.Entries))
}

func TestResolveIsIdempotent(t *testing.T) {
	f := newFakeFetcher()
	f.docs["https://example.com/index.xml"] = index("https://example.com/s1.xml", "https://example.com/s2.xml")
	f.docs["https://example.com/s1.xml"] = urlset("https://example.com/one", "https://example.com/three")
	f.docs["https://example.com/s2.xml"] = urlset("https://example.com/two")

	resolver := NewResolver(f, nil, Options{})
	first, err := resolver.Resolve(context.Background(), "https://example.com/index.xml")
	require.NoError(t, err)
	second, err := resolver.Resolve(context.Background(), "https://example.com/index.xml")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestResolveRootFailures(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		err    error
		target interface{}
	}{
		{name: "fetch", err: &FetchError{URL: "https://example.com/sitemap.xml", StatusCode: 500}, target: new(*FetchError)},
		{name: "parse", doc: "<urlset><url>", target: new(*ParseError)},
		{name: "format", doc: "<html><body/></html>", target: new(*FormatError)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFetcher()
			if tt.err != nil {
				f.errs["https://example.com/sitemap.xml"] = tt.err
			} else {
				f.docs["https://example.com/sitemap.xml"] = tt.doc
			}

			result, err := NewResolver(f, nil, Options{}).Resolve(context.Background(), "https://example.com/sitemap.xml")
			assert.Nil(t, result)
			assert.ErrorAs(t, err, tt.target)
			assert.Contains(t, err.Error(), "https://example.com/sitemap.xml")
		})
	}
}

func TestResolveInvalidRootURL(t *testing.T) {
	f := newFakeFetcher()
	_, err := NewResolver(f, nil, Options{}).Resolve(context.Background(), "example.com/sitemap.xml")

	assert.ErrorIs(t, err, ErrInvalidURL)
	assert.Empty(t, f.calls)
}

func TestResolveSkipsFailingChild(t *testing.T) {
	f := newFakeFetcher()
	f.docs["https://example.com/index.xml"] = index(
		"https://example.com/s1.xml",
		"https://example.com/missing.xml",
		"https://example.com/broken.xml",
		"https://example.com/s2.xml",
	)
	f.docs["https://example.com/s1.xml"] = urlset("https://example.com/one")
	f.docs["https://example.com/broken.xml"] = "<urlset><url>"
	f.docs["https://example.com/s2.xml"] = urlset("https://example.com/two")

	result, err := NewResolver(f, nil, Options{FailurePolicy: FailureSkip}).Resolve(context.Background(), "https://example.com/index.xml")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/one", "https://example.com/two"}, entryURLs(result.Entries))
	require.Len(t, result.Skipped, 2)
	assert.Equal(t, "https://example.com/missing.xml", result.Skipped[0].URL)
	assert.Equal(t, 1, result.Skipped[0].Depth)
	assert.Contains(t, result.Skipped[0].Reason, "404")
	assert.Equal(t, "https://example.com/broken.xml", result.Skipped[1].URL)
	assert.Contains(t, result.Skipped[1].Reason, "malformed XML")
}

func TestResolveAbortsOnFailingChild(t *testing.T) {
	f := newFakeFetcher()
	f.docs["https://example.com/index.xml"] = index("https://example.com/s1.xml", "https://example.com/missing.xml", "https://example.com/s2.xml")
	f.docs["https://example.com/s1.xml"] = urlset("https://example.com/one")
	f.docs["https://example.com/s2.xml"] = urlset("https://example.com/two")

	result, err := NewResolver(f, nil, Options{FailurePolicy: FailureAbort}).Resolve(context.Background(), "https://example.com/index.xml")
	assert.Nil(t, result)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "https://example.com/missing.xml", fetchErr.URL)
	assert.NotContains(t, f.calls, "https://example.com/s2.xml")
}

func TestResolveMaxDepth(t *testing.T) {
	f := newFakeFetcher()
	f.docs["https://example.com/root.xml"] = index("https://example.com/level1.xml")
	f.docs["https://example.com/level1.xml"] = index("https://example.com/level2.xml")
	f.docs["https://example.com/level2.xml"] = urlset("https://example.com/deep")

	result, err := NewResolver(f, nil, Options{MaxDepth: 1}).Resolve(context.Background(), "https://example.com/root.xml")
	require.NoError(t, err)

	assert.Empty(t, result.Entries)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "https://example.com/level2.xml", result.Skipped[0].URL)
	assert.Equal(t, 2, result.Skipped[0].Depth)
	assert.Equal(t, ErrMaxDepthExceeded.Error(), result.Skipped[0].Reason)
	assert.NotContains(t, f.calls, "https://example.com/level2.xml")

	result, err = NewResolver(f, nil, Options{MaxDepth: 2}).Resolve(context.Background(), "https://example.com/root.xml")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/deep"}, entryURLs(result.Entries))
}

func TestResolveMaxDepthAbort(t *testing.T) {
	f := newFakeFetcher()
	f.docs["https://example.com/root.xml"] = index("https://example.com/level1.xml")
	f.docs["https://example.com/level1.xml"] = index("https://example.com/level2.xml")

	_, err := NewResolver(f, nil, Options{MaxDepth: 1, FailurePolicy: FailureAbort}).Resolve(context.Background(), "https://example.com/root.xml")
	assert.ErrorIs(t, err, ErrMaxDepthExceeded)
}

func TestResolveCycle(t *testing.T) {
	f := newFakeFetcher()
	f.docs["https://example.com/a.xml"] = index("https://example.com/b.xml", "https://example.com/leaf.xml")
	f.docs["https://example.com/b.xml"] = index("https://example.com/a.xml")
	f.docs["https://example.com/leaf.xml"] = urlset("https://example.com/page")

	result, err := NewResolver(f, nil, Options{MaxDepth: 50, FailurePolicy: FailureAbort}).Resolve(context.Background(), "https://example.com/a.xml")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/page"}, entryURLs(result.Entries))
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "https://example.com/a.xml", result.Skipped[0].URL)
	assert.Equal(t, ErrAlreadyVisited.Error(), result.Skipped[0].Reason)
	assert.Len(t, f.calls, 3)
}

func TestResolveMaxEntries(t *testing.T) {
	f := newFakeFetcher()
	f.docs["https://example.com/index.xml"] = index("https://example.com/s1.xml", "https://example.com/s2.xml")
	f.docs["https://example.com/s1.xml"] = urlset("https://example.com/1", "https://example.com/2")
	f.docs["https://example.com/s2.xml"] = urlset("https://example.com/3", "https://example.com/4")

	result, err := NewResolver(f, nil, Options{MaxEntries: 3}).Resolve(context.Background(), "https://example.com/index.xml")
	require.NoError(t, err)

	assert.True(t, result.Truncated)
	assert.Equal(t, []string{"https://example.com/1", "https://example.com/2", "https://example.com/3"}, entryURLs(result.Entries))
}

func TestResolveConcurrentPrefetchKeepsOrder(t *testing.T) {
	f := newFakeFetcher()
	f.delay = 10 * time.Millisecond

	var children []string
	var want []string
	for i := 0; i < 8; i++ {
		child := fmt.Sprintf("https://example.com/s%d.xml", i)
		page := fmt.Sprintf("https://example.com/page-%d", i)
		children = append(children, child)
		want = append(want, page)
		f.docs[child] = urlset(page)
	}
	f.docs["https://example.com/index.xml"] = index(children...)

	sequential, err := NewResolver(f, nil, Options{}).Resolve(context.Background(), "https://example.com/index.xml")
	require.NoError(t, err)

	parallel, err := NewResolver(f, nil, Options{Concurrency: 4}).Resolve(context.Background(), "https://example.com/index.xml")
	require.NoError(t, err)

	assert.Equal(t, want, entryURLs(parallel.Entries))
	assert.Equal(t, sequential, parallel)
}

func TestResolveCancelledContext(t *testing.T) {
	f := newFakeFetcher()
	f.docs["https://example.com/sitemap.xml"] = urlset("https://example.com/a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewResolver(f, nil, Options{}).Resolve(ctx, "https://example.com/sitemap.xml")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseFailurePolicy(t *testing.T) {
	p, err := ParseFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, FailureSkip, p)

	p, err = ParseFailurePolicy(" ABORT ")
	require.NoError(t, err)
	assert.Equal(t, FailureAbort, p)

	_, err = ParseFailurePolicy("retry")
	assert.Error(t, err)
}

func TestNewResolverDefaults(t *testing.T) {
	opts := NewResolver(newFakeFetcher(), nil, Options{MaxDepth: -1, Concurrency: 0, MaxEntries: -5}).Options()
	assert.Equal(t, DefaultMaxDepth, opts.MaxDepth)
	assert.Equal(t, FailureSkip, opts.FailurePolicy)
	assert.Equal(t, 1, opts.Concurrency)
	assert.Equal(t, 0, opts.MaxEntries)
}

func TestResolveOverHTTP(t *testing.T) {
	mux := http.NewServeMux()
	var base string
	mux.HandleFunc("/sitemap-index.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, index(base+"/pages.xml", base+"/gone.xml", base+"/posts.xml"))
	})
	mux.HandleFunc("/pages.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<urlset><url><loc>https://example.com/a</loc><lastmod>2024-01-01</lastmod></url></urlset>`)
	})
	mux.HandleFunc("/posts.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<urlset><url><loc>https://example.com/b</loc></url></urlset>`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()
	base = ts.URL

	result, err := NewResolver(newTestCollector(), nil, Options{}).Resolve(context.Background(), ts.URL+"/sitemap-index.xml")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b"}, entryURLs(result.Entries))
	require.NotNil(t, result.Entries[0].LastModified)
	assert.Nil(t, result.Entries[1].LastModified)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, ts.URL+"/gone.xml", result.Skipped[0].URL)
}
