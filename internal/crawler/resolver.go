package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/romangod6/sitemap-extractor/internal/models"
)

const DefaultMaxDepth = 5

type FailurePolicy string

const (
	// FailureSkip records a failing child sitemap and continues with its siblings.
	FailureSkip FailurePolicy = "skip"
	// FailureAbort stops the whole extraction on the first failing child.
	FailureAbort FailurePolicy = "abort"
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FailureSkip:
		return FailureSkip, nil
	case FailureAbort:
		return FailureAbort, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// Options are scoped to one Resolver; build a new Resolver per request
// when they vary.
type Options struct {
	// MaxDepth bounds how many sitemap-index levels are followed below the
	// root. Zero or negative selects DefaultMaxDepth.
	MaxDepth      int
	FailurePolicy FailurePolicy
	// Concurrency > 1 prefetches the children of an index in parallel.
	// Output order is unaffected.
	Concurrency int
	// MaxEntries stops the walk once this many entries are collected. Zero means no limit.
	MaxEntries int
}

type Logger interface {
	LogInfo(format string, v ...interface{})
	LogError(format string, v ...interface{})
	LogDebug(format string, v ...interface{})
}

type nopLogger struct{}

func (nopLogger) LogInfo(string, ...interface{})  {}
func (nopLogger) LogError(string, ...interface{}) {}
func (nopLogger) LogDebug(string, ...interface{}) {}

type Resolver struct {
	fetcher Fetcher
	logger  Logger
	opts    Options
}

func NewResolver(fetcher Fetcher, logger Logger, opts Options) *Resolver {
	if logger == nil {
		logger = nopLogger{}
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.FailurePolicy == "" {
		opts.FailurePolicy = FailureSkip
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxEntries < 0 {
		opts.MaxEntries = 0
	}

	return &Resolver{
		fetcher: fetcher,
		logger:  logger,
		opts:    opts,
	}
}

func (r *Resolver) Options() Options {
	return r.opts
}

// pending is one sitemap on the worklist. body/err are set when the
// document was prefetched together with its siblings.
type pending struct {
	url     string
	depth   int
	fetched bool
	body    []byte
	err     error
}

// Resolve walks the sitemap tree rooted at rootURL and returns every entry
// in document order: an index contributes the concatenation of its
// children's results in index order. Any failure on the root aborts the
// run; child failures follow the configured FailurePolicy.
func (r *Resolver) Resolve(ctx context.Context, rootURL string) (*models.ExtractionResult, error) {
	rootURL = strings.TrimSpace(rootURL)
	if err := ValidateURL(rootURL); err != nil {
		return nil, &FetchError{URL: rootURL, Err: err}
	}

	result := &models.ExtractionResult{
		RootURL: rootURL,
		Entries: []models.SitemapEntry{},
	}

	visited := make(map[string]bool)

	// LIFO worklist; children are pushed in reverse so they pop in index order
	stack := []*pending{{url: rootURL}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[item.url] {
			r.skip(result, item, ErrAlreadyVisited)
			continue
		}
		visited[item.url] = true

		doc, err := r.load(ctx, item)
		if err != nil {
			if item.depth == 0 {
				r.logger.LogError("Failed to load root sitemap %s: %v", item.url, err)
				return nil, err
			}
			if err := r.childFailed(result, item, err); err != nil {
				return nil, err
			}
			continue
		}
		result.SitemapsFetched++

		if doc.Dropped > 0 {
			r.logger.LogDebug("Dropped %d entries with missing or invalid <loc> in %s", doc.Dropped, item.url)
		}

		switch doc.Kind {
		case KindURLSet:
			r.logger.LogInfo("Sitemap %s: %d URLs (depth %d)", item.url, len(doc.Entries), item.depth)
			for _, entry := range doc.Entries {
				if r.opts.MaxEntries > 0 && len(result.Entries) >= r.opts.MaxEntries {
					result.Truncated = true
					r.logger.LogInfo("Reached entry limit of %d, stopping", r.opts.MaxEntries)
					return result, nil
				}
				result.Entries = append(result.Entries, entry)
			}

		case KindIndex:
			r.logger.LogInfo("Sitemap index %s: %d child sitemaps (depth %d)", item.url, len(doc.Children), item.depth)

			children := make([]*pending, 0, len(doc.Children))
			for _, ref := range doc.Children {
				children = append(children, &pending{url: ref.Loc, depth: item.depth + 1})
			}

			if item.depth+1 > r.opts.MaxDepth {
				for _, child := range children {
					if err := r.childFailed(result, child, ErrMaxDepthExceeded); err != nil {
						return nil, err
					}
				}
				continue
			}

			if r.opts.Concurrency > 1 {
				r.prefetch(ctx, children, visited)
			}

			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, children[i])
			}
		}
	}

	if len(result.Skipped) > 0 {
		r.logger.LogInfo("Extraction of %s finished with %d entries, %d sitemaps skipped",
			rootURL, len(result.Entries), len(result.Skipped))
	} else {
		r.logger.LogInfo("Extraction of %s finished with %d entries", rootURL, len(result.Entries))
	}

	return result, nil
}

func (r *Resolver) load(ctx context.Context, item *pending) (*Document, error) {
	body, err := item.body, item.err
	if !item.fetched {
		body, err = r.fetcher.Fetch(ctx, item.url)
	}
	// release prefetched bytes once consumed
	item.body = nil
	if err != nil {
		return nil, err
	}
	return ParseDocument(item.url, body)
}

// prefetch fetches sibling sitemaps with at most Concurrency requests in
// flight. Each goroutine writes only to its own item.
func (r *Resolver) prefetch(ctx context.Context, items []*pending, visited map[string]bool) {
	semaphore := make(chan struct{}, r.opts.Concurrency)
	wg := sync.WaitGroup{}

	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if visited[item.url] || seen[item.url] {
			continue
		}
		seen[item.url] = true

		wg.Add(1)
		semaphore <- struct{}{}

		go func(p *pending) {
			defer wg.Done()
			defer func() { <-semaphore }()

			p.body, p.err = r.fetcher.Fetch(ctx, p.url)
			p.fetched = true
		}(item)
	}

	wg.Wait()
}

func (r *Resolver) childFailed(result *models.ExtractionResult, item *pending, err error) error {
	if r.opts.FailurePolicy == FailureAbort {
		r.logger.LogError("Aborting extraction, child sitemap %s failed: %v", item.url, err)
		return fmt.Errorf("child sitemap %s: %w", item.url, err)
	}
	r.skip(result, item, err)
	return nil
}

func (r *Resolver) skip(result *models.ExtractionResult, item *pending, err error) {
	if errors.Is(err, ErrAlreadyVisited) {
		r.logger.LogDebug("Skipping already visited sitemap %s", item.url)
	} else {
		r.logger.LogError("Skipping sitemap %s (depth %d): %v", item.url, item.depth, err)
	}
	result.Skipped = append(result.Skipped, models.SkippedSitemap{
		URL:    item.url,
		Depth:  item.depth,
		Reason: err.Error(),
	})
}
