package crawler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

var (
	ErrInvalidURL       = errors.New("invalid sitemap URL")
	ErrMaxDepthExceeded = errors.New("maximum sitemap depth exceeded")
	ErrAlreadyVisited   = errors.New("sitemap already visited")
	ErrBodyTooLarge     = errors.New("sitemap body too large")
)

// FetchError reports a network failure, timeout or non-2xx response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports a document that is not well-formed XML.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: malformed XML: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FormatError reports well-formed XML that is neither a urlset nor a sitemapindex.
type FormatError struct {
	URL  string
	Root string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unrecognized sitemap document %s: root element <%s>", e.URL, e.Root)
}

// ValidateURL checks that raw is an absolute http(s) URL with a host.
// It never dereferences the URL.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}
