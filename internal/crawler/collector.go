package crawler

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// Fetcher retrieves the raw body of a sitemap document.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

type CollectorConfig struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int
}

// Collector is a Fetcher backed by a colly collector. Every Fetch is a
// single GET: no retries, no response cache, default redirect handling.
type Collector struct {
	collector   *colly.Collector
	maxBodySize int
}

func NewCollector(config *CollectorConfig) *Collector {
	c := colly.NewCollector(
		colly.UserAgent(config.UserAgent),
		colly.MaxBodySize(config.MaxBodySize),
		colly.AllowURLRevisit(),
		// Status codes are checked in Fetch so any non-2xx is an error
		colly.ParseHTTPErrorResponse(),
	)

	if config.Timeout > 0 {
		c.SetRequestTimeout(config.Timeout)
	}

	return &Collector{collector: c, maxBodySize: config.MaxBodySize}
}

func (c *Collector) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}

	// A clone per request keeps response callbacks local to this call
	collector := c.collector.Clone()

	var (
		status     int
		body       []byte
		transcoded bool
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
		transcoded = r.Headers != nil && convertsCharset(r.Headers.Get("Content-Type"))
	})

	if err := collector.Visit(rawURL); err != nil {
		return nil, &FetchError{URL: rawURL, StatusCode: status, Err: err}
	}

	if status < 200 || status > 299 {
		return nil, &FetchError{
			URL:        rawURL,
			StatusCode: status,
			Err:        fmt.Errorf("unexpected status code %d", status),
		}
	}

	data, err := gunzipIfNeeded(body, c.maxBodySize)
	if err != nil {
		return nil, &FetchError{URL: rawURL, StatusCode: status, Err: fmt.Errorf("failed to decompress body: %w", err)}
	}

	if transcoded {
		data = declareUTF8(data)
	}

	return data, nil
}

// gunzipIfNeeded inflates bodies that are still gzip compressed, which is
// how .xml.gz sitemaps are usually served. The inflated size is bounded by
// maxSize when it is positive.
func gunzipIfNeeded(body []byte, maxSize int) ([]byte, error) {
	if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
		return body, nil
	}

	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	if maxSize <= 0 {
		return io.ReadAll(gz)
	}

	data, err := io.ReadAll(io.LimitReader(gz, int64(maxSize)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxSize {
		return nil, fmt.Errorf("%w: more than %d bytes after decompression", ErrBodyTooLarge, maxSize)
	}
	return data, nil
}

// convertsCharset reports whether colly rewrote the body to UTF-8 for
// this Content-Type.
func convertsCharset(contentType string) bool {
	contentType = strings.ToLower(contentType)
	for _, media := range []string{"image/", "video/", "audio/", "font/"} {
		if strings.Contains(contentType, media) {
			return false
		}
	}
	if !strings.Contains(contentType, "charset") {
		return false
	}
	return !strings.Contains(contentType, "utf-8") && !strings.Contains(contentType, "utf8")
}

var xmlDeclEncoding = regexp.MustCompile(`^(\x{FEFF}?\s*<\?xml[^>]*?\bencoding\s*=\s*)(["'])[^"']*["']`)

// declareUTF8 points the XML declaration at UTF-8 once the body has
// already been transcoded, so the parser does not decode it twice.
func declareUTF8(body []byte) []byte {
	return xmlDeclEncoding.ReplaceAll(body, []byte("${1}${2}UTF-8${2}"))
}
