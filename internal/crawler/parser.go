// internal/crawler/parser.go
package crawler

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/romangod6/sitemap-extractor/internal/models"
	"golang.org/x/net/html/charset"
)

type DocumentKind int

const (
	KindURLSet DocumentKind = iota + 1
	KindIndex
)

func (k DocumentKind) String() string {
	switch k {
	case KindURLSet:
		return "urlset"
	case KindIndex:
		return "sitemapindex"
	default:
		return "unknown"
	}
}

// Document is a classified sitemap. Exactly one of Entries or Children is
// populated depending on Kind. Dropped counts <url>/<sitemap> elements that
// were omitted because their <loc> was missing or not a valid URL.
type Document struct {
	Kind     DocumentKind
	Entries  []models.SitemapEntry
	Children []models.SitemapRef
	Dropped  int
}

// lastmod layouts accepted by the sitemap protocol (W3C Datetime)
var lastModLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParseDocument checks that data is well-formed XML and classifies it by
// its root element, ignoring namespaces.
func ParseDocument(sourceURL string, data []byte) (*Document, error) {
	decoder := newDecoder(data)

	root, err := rootElement(decoder)
	if err != nil {
		return nil, &ParseError{URL: sourceURL, Err: err}
	}

	doc := &Document{}
	switch root.Name.Local {
	case "urlset":
		var sitemap models.Sitemap
		if err := decoder.DecodeElement(&sitemap, &root); err != nil {
			return nil, &ParseError{URL: sourceURL, Err: err}
		}
		doc.Kind = KindURLSet
		doc.Entries = make([]models.SitemapEntry, 0, len(sitemap.URLs))
		for _, u := range sitemap.URLs {
			loc := strings.TrimSpace(u.Loc)
			if ValidateURL(loc) != nil {
				doc.Dropped++
				continue
			}
			doc.Entries = append(doc.Entries, models.SitemapEntry{
				URL:          loc,
				LastModified: ParseLastMod(u.LastMod),
			})
		}

	case "sitemapindex":
		var index models.SitemapIndex
		if err := decoder.DecodeElement(&index, &root); err != nil {
			return nil, &ParseError{URL: sourceURL, Err: err}
		}
		doc.Kind = KindIndex
		doc.Children = make([]models.SitemapRef, 0, len(index.Sitemaps))
		for _, s := range index.Sitemaps {
			loc := strings.TrimSpace(s.Loc)
			if ValidateURL(loc) != nil {
				doc.Dropped++
				continue
			}
			doc.Children = append(doc.Children, models.SitemapRef{
				Loc:     loc,
				LastMod: strings.TrimSpace(s.LastMod),
			})
		}

	default:
		if err := decoder.Skip(); err != nil {
			return nil, &ParseError{URL: sourceURL, Err: err}
		}
		if err := checkTrailing(decoder); err != nil {
			return nil, &ParseError{URL: sourceURL, Err: err}
		}
		return nil, &FormatError{URL: sourceURL, Root: root.Name.Local}
	}

	if err := checkTrailing(decoder); err != nil {
		return nil, &ParseError{URL: sourceURL, Err: err}
	}

	return doc, nil
}

// ParseLastMod returns nil for empty or unrecognised values.
func ParseLastMod(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range lastModLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t
		}
	}
	return nil
}

func newDecoder(data []byte) *xml.Decoder {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = charset.NewReaderLabel
	return decoder
}

func rootElement(decoder *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return xml.StartElement{}, errors.New("document has no root element")
		}
		if err != nil {
			return xml.StartElement{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return t, nil
		case xml.CharData:
			if !isBlank(t) {
				return xml.StartElement{}, errors.New("text before root element")
			}
		}
	}
}

// checkTrailing consumes what follows the root element. Only comments,
// processing instructions and whitespace may appear there.
func checkTrailing(decoder *xml.Decoder) error {
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.Comment, xml.ProcInst:
		case xml.CharData:
			if !isBlank(t) {
				return errors.New("text after root element")
			}
		case xml.StartElement:
			return fmt.Errorf("second root element <%s>", t.Name.Local)
		default:
			return fmt.Errorf("unexpected %T after root element", tok)
		}
	}
}

func isBlank(data []byte) bool {
	return len(bytes.TrimLeft(bytes.TrimSpace(data), "\ufeff")) == 0
}
