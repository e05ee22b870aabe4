package api

import (
	"html/template"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/romangod6/sitemap-extractor/internal/export"
	"github.com/romangod6/sitemap-extractor/internal/models"
)

var indexTemplate = template.Must(template.New("index").Funcs(template.FuncMap{
	"lastmod": export.FormatLastModified,
}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>XML Sitemap URL Extractor</title></head>
<body>
<h1>XML Sitemap URL Extractor</h1>
<form method="get" action="/">
  <label for="url">Enter the XML Sitemap URL:</label>
  <input type="text" id="url" name="url" size="80" value="{{.URL}}">
  <label><input type="radio" name="format" value="csv"{{if eq .Format "csv"}} checked{{end}}> CSV</label>
  <label><input type="radio" name="format" value="xlsx"{{if eq .Format "xlsx"}} checked{{end}}> XLSX</label>
  <button type="submit">Extract</button>
</form>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
{{if .Extraction}}
<p class="summary">Found {{len .Entries}} URLs!{{if .Skipped}} {{len .Skipped}} sitemaps skipped.{{end}}</p>
{{if .Entries}}
<p class="download"><a id="download" href="/api/extractions/{{.Extraction.ID}}/export?format={{.Format}}">Download {{.FormatLabel}}</a></p>
<table id="entries">
<thead><tr><th>url</th><th>last_modified</th></tr></thead>
<tbody>
{{range .Entries}}<tr><td>{{.URL}}</td><td>{{lastmod .LastModified}}</td></tr>
{{end}}</tbody>
</table>
{{else}}<p class="error">No URLs found in the sitemap.</p>{{end}}
{{if .Skipped}}
<ul id="skipped">
{{range .Skipped}}<li>{{.URL}}: {{.Reason}}</li>
{{end}}</ul>
{{end}}
{{end}}
</body>
</html>
`))

type indexPage struct {
	URL         string
	Format      string
	FormatLabel string
	Error       string
	Extraction  *models.Extraction
	Entries     []models.SitemapEntry
	Skipped     []models.SkippedSitemap
}

// Index renders the extraction form. With a url query parameter it runs an
// extraction using the server defaults and renders the result table.
func (h *Handler) Index(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		format = export.FormatCSV
	}

	page := indexPage{
		URL:         strings.TrimSpace(c.Query("url")),
		Format:      string(format),
		FormatLabel: strings.ToUpper(string(format)),
	}

	if page.URL == "" {
		c.HTML(http.StatusOK, "index", page)
		return
	}

	extraction, result, err := h.runExtraction(c.Request.Context(), page.URL, h.extractor.Defaults)
	if err != nil {
		page.Error = err.Error()
		c.HTML(errorStatus(err), "index", page)
		return
	}

	page.Extraction = extraction
	page.Entries = result.Entries
	page.Skipped = result.Skipped
	c.HTML(http.StatusOK, "index", page)
}
