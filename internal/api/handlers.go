package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/romangod6/sitemap-extractor/internal/crawler"
	"github.com/romangod6/sitemap-extractor/internal/export"
	"github.com/romangod6/sitemap-extractor/internal/models"
	"github.com/romangod6/sitemap-extractor/internal/storage"
	"github.com/romangod6/sitemap-extractor/internal/utils"
)

// Extractor holds what every extraction request shares. Per-request
// overrides are applied to a copy of Defaults.
type Extractor struct {
	Fetcher  crawler.Fetcher
	Defaults crawler.Options
	LogsDir  string
	Debug    bool
}

type Handler struct {
	store     storage.Store
	extractor *Extractor
}

type ErrorResponse struct {
	Error string `json:"error"`
	ID    string `json:"id,omitempty"`
}

type PaginationResponse struct {
	Data  interface{} `json:"data"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
}

type ExtractionRequest struct {
	URL           string `json:"url" binding:"required"`
	MaxDepth      int    `json:"maxDepth"`
	FailurePolicy string `json:"failurePolicy"`
	Concurrency   int    `json:"concurrency"`
	MaxEntries    int    `json:"maxEntries"`
}

type ExtractionResponse struct {
	Extraction *models.Extraction      `json:"extraction"`
	Entries    []models.SitemapEntry   `json:"entries"`
	Skipped    []models.SkippedSitemap `json:"skipped,omitempty"`
	Truncated  bool                    `json:"truncated,omitempty"`
}

func NewHandler(store storage.Store, extractor *Extractor) *Handler {
	return &Handler{store: store, extractor: extractor}
}

func (h *Handler) CreateExtraction(c *gin.Context) {
	var req ExtractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid extraction request"})
		return
	}

	opts, err := h.requestOptions(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	extraction, result, err := h.runExtraction(c.Request.Context(), req.URL, opts)
	if err != nil {
		resp := ErrorResponse{Error: err.Error()}
		if extraction != nil {
			resp.ID = extraction.ID.String()
		}
		c.JSON(errorStatus(err), resp)
		return
	}

	c.JSON(http.StatusCreated, ExtractionResponse{
		Extraction: extraction,
		Entries:    result.Entries,
		Skipped:    result.Skipped,
		Truncated:  result.Truncated,
	})
}

func (h *Handler) ListExtractions(c *gin.Context) {
	page, limit := getPaginationParams(c)
	offset := (page - 1) * limit

	extractions, err := h.store.ListExtractions(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch extractions"})
		return
	}

	if extractions == nil {
		extractions = []*models.Extraction{}
	}

	c.JSON(http.StatusOK, PaginationResponse{
		Data:  extractions,
		Page:  page,
		Limit: limit,
	})
}

func (h *Handler) GetExtraction(c *gin.Context) {
	extraction, ok := h.lookupExtraction(c)
	if !ok {
		return
	}

	entries, err := h.store.GetEntries(c.Request.Context(), extraction.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch extraction entries"})
		return
	}

	c.JSON(http.StatusOK, ExtractionResponse{
		Extraction: extraction,
		Entries:    entries,
	})
}

func (h *Handler) ExportExtraction(c *gin.Context) {
	format, err := export.ParseFormat(c.DefaultQuery("format", "csv"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	extraction, ok := h.lookupExtraction(c)
	if !ok {
		return
	}

	entries, err := h.store.GetEntries(c.Request.Context(), extraction.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch extraction entries"})
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, entries); err != nil {
		log.Printf("Export of extraction %s failed: %v", extraction.ID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to export extraction"})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.FileName()))
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (h *Handler) DeleteExtraction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid extraction ID"})
		return
	}

	if err := h.store.DeleteExtraction(c.Request.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Extraction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to delete extraction"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *Handler) lookupExtraction(c *gin.Context) (*models.Extraction, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid extraction ID"})
		return nil, false
	}

	extraction, err := h.store.GetExtraction(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch extraction"})
		return nil, false
	}

	if extraction == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Extraction not found"})
		return nil, false
	}

	return extraction, true
}

// Upper bounds for per-request overrides
const (
	maxRequestDepth       = 20
	maxRequestConcurrency = 16
)

func (h *Handler) requestOptions(req ExtractionRequest) (crawler.Options, error) {
	opts := h.extractor.Defaults

	if req.MaxDepth > 0 {
		opts.MaxDepth = min(req.MaxDepth, maxRequestDepth)
	}
	if req.Concurrency > 0 {
		opts.Concurrency = min(req.Concurrency, maxRequestConcurrency)
	}
	if req.MaxEntries > 0 {
		// a configured entry limit can only be lowered
		if opts.MaxEntries == 0 || req.MaxEntries < opts.MaxEntries {
			opts.MaxEntries = req.MaxEntries
		}
	}
	if req.FailurePolicy != "" {
		policy, err := crawler.ParseFailurePolicy(req.FailurePolicy)
		if err != nil {
			return opts, err
		}
		opts.FailurePolicy = policy
	}

	return opts, nil
}

// runExtraction resolves rootURL and records the run. The extraction
// record is returned even when resolving fails so callers can report its ID.
func (h *Handler) runExtraction(ctx context.Context, rootURL string, opts crawler.Options) (*models.Extraction, *models.ExtractionResult, error) {
	if err := crawler.ValidateURL(rootURL); err != nil {
		return nil, nil, &crawler.FetchError{URL: rootURL, Err: err}
	}

	logger, err := utils.NewExtractionLogger(h.extractor.LogsDir, rootURL, h.extractor.Debug)
	if err != nil {
		log.Printf("Failed to create logger: %v", err)
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	resolver := crawler.NewResolver(h.extractor.Fetcher, logger, opts)
	applied := resolver.Options()

	logger.LogInfo("Starting extraction for %s", rootURL)
	logger.LogInfo("  Max Depth: %d", applied.MaxDepth)
	logger.LogInfo("  Failure Policy: %s", applied.FailurePolicy)
	logger.LogInfo("  Concurrency: %d", applied.Concurrency)

	extraction := models.NewExtraction(rootURL)
	if err := h.store.CreateExtraction(ctx, extraction); err != nil {
		logger.LogError("Failed to save extraction: %v", err)
		return nil, nil, fmt.Errorf("failed to save extraction: %w", err)
	}

	result, resolveErr := resolver.Resolve(ctx, rootURL)
	extraction.Complete(result, resolveErr)

	// the request context may be gone; the record must still be closed out
	saveCtx := context.WithoutCancel(ctx)

	if resolveErr == nil {
		if err := h.store.SaveEntries(saveCtx, extraction.ID, result.Entries); err != nil {
			logger.LogError("Failed to save entries: %v", err)
			extraction.Complete(nil, fmt.Errorf("failed to save entries: %w", err))
			resolveErr = err
		}
	}

	if err := h.store.UpdateExtraction(saveCtx, extraction); err != nil {
		logger.LogError("Error updating extraction status: %v", err)
	}

	logger.LogInfo("Extraction %s finished. Status: %s", extraction.ID, extraction.Status)
	if resolveErr != nil {
		return extraction, nil, resolveErr
	}

	return extraction, result, nil
}

// errorStatus maps extraction failures onto HTTP status codes.
func errorStatus(err error) int {
	var (
		fetchErr  *crawler.FetchError
		parseErr  *crawler.ParseError
		formatErr *crawler.FormatError
	)

	switch {
	case errors.Is(err, crawler.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.As(err, &parseErr), errors.As(err, &formatErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, crawler.ErrMaxDepthExceeded):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Utility functions
func getPaginationParams(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "10"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	return page, limit
}
