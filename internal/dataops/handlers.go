package dataops

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler wires the data-utility routes onto a Gin engine. The routes carry
// no payment logic of their own: the wallet gate has already admitted any
// request that reaches them.
type Handler struct {
	log *zap.Logger
}

func NewHandler(log *zap.Logger) *Handler {
	return &Handler{log: log}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/validate/csv", h.handleValidateCSV)
	r.POST("/clean/dataframe", h.handleCleanDataframe)
	r.POST("/extract/pdf", h.handleExtractPDF)
	r.POST("/summarize/logs", h.handleSummarizeLogs)
}

// ── /validate/csv ───────────────────────────────────────────────────────────

func (h *Handler) handleValidateCSV(c *gin.Context) {
	if !strings.Contains(c.ContentType(), "multipart/form-data") {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported content type, use multipart/form-data"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form must include a CSV file field named 'file'"})
		return
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "please upload a .csv file"})
		return
	}

	cfg := DefaultValidationConfig()

	// Full config override (form field or query), then the shortcut fields.
	if raw := formOrQuery(c, "config"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "config must be valid JSON: " + err.Error()})
			return
		}
	}
	if raw := formOrQuery(c, "required_columns"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.RequiredColumns); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "required_columns must be a JSON array: " + err.Error()})
			return
		}
	}
	if raw := formOrQuery(c, "types"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Types); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "types must be a JSON object: " + err.Error()})
			return
		}
	}

	tbl, err := ReadTable(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse CSV: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, ValidateTable(tbl, cfg))
}

// ── /clean/dataframe ────────────────────────────────────────────────────────

type cleanJSONRequest struct {
	// Data stays raw so column order can follow first key appearance.
	Data       json.RawMessage `json:"data"`
	Rules      json.RawMessage `json:"rules"`
	IncludeCSV bool            `json:"include_csv"`
}

type cleanResponse struct {
	RowsBefore    int                 `json:"rows_before"`
	RowsAfter     int                 `json:"rows_after"`
	ColumnsBefore []string            `json:"columns_before"`
	ColumnsAfter  []string            `json:"columns_after"`
	Changes       CleanChanges        `json:"changes"`
	CleanedData   []map[string]string `json:"cleaned_data"`
	CSV           string              `json:"csv,omitempty"`
}

func (h *Handler) handleCleanDataframe(c *gin.Context) {
	contentType := c.ContentType()

	var (
		tbl        *Table
		rules      = DefaultCleanRules()
		includeCSV bool
	)

	switch {
	case strings.Contains(contentType, "application/json"):
		var req cleanJSONRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
			return
		}
		if len(req.Data) == 0 || string(req.Data) == "null" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "JSON body must include 'data' (list of rows)"})
			return
		}
		if len(req.Rules) > 0 {
			if err := json.Unmarshal(req.Rules, &rules); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "rules must be a JSON object: " + err.Error()})
				return
			}
		}
		includeCSV = req.IncludeCSV
		t, err := TableFromJSON(req.Data)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "'data' must be a list of row objects: " + err.Error()})
			return
		}
		tbl = t

	case strings.Contains(contentType, "multipart/form-data"):
		file, _, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form must include a CSV file field named 'file'"})
			return
		}
		defer file.Close()
		if raw := c.PostForm("rules"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &rules); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "rules must be valid JSON: " + err.Error()})
				return
			}
		}
		includeCSV = strings.EqualFold(c.PostForm("include_csv"), "true")
		tbl, err = ReadTable(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse CSV: " + err.Error()})
			return
		}

	default:
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported content type, use application/json or multipart/form-data"})
		return
	}

	cleaned, changes := CleanTable(tbl, rules)

	resp := cleanResponse{
		RowsBefore:    len(tbl.Rows),
		RowsAfter:     len(cleaned.Rows),
		ColumnsBefore: tbl.Headers,
		ColumnsAfter:  cleaned.Headers,
		Changes:       changes,
		CleanedData:   cleaned.Records(),
	}
	if includeCSV {
		csvText, err := cleaned.CSV()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "render csv: " + err.Error()})
			return
		}
		resp.CSV = csvText
	}
	c.JSON(http.StatusOK, resp)
}

// ── /extract/pdf ────────────────────────────────────────────────────────────

func (h *Handler) handleExtractPDF(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form must include a PDF file field named 'file'"})
		return
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "please upload a .pdf file"})
		return
	}

	mode := c.DefaultQuery("mode", "text")
	switch mode {
	case "text":
	case "tables", "both":
		c.JSON(http.StatusBadRequest, gin.H{"error": "tables extraction not supported, use mode=text"})
		return
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "mode must be one of: text, tables, both"})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "uploaded file is empty"})
		return
	}

	result, err := ExtractPDFText(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// ── /summarize/logs ─────────────────────────────────────────────────────────

func (h *Handler) handleSummarizeLogs(c *gin.Context) {
	topK := 10
	if raw := c.Query("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "top_k must be a positive integer"})
			return
		}
		topK = n
	}

	var text string
	if strings.Contains(c.ContentType(), "application/json") {
		var payload struct {
			Text string `json:"text"`
		}
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
			return
		}
		text = payload.Text
	} else {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read body: " + err.Error()})
			return
		}
		text = string(body)
	}

	if strings.TrimSpace(text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provide log text in the body (or JSON {\"text\": ...})"})
		return
	}

	c.JSON(http.StatusOK, SummarizeLogs(text, topK))
}

// formOrQuery prefers a multipart form field over the query string.
func formOrQuery(c *gin.Context, key string) string {
	if v := c.PostForm(key); v != "" {
		return v
	}
	return c.Query(key)
}
