// Package streamload issues multipart PUT uploads to the streaming-load
// ingestion endpoint.
package streamload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"loadcheck/internal/domain"
)

// LoadPath is the ingestion endpoint path on the target host.
const LoadPath = "/v1/streaming_load"

// Client uploads datasets via the streaming-load endpoint.
type Client struct {
	httpClient *http.Client
	timeout    time.Duration
	// permissive skips response status checking entirely.
	permissive bool
	logger     *slog.Logger
}

// NewClient creates an upload client with a bounded per-upload timeout.
func NewClient(timeout time.Duration, permissive bool, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{},
		timeout:    timeout,
		permissive: permissive,
		logger:     logger,
	}
}

// Ingest streams the request's file as a multipart form field named "upload",
// carrying the insert statement and CSV-header directive as request headers.
func (c *Client) Ingest(ctx context.Context, req domain.IngestionRequest) error {
	if err := Validate(req); err != nil {
		return domain.ErrIngestion("invalid ingestion request: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	f, err := os.Open(req.FilePath) //nolint:gosec // path comes from config
	if err != nil {
		return domain.ErrIngestion("open payload %s: %v", req.FilePath, err)
	}
	defer f.Close() //nolint:errcheck

	// Stream the multipart body through a pipe so the whole file is never
	// held in memory.
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("upload", filepath.Base(req.FilePath))
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(mw.Close())
	}()

	url := strings.TrimRight(req.Endpoint, "/") + LoadPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, url, pr)
	if err != nil {
		return domain.ErrIngestion("build upload request: %v", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("insert_sql", req.InsertSQL)
	if req.CSVHeader {
		httpReq.Header.Set("csv_header", "1")
	} else {
		httpReq.Header.Set("csv_header", "0")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.ErrIngestion("PUT %s: %v", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if c.permissive {
			c.logger.Warn("upload returned non-success status (permissive mode)",
				"status", resp.StatusCode, "body", strings.TrimSpace(string(body)))
			return nil
		}
		return domain.ErrIngestion("PUT %s: HTTP %d: %s", url, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	c.logger.Info("upload accepted", "status", resp.StatusCode, "insert_sql", req.InsertSQL)
	return nil
}

// Validate checks an ingestion request before any network activity.
func Validate(req domain.IngestionRequest) error {
	if req.Endpoint == "" {
		return fmt.Errorf("endpoint is empty")
	}
	if req.InsertSQL == "" {
		return fmt.Errorf("insert_sql is empty")
	}
	if req.FilePath == "" {
		return fmt.Errorf("file path is empty")
	}
	return nil
}
