package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"ragdocs-api/internal/config"
	"ragdocs-api/internal/crawler"
	"ragdocs-api/internal/logger"
	"ragdocs-api/models"
	"ragdocs-api/utils"
)

const (
	TaskIngestFile = "ingest:file"
	TaskCrawlURL   = "ingest:crawl"
)

type IngestFilePayload struct {
	Filename string `json:"filename"`
	FilePath string `json:"file_path"`
}

type CrawlPayload struct {
	URL      string `json:"url"`
	MaxPages int    `json:"max_pages"`
}

// Task creators
func NewIngestFileTask(filename, filePath string) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestFilePayload{
		Filename: filename,
		FilePath: filePath,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestFile,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("default"),
	), nil
}

func NewCrawlTask(url string, maxPages int) (*asynq.Task, error) {
	payload, err := json.Marshal(CrawlPayload{
		URL:      url,
		MaxPages: maxPages,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskCrawlURL,
		payload,
		asynq.MaxRetry(2),
		asynq.Timeout(30*time.Minute),
		asynq.Queue("default"),
	), nil
}

// TextIngester is the ingestion entrypoint the worker drives.
type TextIngester interface {
	IngestText(ctx context.Context, docID, filename, sourceURL, text string) (*models.UploadResponse, error)
}

// TextExtractor converts a raw file into plain text.
type TextExtractor interface {
	ExtractText(filename string, content []byte) (string, error)
}

// TaskProcessor handles background ingestion tasks.
type TaskProcessor struct {
	cfg       *config.Config
	ingester  TextIngester
	extractor TextExtractor
}

func NewTaskProcessor(cfg *config.Config, ingester TextIngester, extractor TextExtractor) *TaskProcessor {
	return &TaskProcessor{
		cfg:       cfg,
		ingester:  ingester,
		extractor: extractor,
	}
}

// Register wires the processor's handlers into an asynq mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskIngestFile, p.HandleIngestFile)
	mux.HandleFunc(TaskCrawlURL, p.HandleCrawlURL)
}

// HandleIngestFile ingests a file that was too large for the synchronous
// upload path. The route saved the upload to a temp file; the file is
// removed once ingestion succeeds.
func (p *TaskProcessor) HandleIngestFile(ctx context.Context, t *asynq.Task) error {
	var payload IngestFilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("Processing queued upload", "filename", payload.Filename)

	content, err := os.ReadFile(payload.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read queued upload: %w", err)
	}

	docID := utils.ContentFingerprint(content)
	text, err := p.extractor.ExtractText(payload.Filename, content)
	if err != nil {
		// Extraction failures are deterministic, retrying won't help.
		logger.Error("Extraction failed for queued upload", "filename", payload.Filename, "error", err)
		return asynq.SkipRetry
	}

	resp, err := p.ingester.IngestText(ctx, docID, payload.Filename, "", text)
	if err != nil {
		return err
	}

	if err := os.Remove(payload.FilePath); err != nil {
		logger.Warn("Failed to remove temp upload", "path", payload.FilePath, "error", err)
	}

	logger.Info("Queued upload ingested",
		"doc_id", resp.DocID,
		"filename", payload.Filename,
		"status", resp.Status,
		"total_chunks", resp.TotalChunks)
	return nil
}

// HandleCrawlURL crawls a documentation site and ingests each page as its
// own content-addressed document.
func (p *TaskProcessor) HandleCrawlURL(ctx context.Context, t *asynq.Task) error {
	var payload CrawlPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	maxPages := payload.MaxPages
	if maxPages <= 0 {
		maxPages = p.cfg.CrawlMaxPages
	}

	result, err := crawler.Crawl(crawler.Config{
		URL:         payload.URL,
		MaxPages:    maxPages,
		FollowLinks: true,
		Timeout:     p.cfg.CrawlTimeout,
	})
	if err != nil {
		return fmt.Errorf("crawl failed: %w", err)
	}

	ingested := 0
	for _, page := range result.Pages {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		text, err := p.extractor.ExtractText("page.html", page.HTML)
		if err != nil {
			logger.Warn("Skipping unextractable page", "url", page.URL, "error", err)
			continue
		}

		name := page.Title
		if name == "" {
			name = page.URL
		}

		docID := utils.ContentFingerprint(page.HTML)
		if _, err := p.ingester.IngestText(ctx, docID, name, page.URL, text); err != nil {
			logger.Warn("Failed to ingest crawled page", "url", page.URL, "error", err)
			continue
		}
		ingested++
	}

	logger.Info("Crawl finished",
		"url", payload.URL,
		"pages_crawled", result.PagesCrawled,
		"pages_ingested", ingested)

	if ingested == 0 {
		return fmt.Errorf("crawl of %s ingested no pages", payload.URL)
	}
	return nil
}
