package routes

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"ragdocs-api/internal/config"
	"ragdocs-api/internal/queue"
	"ragdocs-api/models"
	"ragdocs-api/services"
	"ragdocs-api/utils"
)

var supportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".pdf":  true,
	".html": true,
	".htm":  true,
	".xlsx": true,
	".xlsm": true,
}

// HandleUploadDocument ingests an uploaded file. Small files are processed
// synchronously; anything over the sync limit is written to a temp file and
// handed to the background worker.
func HandleUploadDocument(cfg *config.Config, ingestion *services.IngestionService, extractor *services.Extractor, queueClient *asynq.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "No file provided", nil)
			return
		}
		defer file.Close()

		if header.Size > cfg.MaxFileSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large",
				fmt.Sprintf("File exceeds the %d byte limit", cfg.MaxFileSize), nil)
			return
		}

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if !supportedExtensions[ext] {
			utils.RespondWithBadRequest(c, "Unsupported file type", gin.H{"extension": ext})
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read upload", nil)
			return
		}

		if int64(len(content)) > cfg.SyncProcessingLimit && queueClient != nil {
			resp, err := enqueueUpload(queueClient, header.Filename, content)
			if err != nil {
				utils.RespondWithInternalError(c, "Failed to queue upload", nil)
				return
			}
			c.JSON(http.StatusAccepted, resp)
			return
		}

		docID := utils.ContentFingerprint(content)
		text, err := extractor.ExtractText(header.Filename, content)
		if err != nil {
			utils.RespondWithBadRequest(c, "Could not extract text from file", gin.H{"reason": err.Error()})
			return
		}

		ctx, cancel := utils.WithLongTimeout(c.Request.Context())
		defer cancel()
		resp, err := ingestion.IngestText(ctx, docID, header.Filename, "", text)
		if err != nil {
			utils.RespondWithInternalError(c, "Ingestion failed", gin.H{"reason": err.Error()})
			return
		}

		status := http.StatusCreated
		if resp.Status == models.UploadStatusAlreadyExists {
			status = http.StatusOK
		}
		c.JSON(status, resp)
	}
}

func enqueueUpload(queueClient *asynq.Client, filename string, content []byte) (*models.UploadResponse, error) {
	tmpPath := filepath.Join(os.TempDir(), "ragdocs-upload-"+uuid.NewString())
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return nil, err
	}

	task, err := queue.NewIngestFileTask(filename, tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}
	info, err := queueClient.Enqueue(task)
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	return &models.UploadResponse{
		DocID:    utils.ContentFingerprint(content),
		Filename: filename,
		Status:   models.UploadStatusQueued,
		TaskID:   info.ID,
	}, nil
}

type crawlRequest struct {
	URL      string `json:"url" binding:"required"`
	MaxPages int    `json:"max_pages"`
}

// HandleCrawlRequest queues a documentation site crawl. Crawls always run on
// the worker since they can take minutes.
func HandleCrawlRequest(cfg *config.Config, queueClient *asynq.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req crawlRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "url is required", nil)
			return
		}

		parsed, err := url.Parse(req.URL)
		if err != nil || (parsed.Scheme != "" && parsed.Scheme != "http" && parsed.Scheme != "https") {
			utils.RespondWithBadRequest(c, "url must be an http(s) URL", nil)
			return
		}

		maxPages := req.MaxPages
		if maxPages <= 0 || maxPages > cfg.CrawlMaxPages {
			maxPages = cfg.CrawlMaxPages
		}

		task, err := queue.NewCrawlTask(req.URL, maxPages)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create crawl task", nil)
			return
		}
		info, err := queueClient.Enqueue(task)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to queue crawl", nil)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"url":       req.URL,
			"max_pages": maxPages,
			"status":    models.UploadStatusQueued,
			"task_id":   info.ID,
		})
	}
}

// HandleListDocuments returns all ingested documents, newest first.
func HandleListDocuments(ingestion *services.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()
		docs, err := ingestion.ListDocuments(ctx)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"documents": docs,
			"count":     len(docs),
		})
	}
}

// HandleListChunks returns one document's chunks in source order.
func HandleListChunks(ingestion *services.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID := c.Param("doc_id")

		ctx, cancel := utils.WithTimeout(c.Request.Context())
		defer cancel()
		chunks, err := ingestion.ListChunks(ctx, docID)
		if err != nil {
			if errors.Is(err, services.ErrDocumentNotFound) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to list chunks", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"doc_id": docID,
			"chunks": chunks,
			"count":  len(chunks),
		})
	}
}

// HandleDeleteDocument removes a document, its chunks and its vectors in
// both lanes.
func HandleDeleteDocument(ingestion *services.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		docID := c.Param("doc_id")

		ctx, cancel := utils.WithLongTimeout(c.Request.Context())
		defer cancel()
		if err := ingestion.DeleteDocument(ctx, docID); err != nil {
			if errors.Is(err, services.ErrDocumentNotFound) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to delete document", gin.H{"reason": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"doc_id": docID, "deleted": true})
	}
}
