package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"ragdocs-api/internal/logger"
	"ragdocs-api/internal/telemetry"
	"ragdocs-api/internal/vectorstore"
	"ragdocs-api/models"
	"ragdocs-api/utils"
)

// BatchEmbedder embeds a batch of chunk texts in a lane's embedding space.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, lane models.Lane, texts []string) ([][]float32, error)
}

// VectorWriter is the ingestion-side view of the vector store.
type VectorWriter interface {
	Ensure(ctx context.Context, lane models.Lane) error
	Upsert(ctx context.Context, lane models.Lane, points []vectorstore.Point) error
	DeleteByDocument(ctx context.Context, lane models.Lane, docID string) error
}

// ErrDocumentNotFound is returned for lookups and deletes of unknown
// document ids.
var ErrDocumentNotFound = errors.New("document not found")

// IngestionService turns raw uploads into chunked, embedded, indexed
// documents. Documents are content-addressed: uploading identical bytes
// twice is a no-op returning the existing identity.
type IngestionService struct {
	db       *mongo.Database
	chunker  *ChunkingService
	embedder BatchEmbedder
	store    VectorWriter
	cache    *QueryCache
	metrics  *telemetry.Metrics
}

func NewIngestionService(db *mongo.Database, chunker *ChunkingService, embedder BatchEmbedder, store VectorWriter, cache *QueryCache, metrics *telemetry.Metrics) *IngestionService {
	return &IngestionService{
		db:       db,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		cache:    cache,
		metrics:  metrics,
	}
}

func (is *IngestionService) documents() *mongo.Collection {
	return is.db.Collection("documents")
}

func (is *IngestionService) chunks() *mongo.Collection {
	return is.db.Collection("chunks")
}

// IngestText chunks, embeds and indexes already-extracted text under the
// given document identity. The caller computes docID from the raw upload
// bytes so identical uploads dedupe before extraction.
func (is *IngestionService) IngestText(ctx context.Context, docID, filename, sourceURL, text string) (*models.UploadResponse, error) {
	start := time.Now()

	if existing, err := is.GetDocument(ctx, docID); err == nil {
		return &models.UploadResponse{
			DocID:       existing.ID,
			Filename:    existing.Filename,
			TotalChunks: existing.TotalChunks,
			TextChunks:  existing.TextChunks,
			CodeChunks:  existing.CodeChunks,
			Status:      models.UploadStatusAlreadyExists,
		}, nil
	} else if !errors.Is(err, ErrDocumentNotFound) {
		return nil, err
	}

	chunks := is.chunker.ChunkDocument(docID, filename, text)
	byLane := SplitByLane(chunks)

	g, gctx := errgroup.WithContext(ctx)
	for lane, laneChunks := range byLane {
		g.Go(func() error {
			if err := is.indexLane(gctx, lane, laneChunks); err != nil {
				return fmt.Errorf("failed to index %s lane: %w", lane, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		is.recordIngest(ctx, "error", start)
		return nil, err
	}

	if len(chunks) > 0 {
		stored := make([]interface{}, len(chunks))
		for i, c := range chunks {
			sc, err := storedFromChunk(c)
			if err != nil {
				is.recordIngest(ctx, "error", start)
				return nil, err
			}
			stored[i] = sc
		}
		if _, err := is.chunks().InsertMany(ctx, stored); err != nil {
			is.recordIngest(ctx, "error", start)
			return nil, fmt.Errorf("failed to store chunks: %w", err)
		}
	}

	doc := models.Document{
		ID:          docID,
		Filename:    filename,
		TotalChunks: len(chunks),
		TextChunks:  len(byLane[models.LaneText]),
		CodeChunks:  len(byLane[models.LaneCode]),
		SourceURL:   sourceURL,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := is.documents().InsertOne(ctx, doc); err != nil {
		// A concurrent identical upload may have inserted first. The
		// content hash guarantees the record is equivalent.
		if mongo.IsDuplicateKeyError(err) {
			is.recordIngest(ctx, "already_exists", start)
			return &models.UploadResponse{
				DocID:    docID,
				Filename: filename,
				Status:   models.UploadStatusAlreadyExists,
			}, nil
		}
		is.recordIngest(ctx, "error", start)
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	logger.Info("Document ingested",
		"doc_id", docID,
		"filename", filename,
		"total_chunks", doc.TotalChunks,
		"text_chunks", doc.TextChunks,
		"code_chunks", doc.CodeChunks)
	is.recordIngest(ctx, "success", start)

	return &models.UploadResponse{
		DocID:       doc.ID,
		Filename:    doc.Filename,
		TotalChunks: doc.TotalChunks,
		TextChunks:  doc.TextChunks,
		CodeChunks:  doc.CodeChunks,
		Status:      models.UploadStatusSuccess,
	}, nil
}

// indexLane embeds one lane's chunks and upserts them into its collection.
func (is *IngestionService) indexLane(ctx context.Context, lane models.Lane, laneChunks []models.Chunk) error {
	if len(laneChunks) == 0 {
		return nil
	}

	texts := make([]string, len(laneChunks))
	for i, c := range laneChunks {
		texts[i] = c.Content
	}

	vectors, err := is.embedder.EmbedBatch(ctx, lane, texts)
	if err != nil {
		return err
	}

	if err := is.store.Ensure(ctx, lane); err != nil {
		return err
	}

	points := make([]vectorstore.Point, len(laneChunks))
	for i, c := range laneChunks {
		points[i] = vectorstore.Point{
			ID:      c.ChunkID,
			Vector:  vectors[i],
			Payload: models.PayloadFromChunk(c),
		}
	}
	return is.store.Upsert(ctx, lane, points)
}

func storedFromChunk(c models.Chunk) (models.StoredChunk, error) {
	compressed, algorithm, err := utils.CompressText(c.Content)
	if err != nil {
		return models.StoredChunk{}, fmt.Errorf("failed to compress chunk %s: %w", c.ChunkID, err)
	}
	return models.StoredChunk{
		ChunkID:     c.ChunkID,
		DocID:       c.DocID,
		SourceFile:  c.SourceFile,
		Content:     compressed,
		Compression: string(algorithm),
		CharCount:   len(c.Content),
		Start:       c.Start,
		End:         c.End,
		Lane:        c.Lane,
		Heading:     c.Heading,
		Language:    c.Language,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func chunkFromStored(sc models.StoredChunk) (models.Chunk, error) {
	content, err := utils.DecompressText(sc.Content, utils.CompressionAlgorithm(sc.Compression))
	if err != nil {
		return models.Chunk{}, fmt.Errorf("failed to decompress chunk %s: %w", sc.ChunkID, err)
	}
	return models.Chunk{
		ChunkID:    sc.ChunkID,
		DocID:      sc.DocID,
		SourceFile: sc.SourceFile,
		Content:    content,
		Start:      sc.Start,
		End:        sc.End,
		Lane:       sc.Lane,
		Heading:    sc.Heading,
		Language:   sc.Language,
	}, nil
}

// GetDocument looks up one document by id.
func (is *IngestionService) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	var doc models.Document
	err := is.documents().FindOne(ctx, bson.M{"_id": docID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns all documents, newest first.
func (is *IngestionService) ListDocuments(ctx context.Context) ([]models.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := is.documents().Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	docs := []models.Document{}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// ListChunks returns a document's chunks in source order with content
// decompressed.
func (is *IngestionService) ListChunks(ctx context.Context, docID string) ([]models.Chunk, error) {
	if _, err := is.GetDocument(ctx, docID); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "start", Value: 1}})
	cursor, err := is.chunks().Find(ctx, bson.M{"doc_id": docID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stored []models.StoredChunk
	if err := cursor.All(ctx, &stored); err != nil {
		return nil, err
	}

	chunks := make([]models.Chunk, 0, len(stored))
	for _, sc := range stored {
		c, err := chunkFromStored(sc)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, nil
}

// DeleteDocument removes the document, its stored chunks and its vector
// points in both lanes, then drops cached query results since they may
// reference the removed chunks.
func (is *IngestionService) DeleteDocument(ctx context.Context, docID string) error {
	res, err := is.documents().DeleteOne(ctx, bson.M{"_id": docID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrDocumentNotFound
	}

	if _, err := is.chunks().DeleteMany(ctx, bson.M{"doc_id": docID}); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	for _, lane := range []models.Lane{models.LaneText, models.LaneCode} {
		if err := is.store.DeleteByDocument(ctx, lane, docID); err != nil {
			return fmt.Errorf("failed to delete %s vectors: %w", lane, err)
		}
	}

	if is.cache != nil {
		is.cache.Invalidate()
	}

	logger.Info("Document deleted", "doc_id", docID)
	return nil
}

// ChunkCounts reports stored chunk totals per lane across all documents.
// Used by the periodic consistency check against the vector collections.
func (is *IngestionService) ChunkCounts(ctx context.Context) (map[models.Lane]int, error) {
	counts := make(map[models.Lane]int, 2)
	for _, lane := range []models.Lane{models.LaneText, models.LaneCode} {
		n, err := is.chunks().CountDocuments(ctx, bson.M{"lane": lane})
		if err != nil {
			return nil, err
		}
		counts[lane] = int(n)
	}
	return counts, nil
}

func (is *IngestionService) recordIngest(_ context.Context, status string, start time.Time) {
	if is.metrics != nil {
		is.metrics.RecordIngest(status, time.Since(start).Seconds())
	}
}
