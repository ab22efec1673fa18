package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"

	"ragdocs-api/internal/logger"
	"ragdocs-api/models"
)

// VectorCounter reports how many points a lane's collection holds.
type VectorCounter interface {
	Count(ctx context.Context, lane models.Lane) (int, error)
}

// ConsistencyService periodically cross-checks stored chunk counts against
// the vector collections. A drift means a partially failed ingestion or
// deletion and is worth an operator's attention, not automatic repair.
type ConsistencyService struct {
	ingestion *IngestionService
	counter   VectorCounter
	scheduler *gocron.Scheduler
}

func NewConsistencyService(ingestion *IngestionService, counter VectorCounter) *ConsistencyService {
	return &ConsistencyService{
		ingestion: ingestion,
		counter:   counter,
		scheduler: gocron.NewScheduler(time.UTC),
	}
}

// Start schedules the hourly check. Runs in the background until Stop.
func (cs *ConsistencyService) Start() error {
	if _, err := cs.scheduler.Every(1).Hour().Do(cs.runCheck); err != nil {
		return err
	}
	cs.scheduler.StartAsync()
	logger.Info("Lane consistency check scheduled", "interval", "1h")
	return nil
}

func (cs *ConsistencyService) Stop() {
	cs.scheduler.Stop()
}

func (cs *ConsistencyService) runCheck() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	stored, err := cs.ingestion.ChunkCounts(ctx)
	if err != nil {
		logger.Warn("Consistency check: failed to count stored chunks", "error", err)
		return
	}

	for _, lane := range []models.Lane{models.LaneText, models.LaneCode} {
		indexed, err := cs.counter.Count(ctx, lane)
		if err != nil {
			logger.Warn("Consistency check: failed to count vectors", "lane", lane, "error", err)
			continue
		}
		if indexed != stored[lane] {
			logger.Warn("Lane drift detected between metadata store and vector collection",
				"lane", lane,
				"stored_chunks", stored[lane],
				"indexed_points", indexed)
		} else {
			logger.Debug("Lane consistent", "lane", lane, "chunks", stored[lane])
		}
	}
}
