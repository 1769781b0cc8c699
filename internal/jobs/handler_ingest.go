package jobs

import (
	"github.com/dewiapp/dewi-backend/internal/ingestion"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/services"
	"github.com/dewiapp/dewi-backend/internal/types"
)

// SourceIngestHandler drives the extraction pipeline for one submitted
// source. The ingestion service owns the domain work; this handler only
// bridges its progress reports onto the job row.
type SourceIngestHandler struct {
	log    *logger.Logger
	ingest services.IngestionService
}

func NewSourceIngestHandler(baseLog *logger.Logger, ingest services.IngestionService) *SourceIngestHandler {
	return &SourceIngestHandler{
		log:    baseLog.With("handler", "SourceIngestHandler"),
		ingest: ingest,
	}
}

func (h *SourceIngestHandler) Type() string { return types.JobTypeSourceIngest }

func (h *SourceIngestHandler) Run(jc *Context) (any, error) {
	result, err := h.ingest.Run(jc.Ctx(), jc.Job, func(p ingestion.Progress) {
		pct := 0
		if p.ChunksTotal > 0 {
			pct = p.ChunksDone * 100 / p.ChunksTotal
		}
		jc.Progress("extract", pct, p)
	})
	// Counts stay valid on error; the committed portion is worth recording.
	return result, err
}
