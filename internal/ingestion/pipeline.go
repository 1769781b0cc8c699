package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dewiapp/dewi-backend/internal/domain"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/types"
)

// Progress is a point-in-time snapshot of one pipeline run, published after
// every finished chunk.
type Progress struct {
	ChunksTotal  int `json:"chunks_total"`
	ChunksDone   int `json:"chunks_done"`
	ChunksFailed int `json:"chunks_failed"`
	FactsCreated int `json:"facts_created"`
	FactsMerged  int `json:"facts_merged"`
	FactsRelated int `json:"facts_related"`
}

// PipelineConfig tunes one ingestion run.
type PipelineConfig struct {
	Chunker ChunkerConfig
	// Workers bounds concurrent chunk processing.
	Workers int
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{Chunker: DefaultChunkerConfig(), Workers: 4}
}

// RunInput is one submission to ingest.
type RunInput struct {
	SourceID uuid.UUID
	Topic    string
	Text     string
	Hints    types.StructuralHints
	// Abort is polled at chunk boundaries only; a chunk that already started
	// always runs to completion. Nil means never abort.
	Abort func() bool
	// OnProgress, when set, receives a snapshot after each finished chunk.
	OnProgress func(Progress)
}

// Pipeline drives one submission through chunking, extraction, embedding and
// dedup. Chunks are isolated: a failed chunk is counted and logged, its
// siblings commit normally.
type Pipeline struct {
	cfg       PipelineConfig
	extractor Extractor
	embedder  Embedder
	dedup     *Deduplicator
	log       *logger.Logger
}

func NewPipeline(cfg PipelineConfig, extractor Extractor, embedder Embedder, dedup *Deduplicator, log *logger.Logger) (*Pipeline, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if extractor == nil || embedder == nil || dedup == nil {
		return nil, fmt.Errorf("pipeline: extractor, embedder and dedup are required")
	}
	return &Pipeline{
		cfg:       cfg,
		extractor: extractor,
		embedder:  embedder,
		dedup:     dedup,
		log:       log.With("component", "ingest_pipeline"),
	}, nil
}

// Run ingests one submission. It returns the tally of what was committed
// together with domain.ErrAborted when the run stopped at an abort
// checkpoint; counts are valid in both cases. Zero chunks is a successful
// empty run, not an error.
func (p *Pipeline) Run(ctx context.Context, in RunInput) (types.IngestResult, error) {
	chunks := SplitChunks(in.Text, in.Hints, p.cfg.Chunker)

	var mu sync.Mutex
	res := types.IngestResult{ChunksTotal: len(chunks)}
	done := 0

	publish := func() {
		if in.OnProgress == nil {
			return
		}
		in.OnProgress(Progress{
			ChunksTotal:  res.ChunksTotal,
			ChunksDone:   done,
			ChunksFailed: res.ChunksFailed,
			FactsCreated: res.FactsCreated,
			FactsMerged:  res.FactsMerged,
			FactsRelated: res.FactsRelated,
		})
	}

	if len(chunks) == 0 {
		p.log.Info("nothing to ingest", "source_id", in.SourceID)
		return res, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)

	aborted := false
	for _, chunk := range chunks {
		if in.Abort != nil && in.Abort() {
			aborted = true
			break
		}
		if gctx.Err() != nil {
			break
		}
		chunk := chunk
		g.Go(func() error {
			tally := p.runChunk(gctx, in, chunk)
			mu.Lock()
			done++
			res.ChunksFailed += tally.ChunksFailed
			res.FactsCreated += tally.FactsCreated
			res.FactsMerged += tally.FactsMerged
			res.FactsRelated += tally.FactsRelated
			res.FactsFailed += tally.FactsFailed
			publish()
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, fmt.Errorf("pipeline: wait: %w", err)
	}

	if aborted {
		// Skipped chunks are neither done nor failed; committed facts stay.
		p.log.Info("ingest aborted at chunk boundary",
			"source_id", in.SourceID, "chunks_done", done, "chunks_total", res.ChunksTotal)
		return res, domain.ErrAborted
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

// runChunk settles one chunk end to end and reports its local tally. Errors
// never escape: they mark the chunk (or single facts) failed.
func (p *Pipeline) runChunk(ctx context.Context, in RunInput, chunk Chunk) types.IngestResult {
	var tally types.IngestResult
	log := p.log.With("source_id", in.SourceID, "chunk", chunk.Index)

	raw, err := p.extractor.ExtractFacts(ctx, chunk.Text, in.Topic)
	if err != nil {
		log.Warn("chunk extraction failed", "error", err)
		tally.ChunksFailed = 1
		return tally
	}
	cands := SanitizeCandidates(raw)
	if len(cands) == 0 {
		log.Debug("chunk produced no usable candidates", "raw", len(raw))
		return tally
	}

	texts := make([]string, len(cands))
	for i, c := range cands {
		texts[i] = c.Text
	}
	vecs, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		log.Warn("chunk embedding failed", "error", err)
		tally.ChunksFailed = 1
		return tally
	}
	if len(vecs) != len(cands) {
		log.Warn("embedding count mismatch", "want", len(cands), "got", len(vecs))
		tally.ChunksFailed = 1
		return tally
	}

	for i, cand := range cands {
		out, err := p.dedup.Commit(ctx, cand, in.Topic, in.SourceID, vecs[i])
		if err != nil {
			log.Warn("fact commit failed", "text", cand.Text, "error", err)
			tally.FactsFailed++
			continue
		}
		switch out.Decision {
		case DecisionMerged:
			tally.FactsMerged++
		case DecisionRelated:
			tally.FactsCreated++
			tally.FactsRelated++
		default:
			tally.FactsCreated++
		}
	}
	return tally
}

// Aborted reports whether err is the pipeline's abort outcome.
func Aborted(err error) bool {
	return errors.Is(err, domain.ErrAborted)
}
