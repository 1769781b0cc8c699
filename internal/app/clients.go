package app

import (
	"context"
	"fmt"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/platform/elevenlabs"
	"github.com/dewiapp/dewi-backend/internal/platform/gcp"
	"github.com/dewiapp/dewi-backend/internal/platform/media"
	"github.com/dewiapp/dewi-backend/internal/platform/openai"
	"github.com/dewiapp/dewi-backend/internal/platform/pinecone"
	"github.com/dewiapp/dewi-backend/internal/platform/youtube"
	"github.com/dewiapp/dewi-backend/internal/realtime/bus"
	"github.com/dewiapp/dewi-backend/internal/utils"
)

// Clients holds every external collaborator. AI and the vector store are
// required (extraction and dedup cannot run without them); storage, OCR,
// TTS and the poster renderer are enrichments that degrade to nil.
type Clients struct {
	AI       openai.Client
	TTS      elevenlabs.Client
	YouTube  youtube.Client
	Bucket   gcp.BucketService
	Document gcp.Document
	Vision   gcp.Vision
	Renderer media.Renderer
	Vectors  pinecone.VectorStore
	Bus      bus.Bus
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	eventBus, err := bus.New(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init realtime bus: %w", err)
	}

	ai, err := openai.NewClient(log)
	if err != nil {
		_ = eventBus.Close()
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}

	var bucket gcp.BucketService
	storageMode := gcp.ObjectStorageModeGCS
	if b, storageCfg, err := resolveBucketService(log); err != nil {
		log.Warn("Object storage unavailable; uploads and media URLs disabled", "error", err)
	} else {
		bucket = b
		storageMode = storageCfg.Mode
	}

	vectors, err := resolveVectorStore(ctx, log, cfg, storageMode)
	if err != nil {
		_ = eventBus.Close()
		return Clients{}, fmt.Errorf("init vector store: %w", err)
	}

	var document gcp.Document
	if d, err := gcp.NewDocument(log); err != nil {
		log.Warn("Document AI unavailable; PDF ingestion disabled", "error", err)
	} else {
		document = d
	}

	var vision gcp.Vision
	if v, err := gcp.NewVision(log); err != nil {
		log.Warn("Vision unavailable; image ingestion disabled", "error", err)
	} else {
		vision = v
	}

	var tts elevenlabs.Client
	if utils.GetEnv("ELEVENLABS_API_KEY", "", log) == "" {
		log.Info("ELEVENLABS_API_KEY not set; narration synthesis disabled")
	} else if c, err := elevenlabs.NewFromEnv(log); err != nil {
		log.Warn("ElevenLabs unavailable; narration synthesis disabled", "error", err)
	} else {
		tts = c
	}

	yt, err := youtube.NewFromEnv(log)
	if err != nil {
		log.Warn("YouTube transcript client unavailable; video ingestion disabled", "error", err)
	}

	var renderer media.Renderer
	if r, err := media.NewRenderer(log); err != nil {
		log.Warn("Poster renderer unavailable; scripts ship without posters", "error", err)
	} else {
		renderer = r
	}

	return Clients{
		AI:       ai,
		TTS:      tts,
		YouTube:  yt,
		Bucket:   bucket,
		Document: document,
		Vision:   vision,
		Renderer: renderer,
		Vectors:  vectors,
		Bus:      eventBus,
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Vision != nil {
		_ = c.Vision.Close()
	}
	if c.Document != nil {
		_ = c.Document.Close()
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
}
