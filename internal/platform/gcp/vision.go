package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
)

// Vision OCRs a single slide image. The ingestion service calls it once
// per slide and stitches the results together with slide-break hints, so
// only the text and an overall confidence are needed here.
type Vision interface {
	OCRImage(ctx context.Context, img []byte) (*ImageExtraction, error)
	Close() error
}

type ImageExtraction struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

type visionService struct {
	log          *logger.Logger
	visionClient *vision.ImageAnnotatorClient
}

func NewVision(baseLog *logger.Logger) (Vision, error) {
	client, err := vision.NewImageAnnotatorClient(context.Background(), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &visionService{
		log:          baseLog.With("component", "vision_ocr"),
		visionClient: client,
	}, nil
}

func (s *visionService) Close() error {
	if s == nil || s.visionClient == nil {
		return nil
	}
	return s.visionClient.Close()
}

func (s *visionService) OCRImage(ctx context.Context, img []byte) (*ImageExtraction, error) {
	if len(img) == 0 {
		return &ImageExtraction{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image:    &visionpb.Image{Content: img},
				Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
			},
		},
	}
	resp, err := s.visionClient.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision BatchAnnotateImages: %w", err)
	}
	if resp == nil || len(resp.Responses) == 0 || resp.Responses[0] == nil {
		return &ImageExtraction{}, nil
	}
	r0 := resp.Responses[0]
	if r0.Error != nil && r0.Error.Message != "" {
		return nil, fmt.Errorf("vision annotate error: %s", r0.Error.Message)
	}
	return buildImageExtraction(r0.FullTextAnnotation), nil
}

// buildImageExtraction keeps line structure (OCR newlines separate text
// blocks on a slide) but normalizes runs of blank lines down to one so
// the chunker sees clean paragraph breaks.
func buildImageExtraction(fta *visionpb.TextAnnotation) *ImageExtraction {
	if fta == nil || strings.TrimSpace(fta.Text) == "" {
		return &ImageExtraction{}
	}
	lines := strings.Split(strings.ReplaceAll(fta.Text, "\r\n", "\n"), "\n")
	var b strings.Builder
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			blank = b.Len() > 0
			continue
		}
		if b.Len() > 0 {
			if blank {
				b.WriteString("\n\n")
			} else {
				b.WriteString("\n")
			}
		}
		b.WriteString(line)
		blank = false
	}

	var sum float64
	n := 0
	for _, pg := range fta.Pages {
		if pg == nil {
			continue
		}
		for _, blk := range pg.Blocks {
			if blk == nil || blk.Confidence <= 0 {
				continue
			}
			sum += float64(blk.Confidence)
			n++
		}
	}
	conf := 0.0
	if n > 0 {
		conf = sum / float64(n)
	}
	return &ImageExtraction{Text: b.String(), Confidence: conf}
}
