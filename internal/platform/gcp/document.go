package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
)

// Document extracts text from uploaded PDFs. Page boundaries come back
// as rune offsets into the extracted text so the chunker can honor them.
type Document interface {
	ExtractPDF(ctx context.Context, data []byte) (*PDFExtraction, error)
	Close() error
}

type PDFExtraction struct {
	Text        string `json:"text"`
	PageOffsets []int  `json:"page_offsets,omitempty"`
	Pages       int    `json:"pages"`
}

type documentService struct {
	log       *logger.Logger
	docClient *documentai.DocumentProcessorClient
	processor string
}

func NewDocument(baseLog *logger.Logger) (Document, error) {
	log := baseLog.With("component", "documentai")

	projectID := strings.TrimSpace(os.Getenv("DOCUMENTAI_PROJECT_ID"))
	processorID := strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_ID"))
	if projectID == "" || processorID == "" {
		return nil, fmt.Errorf("documentai: DOCUMENTAI_PROJECT_ID and DOCUMENTAI_PROCESSOR_ID are required")
	}
	location := strings.TrimSpace(os.Getenv("DOCUMENTAI_LOCATION"))
	if location == "" {
		location = "us"
	}
	processor := processorName(projectID, location, processorID, strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_VERSION")))

	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)
	client, err := documentai.NewDocumentProcessorClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}

	log.Info("Document AI initialized", "endpoint", endpoint, "processor", processor)
	return &documentService{log: log, docClient: client, processor: processor}, nil
}

func (s *documentService) Close() error {
	if s == nil || s.docClient == nil {
		return nil
	}
	return s.docClient.Close()
}

func (s *documentService) ExtractPDF(ctx context.Context, data []byte) (*PDFExtraction, error) {
	if len(data) == 0 {
		return &PDFExtraction{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	req := &documentaipb.ProcessRequest{
		Name: s.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: "application/pdf",
			},
		},
	}
	resp, err := s.docClient.ProcessDocument(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return &PDFExtraction{}, nil
	}
	return buildPDFExtraction(resp.Document), nil
}

// buildPDFExtraction concatenates per-page paragraph text separated by
// blank lines and records the rune offset where each page starts. Some
// processors return doc.Text without structured paragraphs; then the raw
// text is used and no page offsets are reported.
func buildPDFExtraction(doc *documentaipb.Document) *PDFExtraction {
	out := &PDFExtraction{Pages: len(doc.Pages)}

	var b strings.Builder
	runeCount := 0
	var offsets []int
	for _, p := range doc.Pages {
		if p == nil {
			continue
		}
		var pageText strings.Builder
		for _, para := range p.Paragraphs {
			if para == nil || para.Layout == nil || para.Layout.TextAnchor == nil {
				continue
			}
			t := strings.TrimSpace(textFromAnchor(doc.Text, para.Layout.TextAnchor))
			if t == "" {
				continue
			}
			if pageText.Len() > 0 {
				pageText.WriteString("\n")
			}
			pageText.WriteString(t)
		}
		pt := strings.TrimSpace(pageText.String())
		if pt == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
			runeCount += 2
		}
		offsets = append(offsets, runeCount)
		b.WriteString(pt)
		runeCount += utf8.RuneCountInString(pt)
	}

	out.Text = b.String()
	out.PageOffsets = offsets
	if out.Text == "" && strings.TrimSpace(doc.Text) != "" {
		out.Text = strings.TrimSpace(doc.Text)
		out.PageOffsets = nil
	}
	return out
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || len(anchor.TextSegments) == 0 || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		if seg == nil {
			continue
		}
		start := int(seg.StartIndex)
		end := int(seg.EndIndex)
		if start < 0 {
			start = 0
		}
		if end > len(full) {
			end = len(full)
		}
		if start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}

func processorName(project, location, processorID, version string) string {
	base := fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID)
	if version != "" {
		return base + "/processorVersions/" + version
	}
	return base
}
