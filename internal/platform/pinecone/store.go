package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dewiapp/dewi-backend/internal/pkg/httpx"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/utils"
)

const apiVersion = "2025-10"

// Store talks to a single Pinecone index over REST. The control plane is
// only used at startup to resolve the data-plane host when
// PINECONE_INDEX_HOST is not set.
type Store struct {
	httpClient *http.Client
	baseURL    string
	host       string
	apiKey     string
	prefix     string
	retry      httpx.RetryPolicy
	log        *logger.Logger
}

// NewStore reads PINECONE_* configuration from the environment and
// resolves the index host if needed. It fails fast on a missing API key
// or an unresolvable index.
func NewStore(ctx context.Context, baseLog *logger.Logger) (*Store, error) {
	log := baseLog.With("component", "pinecone_store")
	apiKey := utils.GetEnv("PINECONE_API_KEY", "", log)
	if apiKey == "" {
		return nil, fmt.Errorf("pinecone: PINECONE_API_KEY is not set")
	}
	s := &Store{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(utils.GetEnv("PINECONE_BASE_URL", "https://api.pinecone.io", log), "/"),
		host:       strings.TrimSpace(utils.GetEnv("PINECONE_INDEX_HOST", "", log)),
		apiKey:     apiKey,
		prefix:     utils.GetEnv("PINECONE_NAMESPACE_PREFIX", "", log),
		retry:      httpx.DefaultRetryPolicy(),
		log:        log,
	}
	if s.host == "" {
		indexName := utils.GetEnv("PINECONE_INDEX_NAME", "", log)
		if indexName == "" {
			return nil, fmt.Errorf("pinecone: set PINECONE_INDEX_HOST or PINECONE_INDEX_NAME")
		}
		host, err := s.describeIndexHost(ctx, indexName)
		if err != nil {
			return nil, err
		}
		s.host = host
		log.Info("Resolved Pinecone index host", "index", indexName, "host", host)
	}
	if !strings.Contains(s.host, "://") {
		s.host = "https://" + s.host
	}
	s.host = strings.TrimRight(s.host, "/")
	return s, nil
}

func (s *Store) namespace(ns string) string { return s.prefix + ns }

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("pinecone: status %d: %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int { return e.StatusCode }

func (s *Store) do(ctx context.Context, method, url string, payload, out any) error {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("pinecone: marshal request: %w", err)
		}
	}
	return s.retry.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Api-Key", s.apiKey)
		req.Header.Set("X-Pinecone-Api-Version", apiVersion)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
		if err != nil {
			return resp, fmt.Errorf("pinecone: read response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp, &httpError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		}
		if out != nil {
			if err := json.Unmarshal(raw, out); err != nil {
				return resp, fmt.Errorf("pinecone: decode response: %w", err)
			}
		}
		return resp, nil
	})
}

type indexDescription struct {
	Host   string `json:"host"`
	Status struct {
		Ready bool   `json:"ready"`
		State string `json:"state"`
	} `json:"status"`
}

func (s *Store) describeIndexHost(ctx context.Context, indexName string) (string, error) {
	var desc indexDescription
	if err := s.do(ctx, http.MethodGet, s.baseURL+"/indexes/"+indexName, nil, &desc); err != nil {
		return "", err
	}
	if strings.TrimSpace(desc.Host) == "" {
		return "", fmt.Errorf("pinecone: index %q has no host yet (state %s)", indexName, desc.Status.State)
	}
	return desc.Host, nil
}

type wireVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type upsertRequest struct {
	Vectors   []wireVector `json:"vectors"`
	Namespace string       `json:"namespace,omitempty"`
}

func (s *Store) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	req := upsertRequest{Namespace: s.namespace(namespace)}
	for _, v := range vectors {
		req.Vectors = append(req.Vectors, wireVector{ID: v.ID, Values: v.Values, Metadata: v.Metadata})
	}
	return s.do(ctx, http.MethodPost, s.host+"/vectors/upsert", req, nil)
}

type queryRequest struct {
	Namespace       string         `json:"namespace,omitempty"`
	Vector          []float32      `json:"vector"`
	TopK            int            `json:"topK"`
	Filter          map[string]any `json:"filter,omitempty"`
	IncludeMetadata bool           `json:"includeMetadata,omitempty"`
}

type queryResponse struct {
	Matches []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	} `json:"matches"`
}

func (s *Store) QueryMatches(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]any) ([]VectorMatch, error) {
	if topK <= 0 {
		topK = 5
	}
	var resp queryResponse
	req := queryRequest{
		Namespace: s.namespace(namespace),
		Vector:    vector,
		TopK:      topK,
		Filter:    filter,
	}
	if err := s.do(ctx, http.MethodPost, s.host+"/query", req, &resp); err != nil {
		return nil, err
	}
	out := make([]VectorMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		out = append(out, VectorMatch{ID: m.ID, Score: m.Score})
	}
	return out, nil
}

type deleteRequest struct {
	IDs       []string `json:"ids"`
	Namespace string   `json:"namespace,omitempty"`
}

func (s *Store) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	req := deleteRequest{IDs: ids, Namespace: s.namespace(namespace)}
	return s.do(ctx, http.MethodPost, s.host+"/vectors/delete", req, nil)
}

var _ VectorStore = (*Store)(nil)
