package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dewiapp/dewi-backend/internal/pkg/httpx"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
)

func testClient(t *testing.T, srv *httptest.Server, attempts int) *client {
	t.Helper()
	return &client{
		httpClient: srv.Client(),
		baseURL:    srv.URL,
		apiKey:     "test-key",
		model:      "gpt-5.2",
		embedModel: "text-embedding-3-small",
		retry:      httpx.RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		log:        logger.NewNop(),
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Model != "text-embedding-3-small" {
			t.Errorf("unexpected model %q", req.Model)
		}
		// Deliver results out of order; the client must reorder by index.
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[2.0]},{"index":0,"embedding":[1.0]}]}`))
	}))
	defer srv.Close()

	vecs, err := testClient(t, srv, 1).Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 1.0 || vecs[1][0] != 2.0 {
		t.Fatalf("embeddings not ordered by index: %v", vecs)
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1.0]}]}`))
	}))
	defer srv.Close()

	if _, err := testClient(t, srv, 1).Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error for missing embedding")
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty input")
	}))
	defer srv.Close()

	vecs, err := testClient(t, srv, 1).Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("expected nil, nil for empty input, got %v, %v", vecs, err)
	}
}

func TestGenerateJSONHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req responsesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Text.Format.Type != "json_schema" || !req.Text.Format.Strict {
			t.Errorf("unexpected format %+v", req.Text.Format)
		}
		if req.Text.Format.Name != "fact_list" {
			t.Errorf("unexpected schema name %q", req.Text.Format.Name)
		}
		if len(req.Input) != 2 || req.Input[0].Role != "system" || req.Input[1].Role != "user" {
			t.Errorf("unexpected input %+v", req.Input)
		}
		_, _ = w.Write([]byte(`{"output":[{"type":"reasoning"},{"type":"message","content":[{"type":"output_text","text":"{\"facts\":[\"The sun is a star.\"]}"}]}]}`))
	}))
	defer srv.Close()

	raw, err := testClient(t, srv, 1).GenerateJSON(context.Background(), "sys", "usr", "fact_list", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	var out struct {
		Facts []string `json:"facts"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(out.Facts) != 1 || out.Facts[0] != "The sun is a star." {
		t.Fatalf("unexpected output %+v", out)
	}
}

func TestGenerateJSONRefusal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"output":[{"type":"message","content":[{"type":"refusal","refusal":"cannot help"}]}]}`))
	}))
	defer srv.Close()

	_, err := testClient(t, srv, 1).GenerateJSON(context.Background(), "sys", "usr", "fact_list", nil)
	if err == nil || !strings.Contains(err.Error(), "refused") {
		t.Fatalf("expected refusal error, got %v", err)
	}
}

func TestRetriesOn429(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1.0]}]}`))
	}))
	defer srv.Close()

	vecs, err := testClient(t, srv, 3).Embed(context.Background(), []string{"a"})
	if err != nil {
		t.Fatalf("Embed after retry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(vecs) != 1 {
		t.Fatalf("unexpected result %v", vecs)
	}
}

func TestNoRetryOn400(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	_, err := testClient(t, srv, 3).Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected no retry on 400, got %d calls", calls)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(logger.NewNop()); err == nil {
		t.Fatal("expected error without OPENAI_API_KEY")
	}
}
