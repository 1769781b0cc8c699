package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/platform/pinecone"
)

const (
	payloadNamespaceKey = "_dw_namespace"
	payloadVectorIDKey  = "_dw_vector_id"
	maxErrorBodyBytes   = 1024
)

// Point IDs are derived deterministically from (namespace, vector ID) so
// re-upserting a fact overwrites its point instead of duplicating it.
var pointIDNamespaceUUID = uuid.MustParse("6b1de5d6-90ad-4e36-9c1f-6e1a25c86a41")

type store struct {
	log      *logger.Logger
	cfg      Config
	baseURL  string
	distance string
	http     *http.Client
}

// NewStore validates cfg, checks the instance is reachable and creates
// the collection when it does not exist yet.
func NewStore(ctx context.Context, baseLog *logger.Logger, cfg Config) (pinecone.VectorStore, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	s := &store{
		log:     baseLog.With("component", "qdrant_store"),
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}
	s.log.Info("Qdrant vector store ready",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"namespace_prefix", cfg.NamespacePrefix,
		"vector_dim", cfg.VectorDim,
		"distance", s.distance,
	)
	return s, nil
}

func (s *store) qualifyNamespace(namespace string) string {
	ns := strings.TrimSpace(namespace)
	if ns == "" {
		return s.cfg.NamespacePrefix
	}
	return s.cfg.NamespacePrefix + ":" + ns
}

func (s *store) pointID(qualifiedNS, vectorID string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(qualifiedNS+"|"+vectorID)).String()
}

func (s *store) collectionPath(suffix string) string {
	return "/collections/" + s.cfg.Collection + suffix
}

func (s *store) Upsert(ctx context.Context, namespace string, vectors []pinecone.Vector) error {
	const op = "upsert"
	if len(vectors) == 0 {
		return nil
	}
	qualifiedNS := s.qualifyNamespace(namespace)
	points := make([]map[string]any, 0, len(vectors))
	for _, v := range vectors {
		id := strings.TrimSpace(v.ID)
		if id == "" {
			return opErr(op, OperationErrorValidation, "vector id is required", nil)
		}
		if len(v.Values) != s.cfg.VectorDim {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("vector %q dimension mismatch: expected=%d got=%d", id, s.cfg.VectorDim, len(v.Values)), nil)
		}
		payload := make(map[string]any, len(v.Metadata)+2)
		for k, val := range v.Metadata {
			payload[k] = val
		}
		payload[payloadNamespaceKey] = qualifiedNS
		payload[payloadVectorIDKey] = id
		points = append(points, map[string]any{
			"id":      s.pointID(qualifiedNS, id),
			"vector":  v.Values,
			"payload": payload,
		})
	}
	return s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

type searchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func (s *store) QueryMatches(ctx context.Context, namespace string, vector []float32, topK int, filter map[string]any) ([]pinecone.VectorMatch, error) {
	const op = "query"
	if len(vector) != s.cfg.VectorDim {
		return nil, opErr(op, OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(vector)), nil)
	}
	if topK <= 0 {
		topK = 5
	}
	qualifiedNS := s.qualifyNamespace(namespace)
	must, mustNot, err := translateFilter(filter)
	if err != nil {
		return nil, err
	}
	must = append([]any{matchCondition(payloadNamespaceKey, qualifiedNS)}, must...)
	qf := map[string]any{"must": must}
	if len(mustNot) > 0 {
		qf["must_not"] = mustNot
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
		"filter":       qf,
	}
	var items []searchResultItem
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/search"), req, &items); err != nil {
		return nil, err
	}

	out := make([]pinecone.VectorMatch, 0, len(items))
	for _, item := range items {
		id, _ := item.Payload[payloadVectorIDKey].(string)
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		out = append(out, pinecone.VectorMatch{ID: id, Score: s.normalizeScore(item.Score)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ID < out[j].ID
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func (s *store) DeleteIDs(ctx context.Context, namespace string, ids []string) error {
	const op = "delete"
	if len(ids) == 0 {
		return nil
	}
	qualifiedNS := s.qualifyNamespace(namespace)
	pointIDs := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		pid := s.pointID(qualifiedNS, id)
		if _, dup := seen[pid]; dup {
			continue
		}
		seen[pid] = struct{}{}
		pointIDs = append(pointIDs, pid)
	}
	if len(pointIDs) == 0 {
		return nil
	}
	return s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points/delete?wait=true"), map[string]any{"points": pointIDs}, nil)
}

// ensureReady probes /readyz, then describes the collection. A missing
// collection is created with cosine distance so a fresh instance works
// without manual setup; an existing one must match the configured size.
func (s *store) ensureReady(ctx context.Context) error {
	const op = "bootstrap"

	readyReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	readyResp, err := s.http.Do(readyReq)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "qdrant ready check failed", err)
	}
	_ = readyResp.Body.Close()
	if readyResp.StatusCode < 200 || readyResp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			StatusCode: readyResp.StatusCode,
			Message:    "qdrant ready check failed",
		}
	}

	size, distance, err := s.describeCollection(ctx)
	if err != nil {
		if !isNotFound(err) {
			return err
		}
		if err := s.createCollection(ctx); err != nil {
			return err
		}
		size, distance, err = s.describeCollection(ctx)
		if err != nil {
			return err
		}
		s.log.Info("Created Qdrant collection", "collection", s.cfg.Collection, "vector_dim", s.cfg.VectorDim)
	}
	if size != 0 && size != s.cfg.VectorDim {
		return opErr(op, OperationErrorValidation,
			fmt.Sprintf("collection %q vector size mismatch: expected=%d actual=%d", s.cfg.Collection, s.cfg.VectorDim, size), nil)
	}
	s.distance = strings.TrimSpace(distance)
	return nil
}

func isNotFound(err error) bool {
	var operr *OperationError
	return errors.As(err, &operr) && operr.StatusCode == http.StatusNotFound
}

func (s *store) describeCollection(ctx context.Context) (size int, distance string, err error) {
	var result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := s.doJSON(ctx, "describe_collection", http.MethodGet, s.collectionPath(""), nil, &result); err != nil {
		return 0, "", err
	}
	return result.Config.Params.Vectors.Size, result.Config.Params.Vectors.Distance, nil
}

func (s *store) createCollection(ctx context.Context) error {
	req := map[string]any{
		"vectors": map[string]any{
			"size":     s.cfg.VectorDim,
			"distance": "Cosine",
		},
	}
	return s.doJSON(ctx, "create_collection", http.MethodPut, s.collectionPath(""), req, nil)
}

// Qdrant wraps every response in {"result": ..., "status": ..., "time": ...}.
type envelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
}

func (s *store) doJSON(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorValidation, "encode request failed", err)
		}
		body = &buf
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if err != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorRequestFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode envelope failed", err)
	}
	if msg := envelopeStatusError(env.Status); msg != "" {
		return &OperationError{Code: OperationErrorRequestFailed, Operation: op, StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil || len(env.Result) == 0 || string(env.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode result failed", err)
	}
	return nil
}

func envelopeStatusError(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}
	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func (s *store) normalizeScore(score float64) float64 {
	switch strings.ToLower(s.distance) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	default:
		return score
	}
}
