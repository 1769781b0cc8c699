package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"strings"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/platform/gcp"
	"github.com/dewiapp/dewi-backend/internal/platform/pinecone"
	"github.com/dewiapp/dewi-backend/internal/platform/qdrant"
)

// Constructor seams so provider dispatch is testable without live backends.
var (
	newQdrantStore = qdrant.NewStore
	newPineconeStore = func(ctx context.Context, log *logger.Logger) (pinecone.VectorStore, error) {
		return pinecone.NewStore(ctx, log)
	}
)

type VectorBootstrapErrorCode string

const (
	VectorBootstrapErrorInvalidProvider    VectorBootstrapErrorCode = "invalid_provider"
	VectorBootstrapErrorQdrantConfigFailed VectorBootstrapErrorCode = "qdrant_config_failed"
	VectorBootstrapErrorConnectFailed      VectorBootstrapErrorCode = "connect_failed"
	VectorBootstrapErrorProviderInitFailed VectorBootstrapErrorCode = "provider_init_failed"
)

type VectorBootstrapError struct {
	Code              VectorBootstrapErrorCode
	Provider          string
	ObjectStorageMode string
	Cause             error
}

func (e *VectorBootstrapError) Error() string {
	if e == nil {
		return "vector store bootstrap failed"
	}
	return fmt.Sprintf(
		"vector store bootstrap failed (code=%s provider=%q object_storage_mode=%q): %v",
		e.Code, e.Provider, e.ObjectStorageMode, e.Cause,
	)
}

func (e *VectorBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveVectorStore builds the configured vector backend. Fact dedup and
// retirement depend on it, so any failure here fails startup rather than
// degrading to a store-less run.
func resolveVectorStore(
	ctx context.Context,
	log *logger.Logger,
	cfg Config,
	storageMode gcp.ObjectStorageMode,
) (pinecone.VectorStore, error) {
	providerCfg, err := resolveVectorProviderConfig(cfg.VectorProvider, storageMode)
	if err != nil {
		classified := classifyVectorBootstrapError("", storageMode, err)
		log.Error("Vector store provider selection failed",
			"requested_provider", cfg.VectorProvider,
			"object_storage_mode", storageMode,
			"error_code", vectorBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, classified
	}

	provider := string(providerCfg.Provider)
	switch providerCfg.Provider {
	case VectorProviderQdrant:
		log.Info("Selecting vector store provider",
			"provider", provider,
			"provider_mode_source", providerCfg.ModeSource,
			"qdrant_url", providerCfg.Qdrant.URL,
			"qdrant_collection", providerCfg.Qdrant.Collection,
			"qdrant_namespace_prefix", providerCfg.Qdrant.NamespacePrefix,
			"qdrant_vector_dim", providerCfg.Qdrant.VectorDim,
		)
		vs, err := newQdrantStore(ctx, log, providerCfg.Qdrant)
		if err != nil {
			return nil, logVectorBootstrapFailure(log, provider, storageMode, providerCfg.ModeSource, err)
		}
		return instrumentVectorStore(provider, vs), nil

	case VectorProviderPinecone:
		log.Info("Selecting vector store provider",
			"provider", provider,
			"provider_mode_source", providerCfg.ModeSource,
		)
		vs, err := newPineconeStore(ctx, log)
		if err != nil {
			return nil, logVectorBootstrapFailure(log, provider, storageMode, providerCfg.ModeSource, err)
		}
		return instrumentVectorStore(provider, vs), nil

	default:
		err := &VectorBootstrapError{
			Code:              VectorBootstrapErrorInvalidProvider,
			Provider:          provider,
			ObjectStorageMode: string(storageMode),
			Cause:             fmt.Errorf("unsupported vector provider %q", provider),
		}
		log.Error("Vector store provider selection failed", "provider", provider, "error", err)
		return nil, err
	}
}

func logVectorBootstrapFailure(
	log *logger.Logger,
	provider string,
	storageMode gcp.ObjectStorageMode,
	modeSource string,
	err error,
) error {
	classified := classifyVectorBootstrapError(provider, storageMode, err)
	log.Error("Vector store provider bootstrap failed",
		"provider", provider,
		"object_storage_mode", storageMode,
		"provider_mode_source", modeSource,
		"error_code", vectorBootstrapErrorCode(classified),
		"error", classified,
	)
	return classified
}

func classifyVectorBootstrapError(provider string, storageMode gcp.ObjectStorageMode, err error) error {
	wrap := func(code VectorBootstrapErrorCode) error {
		return &VectorBootstrapError{
			Code:              code,
			Provider:          provider,
			ObjectStorageMode: string(storageMode),
			Cause:             err,
		}
	}

	var providerCfgErr *VectorProviderConfigError
	if errors.As(err, &providerCfgErr) {
		if providerCfgErr.Code == VectorProviderConfigErrorInvalidProvider {
			return wrap(VectorBootstrapErrorInvalidProvider)
		}
		return wrap(VectorBootstrapErrorQdrantConfigFailed)
	}
	var qdrantCfgErr *qdrant.ConfigError
	if errors.As(err, &qdrantCfgErr) {
		return wrap(VectorBootstrapErrorQdrantConfigFailed)
	}

	var urlErr *neturl.Error
	if errors.As(err, &urlErr) {
		return wrap(VectorBootstrapErrorConnectFailed)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return wrap(VectorBootstrapErrorConnectFailed)
	}
	errLower := strings.ToLower(err.Error())
	if strings.Contains(errLower, "ready check failed") || strings.Contains(errLower, "connection refused") {
		return wrap(VectorBootstrapErrorConnectFailed)
	}

	return wrap(VectorBootstrapErrorProviderInitFailed)
}

func vectorBootstrapErrorCode(err error) VectorBootstrapErrorCode {
	var bootstrapErr *VectorBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return VectorBootstrapErrorConnectFailed
}
