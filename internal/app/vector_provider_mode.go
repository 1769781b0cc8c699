package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dewiapp/dewi-backend/internal/platform/gcp"
	"github.com/dewiapp/dewi-backend/internal/platform/qdrant"
)

type VectorProvider string

const (
	VectorProviderPinecone VectorProvider = "pinecone"
	VectorProviderQdrant   VectorProvider = "qdrant"
)

type VectorProviderConfigErrorCode string

const (
	VectorProviderConfigErrorInvalidProvider      VectorProviderConfigErrorCode = "invalid_provider"
	VectorProviderConfigErrorMissingQdrantURL     VectorProviderConfigErrorCode = "missing_qdrant_url"
	VectorProviderConfigErrorInvalidQdrantURL     VectorProviderConfigErrorCode = "invalid_qdrant_url"
	VectorProviderConfigErrorInvalidQdrantVector  VectorProviderConfigErrorCode = "invalid_qdrant_vector_dim"
	VectorProviderConfigErrorUnknownQdrantFailure VectorProviderConfigErrorCode = "qdrant_config_error"
)

type VectorProviderConfigError struct {
	Code        VectorProviderConfigErrorCode
	Provider    VectorProvider
	StorageMode string
	Cause       error
}

func (e *VectorProviderConfigError) Error() string {
	if e == nil {
		return "invalid vector provider config"
	}
	return fmt.Sprintf(
		"invalid vector provider config (code=%s provider=%q object_storage_mode=%q): %v",
		e.Code, e.Provider, e.StorageMode, e.Cause,
	)
}

func (e *VectorProviderConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

type VectorProviderConfig struct {
	Provider   VectorProvider
	ModeSource string
	Qdrant     qdrant.Config
}

// resolveVectorProviderConfig picks the vector backend. An explicit
// VECTOR_PROVIDER wins; otherwise the object storage mode decides, so
// emulator-backed local stacks get Qdrant and GCS deployments get Pinecone
// without extra configuration.
func resolveVectorProviderConfig(override string, storageMode gcp.ObjectStorageMode) (VectorProviderConfig, error) {
	provider := VectorProvider(strings.ToLower(strings.TrimSpace(override)))
	modeSource := "env"
	if provider == "" {
		modeSource = "object_storage_mode_default"
		switch storageMode {
		case gcp.ObjectStorageModeGCSEmulator:
			provider = VectorProviderQdrant
		default:
			provider = VectorProviderPinecone
		}
	}

	switch provider {
	case VectorProviderQdrant:
		qcfg, err := qdrant.ResolveConfigFromEnv()
		if err != nil {
			return VectorProviderConfig{}, mapVectorProviderConfigError(storageMode, err)
		}
		return VectorProviderConfig{
			Provider:   VectorProviderQdrant,
			ModeSource: modeSource,
			Qdrant:     qcfg,
		}, nil
	case VectorProviderPinecone:
		return VectorProviderConfig{
			Provider:   VectorProviderPinecone,
			ModeSource: modeSource,
		}, nil
	default:
		return VectorProviderConfig{}, &VectorProviderConfigError{
			Code:        VectorProviderConfigErrorInvalidProvider,
			Provider:    provider,
			StorageMode: string(storageMode),
			Cause:       fmt.Errorf("unsupported vector provider %q", provider),
		}
	}
}

func mapVectorProviderConfigError(storageMode gcp.ObjectStorageMode, err error) error {
	var qerr *qdrant.ConfigError
	if errors.As(err, &qerr) {
		code := VectorProviderConfigErrorUnknownQdrantFailure
		switch qerr.Code {
		case qdrant.ConfigErrorMissingURL:
			code = VectorProviderConfigErrorMissingQdrantURL
		case qdrant.ConfigErrorInvalidURL:
			code = VectorProviderConfigErrorInvalidQdrantURL
		case qdrant.ConfigErrorInvalidVectorDim:
			code = VectorProviderConfigErrorInvalidQdrantVector
		}
		return &VectorProviderConfigError{
			Code:        code,
			Provider:    VectorProviderQdrant,
			StorageMode: string(storageMode),
			Cause:       err,
		}
	}
	return &VectorProviderConfigError{
		Code:        VectorProviderConfigErrorUnknownQdrantFailure,
		Provider:    VectorProviderQdrant,
		StorageMode: string(storageMode),
		Cause:       err,
	}
}
