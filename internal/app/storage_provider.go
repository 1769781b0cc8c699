package app

import (
	"errors"
	"fmt"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/platform/gcp"
)

var newBucketServiceWithConfig = gcp.NewBucketServiceWithConfig

type StorageBootstrapErrorCode string

const (
	StorageBootstrapErrorInvalidMode         StorageBootstrapErrorCode = "invalid_mode"
	StorageBootstrapErrorMissingEmulatorHost StorageBootstrapErrorCode = "missing_emulator_host"
	StorageBootstrapErrorInvalidEmulatorHost StorageBootstrapErrorCode = "invalid_emulator_host"
	StorageBootstrapErrorConnectFailed       StorageBootstrapErrorCode = "connect_failed"
)

type StorageBootstrapError struct {
	Code         StorageBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf(
		"object storage bootstrap failed (code=%s mode=%q emulator_host=%q): %v",
		e.Code, e.Mode, e.EmulatorHost, e.Cause,
	)
}

func (e *StorageBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveBucketService builds the object storage client from OBJECT_STORAGE_*
// environment configuration, classifying failures by bootstrap code so ops
// can tell a config typo from an unreachable emulator.
func resolveBucketService(log *logger.Logger) (gcp.BucketService, gcp.ObjectStorageConfig, error) {
	storageCfg, err := gcp.ResolveObjectStorageConfigFromEnv()
	if err != nil {
		classified := classifyStorageBootstrapError(storageCfg, err)
		log.Error("Object storage config invalid",
			"mode", storageCfg.Mode,
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", storageBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, storageCfg, classified
	}

	log.Info("Selecting object storage provider",
		"mode", storageCfg.Mode,
		"emulator_host", storageCfg.EmulatorHost,
	)

	bucket, err := newBucketServiceWithConfig(log, storageCfg)
	if err != nil {
		classified := classifyStorageBootstrapError(storageCfg, err)
		log.Error("Object storage bootstrap failed",
			"mode", storageCfg.Mode,
			"emulator_host", storageCfg.EmulatorHost,
			"error_code", storageBootstrapErrorCode(classified),
			"error", classified,
		)
		return nil, storageCfg, classified
	}
	return bucket, storageCfg, nil
}

func classifyStorageBootstrapError(storageCfg gcp.ObjectStorageConfig, err error) error {
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		code := StorageBootstrapErrorConnectFailed
		switch cfgErr.Code {
		case gcp.ObjectStorageConfigErrorInvalidMode:
			code = StorageBootstrapErrorInvalidMode
		case gcp.ObjectStorageConfigErrorMissingEmulatorHost:
			code = StorageBootstrapErrorMissingEmulatorHost
		case gcp.ObjectStorageConfigErrorInvalidEmulatorHost:
			code = StorageBootstrapErrorInvalidEmulatorHost
		}
		return &StorageBootstrapError{
			Code:         code,
			Mode:         string(storageCfg.Mode),
			EmulatorHost: storageCfg.EmulatorHost,
			Cause:        err,
		}
	}
	return &StorageBootstrapError{
		Code:         StorageBootstrapErrorConnectFailed,
		Mode:         string(storageCfg.Mode),
		EmulatorHost: storageCfg.EmulatorHost,
		Cause:        err,
	}
}

func storageBootstrapErrorCode(err error) StorageBootstrapErrorCode {
	var bootstrapErr *StorageBootstrapError
	if errors.As(err, &bootstrapErr) && bootstrapErr.Code != "" {
		return bootstrapErr.Code
	}
	return StorageBootstrapErrorConnectFailed
}
