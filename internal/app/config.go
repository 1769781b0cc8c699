package app

import (
	"time"

	"github.com/dewiapp/dewi-backend/internal/jobs"
	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/utils"
)

type Config struct {
	Port        string
	Environment string
	Version     string

	// VectorProvider overrides the storage-mode default when set
	// ("qdrant" or "pinecone").
	VectorProvider string

	Worker jobs.WorkerConfig
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Port:           utils.GetEnv("PORT", "8080", log),
		Environment:    utils.GetEnv("APP_ENV", "development", log),
		Version:        utils.GetEnv("APP_VERSION", "dev", log),
		VectorProvider: utils.GetEnv("VECTOR_PROVIDER", "", log),
		Worker: jobs.WorkerConfig{
			Concurrency:  utils.GetEnvAsInt("JOB_WORKER_CONCURRENCY", 2, log),
			PollInterval: time.Duration(utils.GetEnvAsInt("JOB_WORKER_POLL_MS", 1000, log)) * time.Millisecond,
			MaxAttempts:  utils.GetEnvAsInt("JOB_MAX_ATTEMPTS", 3, log),
			RetryDelay:   time.Duration(utils.GetEnvAsInt("JOB_RETRY_DELAY_SECONDS", 30, log)) * time.Second,
			StaleRunning: time.Duration(utils.GetEnvAsInt("JOB_STALE_RUNNING_SECONDS", 300, log)) * time.Second,
		},
	}
}
