package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dewiapp/dewi-backend/internal/pkg/logger"
	"github.com/dewiapp/dewi-backend/internal/types"
	"github.com/dewiapp/dewi-backend/internal/utils"
)

const pgDuplicateObject = "42710"

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	host := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	port := utils.GetEnv("POSTGRES_PORT", "5432", log)
	user := utils.GetEnv("POSTGRES_USER", "postgres", log)
	password := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	name := utils.GetEnv("POSTGRES_NAME", "dewi", log)
	sslMode := utils.GetEnv("POSTGRES_SSLMODE", "disable", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslMode)

	serviceLog.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	serviceLog.Info("Connected to Postgres", "host", host, "db", name)

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.Learner{},
		&types.Source{},
		&types.Fact{},
		&types.FactLink{},
		&types.ReviewState{},
		&types.GestureEvent{},
		&types.Job{},
		&types.VideoScript{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return fmt.Errorf("auto migrate: %w", err)
	}

	constraints := []struct {
		name string
		ddl  string
	}{
		{"fk_sources_learner_id", `ALTER TABLE "sources" ADD CONSTRAINT "fk_sources_learner_id" FOREIGN KEY ("learner_id") REFERENCES "learners"("id") ON DELETE CASCADE`},
		{"fk_facts_source_id", `ALTER TABLE "facts" ADD CONSTRAINT "fk_facts_source_id" FOREIGN KEY ("source_id") REFERENCES "sources"("id") ON DELETE CASCADE`},
		{"fk_fact_links_fact_id", `ALTER TABLE "fact_links" ADD CONSTRAINT "fk_fact_links_fact_id" FOREIGN KEY ("fact_id") REFERENCES "facts"("id") ON DELETE CASCADE`},
		{"fk_fact_links_related_fact_id", `ALTER TABLE "fact_links" ADD CONSTRAINT "fk_fact_links_related_fact_id" FOREIGN KEY ("related_fact_id") REFERENCES "facts"("id") ON DELETE CASCADE`},
		{"fk_review_state_learner_id", `ALTER TABLE "review_state" ADD CONSTRAINT "fk_review_state_learner_id" FOREIGN KEY ("learner_id") REFERENCES "learners"("id") ON DELETE CASCADE`},
		{"fk_review_state_fact_id", `ALTER TABLE "review_state" ADD CONSTRAINT "fk_review_state_fact_id" FOREIGN KEY ("fact_id") REFERENCES "facts"("id") ON DELETE CASCADE`},
		{"fk_gesture_events_learner_id", `ALTER TABLE "gesture_events" ADD CONSTRAINT "fk_gesture_events_learner_id" FOREIGN KEY ("learner_id") REFERENCES "learners"("id") ON DELETE CASCADE`},
		{"fk_video_scripts_fact_id", `ALTER TABLE "video_scripts" ADD CONSTRAINT "fk_video_scripts_fact_id" FOREIGN KEY ("fact_id") REFERENCES "facts"("id") ON DELETE CASCADE`},
	}
	for _, c := range constraints {
		if err := s.addConstraint(c.name, c.ddl); err != nil {
			return err
		}
	}
	return nil
}

// addConstraint tolerates re-runs: an already-present constraint is not an
// error.
func (s *PostgresService) addConstraint(name, ddl string) error {
	if err := s.db.Exec(ddl).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgDuplicateObject {
			return nil
		}
		return fmt.Errorf("add constraint %s: %w", name, err)
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
