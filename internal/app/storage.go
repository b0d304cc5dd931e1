package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
	"go.opentelemetry.io/otel/attribute"

	"github.com/riskibarqy/learnhub-onboarding/internal/config"
	"github.com/riskibarqy/learnhub-onboarding/internal/domain/onboarding"
	"github.com/riskibarqy/learnhub-onboarding/internal/infrastructure/repository/memory"
	"github.com/riskibarqy/learnhub-onboarding/internal/infrastructure/repository/postgres"
	"github.com/riskibarqy/learnhub-onboarding/internal/platform/logging"
)

type storage struct {
	sessions onboarding.SessionRepository
	profiles onboarding.ProfileRepository
	outbox   onboarding.OutboxRepository
	db       *sqlx.DB
}

func openStorage(ctx context.Context, cfg config.Config, logger *logging.Logger) (*storage, error) {
	if cfg.StorageBackend != config.StoragePostgres {
		logger.Warn("using in-memory storage; sessions and outbox are lost on restart")
		return &storage{
			sessions: memory.NewSessionRepository(),
			profiles: memory.NewProfileRepository(),
			outbox:   memory.NewOutboxRepository(),
		}, nil
	}

	db, err := openPostgres(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("postgres storage connected", "db_name", dbNameFromURL(cfg.DBURL))
	return &storage{
		sessions: postgres.NewSessionRepository(db),
		profiles: postgres.NewProfileRepository(db),
		outbox:   postgres.NewOutboxRepository(db),
		db:       db,
	}, nil
}

func openPostgres(ctx context.Context, cfg config.Config) (*sqlx.DB, error) {
	dsn := NormalizeDBURL(cfg.DBURL, cfg.DBDisablePreparedBinary)
	db, err := otelsqlx.Open("postgres", dsn,
		otelsql.WithAttributes(attribute.String("db.system", "postgresql")),
		otelsql.WithDBName(dbNameFromURL(dsn)),
		otelsql.WithQueryFormatter(formatDBQueryForTrace),
	)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (s *storage) close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close postgres: %w", err)
	}
	return nil
}
