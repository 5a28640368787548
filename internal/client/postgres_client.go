package client

import (
	"context"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/trendz-app/auth-service/internal/config"
	"github.com/trendz-app/auth-service/internal/util"
)

// PostgresClient owns the connection pool for the credential store
type PostgresClient struct {
	Pool   *pgxpool.Pool
	config *config.PostgresConfig
}

func NewPostgresClient(cfg *config.Config, logger *zap.Logger) (*PostgresClient, error) {
	pgConfig := cfg.Postgres

	poolConfig, err := pgxpool.ParseConfig(pgConfig.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Postgres URL: %w", err)
	}
	poolConfig.MaxConns = int32(pgConfig.MaxConns)
	poolConfig.MinConns = int32(pgConfig.MinConns)
	poolConfig.MaxConnLifetime = pgConfig.ConnLifetime

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	util.Info("Postgres client initialized",
		zap.Int("max_conns", pgConfig.MaxConns),
		zap.Int("min_conns", pgConfig.MinConns))

	return &PostgresClient{
		Pool:   pool,
		config: &pgConfig,
	}, nil
}

// RunMigrations applies embedded goose migrations against the pool's database
func (p *PostgresClient) RunMigrations(ctx context.Context, fsys fs.FS, dir string) error {
	db := stdlib.OpenDBFromPool(p.Pool)
	defer db.Close()

	goose.SetBaseFS(fsys)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	util.Info("Database migrations applied")
	return nil
}

func (p *PostgresClient) HealthCheck(ctx context.Context) error {
	if err := p.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (p *PostgresClient) Close() {
	if p.Pool != nil {
		p.Pool.Close()
		util.Info("Postgres client closed")
	}
}
