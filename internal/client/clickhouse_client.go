package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/trendz-app/auth-service/internal/config"
	"github.com/trendz-app/auth-service/internal/util"
)

// ClickHouseClient is the analytics sink for auth events
type ClickHouseClient struct {
	conn   driver.Conn
	config *config.ClickhouseConfig
}

func NewClickHouseClient(cfg *config.Config, logger *zap.Logger) (*ClickHouseClient, error) {
	chConfig := cfg.Clickhouse

	opts := &ch.Options{
		Addr: []string{extractHostPort(chConfig.URL)},
		Auth: ch.Auth{
			Username: chConfig.Username,
			Password: chConfig.Password,
			Database: chConfig.Database,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     20,
		MaxIdleConns:     10,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: ch.ConnOpenInOrder,
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	util.Info("ClickHouse client initialized",
		zap.String("url", chConfig.URL),
		zap.String("database", chConfig.Database),
	)

	return &ClickHouseClient{
		conn:   conn,
		config: &chConfig,
	}, nil
}

// Exec executes a write query
func (c *ClickHouseClient) Exec(ctx context.Context, query string, args ...interface{}) error {
	return c.conn.Exec(ctx, query, args...)
}

// BatchInsert performs a batched insert of rows
func (c *ClickHouseClient) BatchInsert(ctx context.Context, query string, data [][]interface{}) error {
	batch, err := c.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, row := range data {
		if err := batch.Append(row...); err != nil {
			return fmt.Errorf("failed to append row to batch: %w", err)
		}
	}

	return batch.Send()
}

func (c *ClickHouseClient) HealthCheck(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouseClient) Close() error {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			util.Error("Failed to close ClickHouse connection", zap.Error(err))
			return err
		}
		util.Info("ClickHouse connection closed")
	}
	return nil
}

func extractHostPort(url string) string {
	cleanURL := strings.TrimPrefix(url, "http://")
	cleanURL = strings.TrimPrefix(cleanURL, "https://")
	if !strings.Contains(cleanURL, ":") {
		if strings.HasPrefix(url, "https://") {
			return cleanURL + ":8443"
		}
		return cleanURL + ":8123"
	}
	return cleanURL
}
