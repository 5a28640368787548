package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trendz-app/auth-service/internal/client"
	"github.com/trendz-app/auth-service/internal/models"
	"github.com/trendz-app/auth-service/internal/util"
)

const (
	flushInterval  = 5 * time.Second
	maxBatchSize   = 500
	bufferSize     = 4096
	publishTimeout = 5 * time.Second
)

const createEventsTable = `
CREATE TABLE IF NOT EXISTS auth_events (
    event_type LowCardinality(String),
    email_hash String,
    user_id    String,
    ip_address String,
    created_at DateTime64(3, 'UTC')
) ENGINE = MergeTree()
ORDER BY (event_type, created_at)
TTL toDateTime(created_at) + INTERVAL 90 DAY`

const insertEvents = `INSERT INTO auth_events (event_type, email_hash, user_id, ip_address, created_at)`

// Producer publishes keyed messages to the auth event topic
type Producer interface {
	ProduceMessage(ctx context.Context, key, value []byte) error
}

// Recorder publishes auth events to Kafka and batches them into ClickHouse.
// Both sinks are best-effort and both run off the request path: Record only
// enqueues, so a dead broker or sink never stalls an auth operation.
type Recorder struct {
	producer   Producer
	clickhouse *client.ClickHouseClient

	events chan models.AuthEvent
	stop   chan struct{}
	wg     sync.WaitGroup
}

func NewRecorder(ctx context.Context, producer Producer, clickhouse *client.ClickHouseClient) (*Recorder, error) {
	if clickhouse != nil {
		if err := clickhouse.Exec(ctx, createEventsTable); err != nil {
			return nil, err
		}
	}

	r := &Recorder{
		producer:   producer,
		clickhouse: clickhouse,
		events:     make(chan models.AuthEvent, bufferSize),
		stop:       make(chan struct{}),
	}

	r.wg.Add(1)
	go r.sinkLoop()

	return r, nil
}

// Record queues an event for both sinks and returns immediately. Drops the
// event when the buffer is full rather than blocking an auth request.
func (r *Recorder) Record(ctx context.Context, event models.AuthEvent) {
	select {
	case r.events <- event:
	default:
		util.Warn("Auth event buffer full, dropping event",
			zap.String("event_type", event.EventType))
	}
}

func (r *Recorder) publish(event models.AuthEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		util.Error("Failed to marshal auth event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := r.producer.ProduceMessage(ctx, []byte(event.EmailHash), payload); err != nil {
		util.Warn("Failed to publish auth event",
			zap.String("event_type", event.EventType),
			zap.Error(err))
	}
}

// sinkLoop drains the event buffer: each event goes to Kafka as it arrives
// and into the ClickHouse batch, which flushes on size or interval.
func (r *Recorder) sinkLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]models.AuthEvent, 0, maxBatchSize)
	sink := func(event models.AuthEvent) {
		if r.producer != nil {
			r.publish(event)
		}
		batch = append(batch, event)
	}

	for {
		select {
		case event := <-r.events:
			sink(event)
			if len(batch) >= maxBatchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-r.stop:
			for {
				select {
				case event := <-r.events:
					sink(event)
				default:
					if len(batch) > 0 {
						r.flush(batch)
					}
					return
				}
			}
		}
	}
}

func (r *Recorder) flush(batch []models.AuthEvent) {
	if r.clickhouse == nil {
		return
	}

	rows := make([][]interface{}, 0, len(batch))
	for _, event := range batch {
		rows = append(rows, []interface{}{
			event.EventType,
			event.EmailHash,
			event.UserID,
			event.IPAddress,
			event.CreatedAt,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.clickhouse.BatchInsert(ctx, insertEvents, rows); err != nil {
		util.Warn("Failed to flush auth events",
			zap.Int("count", len(batch)),
			zap.Error(err))
		return
	}

	util.Debug("Auth events flushed", zap.Int("count", len(batch)))
}

// Close drains the buffer and stops the sink loop
func (r *Recorder) Close() {
	close(r.stop)
	r.wg.Wait()
}
