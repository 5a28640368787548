package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trendz-app/auth-service/internal/client"
	"github.com/trendz-app/auth-service/internal/config"
	"github.com/trendz-app/auth-service/internal/events"
	"github.com/trendz-app/auth-service/internal/hashing"
	"github.com/trendz-app/auth-service/internal/mailer"
	pgrepo "github.com/trendz-app/auth-service/internal/repository/postgres"
	"github.com/trendz-app/auth-service/internal/repository/postgres/migrations"
	redisrepo "github.com/trendz-app/auth-service/internal/repository/redis"
	"github.com/trendz-app/auth-service/internal/search"
	"github.com/trendz-app/auth-service/internal/service"
	"github.com/trendz-app/auth-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	postgresClient   *client.PostgresClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	// Managers
	hasher     *hashing.Hasher
	dispatcher mailer.Dispatcher
	recorder   *events.Recorder

	// Repositories and services
	userRepository *pgrepo.UserRepository
	otpStore       *redisrepo.OTPStore
	sessionStore   *redisrepo.SessionStore
	rateLimitStore *redisrepo.RateLimitStore
	userIndex      service.UserIndexer
	authService    *service.AuthService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
	)

	return factory, nil
}

// initializeClients initializes all external service clients with health
// checks. Postgres and Redis are critical everywhere; Kafka is always
// best-effort; ClickHouse and Elasticsearch are critical only in production.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Redis
	redisClient, err := client.NewRedisClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	f.redisClient = redisClient
	if err := f.redisClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}

	// Postgres
	postgresClient, err := client.NewPostgresClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	f.postgresClient = postgresClient
	if err := f.postgresClient.RunMigrations(ctx, migrations.FS, "."); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}

	var initErrors []error

	// Kafka
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
	}

	// Elasticsearch
	if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
	} else {
		f.esClient = esClient
	}

	// ClickHouse
	if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = chClient
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers wires the hasher, mail dispatcher, and event recorder
func (f *Factory) initializeManagers() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	f.hasher = hashing.NewHasher(f.config)

	policy := mailer.PolicyForEnvironment(f.config.Environment)
	f.dispatcher = mailer.NewSMTPDispatcher(f.config, policy)

	var producer events.Producer
	if f.kafkaProducer != nil {
		producer = f.kafkaProducer
	}

	recorder, err := events.NewRecorder(ctx, producer, f.clickhouseClient)
	if err != nil {
		if f.config.IsProduction() {
			return fmt.Errorf("event recorder: %w", err)
		}
		util.Warn("Event recorder initialization warning", util.ErrorField(err))
		recorder, err = events.NewRecorder(ctx, producer, nil)
		if err != nil {
			return fmt.Errorf("event recorder: %w", err)
		}
	}
	f.recorder = recorder

	return nil
}

// ==============================
// Repositories and services
// ==============================

func (f *Factory) UserRepository() *pgrepo.UserRepository {
	if f.userRepository == nil {
		f.userRepository = pgrepo.NewUserRepository(f.postgresClient)
	}
	return f.userRepository
}

func (f *Factory) OTPStore() *redisrepo.OTPStore {
	if f.otpStore == nil {
		f.otpStore = redisrepo.NewOTPStore(f.redisClient, f.config.OTP.Retention)
	}
	return f.otpStore
}

func (f *Factory) SessionStore() *redisrepo.SessionStore {
	if f.sessionStore == nil {
		f.sessionStore = redisrepo.NewSessionStore(f.redisClient, f.config.Session.TTL)
	}
	return f.sessionStore
}

func (f *Factory) RateLimitStore() *redisrepo.RateLimitStore {
	if f.rateLimitStore == nil {
		f.rateLimitStore = redisrepo.NewRateLimitStore(f.redisClient, f.config.OTP.IssueWindow)
	}
	return f.rateLimitStore
}

func (f *Factory) UserIndex() service.UserIndexer {
	if f.userIndex == nil {
		if f.esClient != nil {
			f.userIndex = search.NewUserIndex(f.esClient, f.config.Elasticsearch.UserIndex)
		} else {
			f.userIndex = search.DisabledIndex{}
		}
	}
	return f.userIndex
}

func (f *Factory) AuthService() *service.AuthService {
	if f.authService == nil {
		f.authService = service.NewAuthService(
			f.UserRepository(),
			f.OTPStore(),
			f.SessionStore(),
			f.RateLimitStore(),
			f.dispatcher,
			f.recorder,
			f.UserIndex(),
			f.hasher,
			f.config,
		)
	}
	return f.authService
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	} else {
		healthErrors["redis"] = fmt.Errorf("redis client not initialized")
	}

	if f.postgresClient != nil {
		if err := f.postgresClient.HealthCheck(ctx); err != nil {
			healthErrors["postgres"] = err
		}
	} else {
		healthErrors["postgres"] = fmt.Errorf("postgres client not initialized")
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.recorder != nil {
			f.recorder.Close()
			util.Info("Event recorder drained")
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.postgresClient != nil {
			f.postgresClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}
