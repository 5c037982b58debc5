// Package app provides dependency injection container for assembling application components.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/allisson/apikeys/internal/config"
	"github.com/allisson/apikeys/internal/database"
	"github.com/allisson/apikeys/internal/metrics"
	"github.com/allisson/apikeys/internal/token/audit"
	"github.com/allisson/apikeys/internal/token/domain"
	tokenHTTP "github.com/allisson/apikeys/internal/token/http"
	tokenRepository "github.com/allisson/apikeys/internal/token/repository"
	tokenMemory "github.com/allisson/apikeys/internal/token/repository/memory"
	tokenMySQL "github.com/allisson/apikeys/internal/token/repository/mysql"
	"github.com/allisson/apikeys/internal/token/service"
	tokenUseCase "github.com/allisson/apikeys/internal/token/usecase"
)

// Storage driver names.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

// Container holds all application dependencies and provides methods to access them.
// It follows the lazy initialization pattern - components are created on first access.
type Container struct {
	// Configuration
	config *config.Config

	// Infrastructure
	logger          *slog.Logger
	db              *sql.DB
	metricsProvider *metrics.Provider
	businessMetrics metrics.BusinessMetrics

	// Managers
	txManager database.TxManager

	// Repositories
	tokenRepo    tokenUseCase.TokenRepository
	groupRepo    tokenUseCase.GroupRepository
	auditLogRepo tokenUseCase.AuditLogRepository

	// Services
	registries  *Registries
	codec       *service.Codec
	idGenerator service.IDGenerator
	auditSink   audit.Sink

	// Use Cases
	tokenUseCase  tokenUseCase.TokenUseCase
	authenticator tokenUseCase.Authenticator

	// Initialization flags and mutex for thread-safety
	mu                  sync.Mutex
	loggerInit          sync.Once
	dbInit              sync.Once
	metricsProviderInit sync.Once
	businessMetricsInit sync.Once
	txManagerInit       sync.Once
	repositoriesInit    sync.Once
	registriesInit      sync.Once
	codecInit           sync.Once
	idGeneratorInit     sync.Once
	auditSinkInit       sync.Once
	tokenUseCaseInit    sync.Once
	authenticatorInit   sync.Once
	initErrors          map[string]error
}

// NewContainer creates a new dependency injection container with the provided configuration.
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config:     cfg,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
// It creates a new logger on first access based on the log level in configuration.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		c.logger = c.initLogger()
	})
	return c.logger
}

// DB returns the database connection. The memory driver has none.
func (c *Container) DB() (*sql.DB, error) {
	c.dbInit.Do(func() {
		c.db, c.initErrors["db"] = c.initDB()
	})
	return c.db, c.initErrors["db"]
}

// TxManager returns the transaction manager. The memory driver gets a no-op manager.
func (c *Container) TxManager() (database.TxManager, error) {
	c.txManagerInit.Do(func() {
		c.txManager, c.initErrors["txManager"] = c.initTxManager()
	})
	return c.txManager, c.initErrors["txManager"]
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		c.metricsProvider, c.initErrors["metricsProvider"] = metrics.NewProvider(c.config.MetricsNamespace)
	})
	return c.metricsProvider, c.initErrors["metricsProvider"]
}

// BusinessMetrics returns the business metrics recorder, a no-op when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	c.businessMetricsInit.Do(func() {
		c.businessMetrics, c.initErrors["businessMetrics"] = c.initBusinessMetrics()
	})
	return c.businessMetrics, c.initErrors["businessMetrics"]
}

// TokenRepository returns the token repository for the configured driver.
func (c *Container) TokenRepository() (tokenUseCase.TokenRepository, error) {
	if err := c.initRepositoriesOnce(); err != nil {
		return nil, err
	}
	return c.tokenRepo, nil
}

// GroupRepository returns the token group repository for the configured driver.
func (c *Container) GroupRepository() (tokenUseCase.GroupRepository, error) {
	if err := c.initRepositoriesOnce(); err != nil {
		return nil, err
	}
	return c.groupRepo, nil
}

// AuditLogRepository returns the audit log repository for the configured driver.
func (c *Container) AuditLogRepository() (tokenUseCase.AuditLogRepository, error) {
	if err := c.initRepositoriesOnce(); err != nil {
		return nil, err
	}
	return c.auditLogRepo, nil
}

// Registries returns the strategy, codec, audit driver and token type registries.
func (c *Container) Registries() (*Registries, error) {
	c.registriesInit.Do(func() {
		c.registries, c.initErrors["registries"] = c.initRegistries()
	})
	return c.registries, c.initErrors["registries"]
}

// Codec returns the token codec built from the configured generator and hasher.
func (c *Container) Codec() (*service.Codec, error) {
	c.codecInit.Do(func() {
		c.codec, c.initErrors["codec"] = c.initCodec()
	})
	return c.codec, c.initErrors["codec"]
}

// IDGenerator returns the identifier generator for the configured id strategy.
func (c *Container) IDGenerator() (service.IDGenerator, error) {
	c.idGeneratorInit.Do(func() {
		c.idGenerator, c.initErrors["idGenerator"] = c.initIDGenerator()
	})
	return c.idGenerator, c.initErrors["idGenerator"]
}

// AuditSink returns the configured audit sink.
func (c *Container) AuditSink() (audit.Sink, error) {
	c.auditSinkInit.Do(func() {
		c.auditSink, c.initErrors["auditSink"] = c.initAuditSink()
	})
	return c.auditSink, c.initErrors["auditSink"]
}

// TokenUseCase returns the token lifecycle use case.
func (c *Container) TokenUseCase() (tokenUseCase.TokenUseCase, error) {
	c.tokenUseCaseInit.Do(func() {
		c.tokenUseCase, c.initErrors["tokenUseCase"] = c.initTokenUseCase()
	})
	return c.tokenUseCase, c.initErrors["tokenUseCase"]
}

// Authenticator returns the authentication guard.
func (c *Container) Authenticator() (tokenUseCase.Authenticator, error) {
	c.authenticatorInit.Do(func() {
		c.authenticator, c.initErrors["authenticator"] = c.initAuthenticator()
	})
	return c.authenticator, c.initErrors["authenticator"]
}

// AuthenticationMiddleware returns the gin middleware running the guard.
func (c *Container) AuthenticationMiddleware() (gin.HandlerFunc, error) {
	authenticator, err := c.Authenticator()
	if err != nil {
		return nil, fmt.Errorf("failed to get authenticator for authentication middleware: %w", err)
	}
	return tokenHTTP.AuthenticationMiddleware(authenticator, c.config.TokenHeader, c.Logger()), nil
}

// RateLimitMiddleware returns the per-token rate limit middleware. Its stale limiter
// sweep stops when ctx is done. When rate limiting is disabled it only calls the next handler.
func (c *Container) RateLimitMiddleware(ctx context.Context) (gin.HandlerFunc, error) {
	if !c.config.RateLimitEnabled {
		return passThrough, nil
	}
	sink, err := c.AuditSink()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit sink for rate limit middleware: %w", err)
	}
	return tokenHTTP.TokenRateLimitMiddleware(ctx, sink, c.Logger()), nil
}

// HTTPMetricsMiddleware returns the gin request metrics middleware. When metrics are
// disabled it only calls the next handler.
func (c *Container) HTTPMetricsMiddleware() (gin.HandlerFunc, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return passThrough, nil
	}
	return metrics.HTTPMetricsMiddleware(
		provider.MeterProvider(),
		c.config.MetricsNamespace,
		tokenHTTP.EnvironmentLabel,
	), nil
}

// MetricsHandler returns the Prometheus scrape handler, or nil when metrics are disabled.
func (c *Container) MetricsHandler() (http.Handler, error) {
	provider, err := c.MetricsProvider()
	if err != nil || provider == nil {
		return nil, err
	}
	return provider.Handler(), nil
}

// AuditLogHandler returns the audit log list handler.
func (c *Container) AuditLogHandler() (*tokenHTTP.AuditLogHandler, error) {
	repo, err := c.AuditLogRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log repository for audit log handler: %w", err)
	}
	return tokenHTTP.NewAuditLogHandler(repo, c.Logger()), nil
}

func passThrough(c *gin.Context) { c.Next() }

// Migrate applies the embedded schema migrations. It does nothing for the memory driver.
func (c *Container) Migrate() error {
	if c.config.DBDriver == DriverMemory {
		return nil
	}
	db, err := c.DB()
	if err != nil {
		return fmt.Errorf("failed to get database for migrations: %w", err)
	}
	return database.Migrate(db, c.config.DBDriver, c.Logger())
}

// Shutdown performs cleanup of all initialized resources.
// It should be called when the application is shutting down.
func (c *Container) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var shutdownErrors []error

	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("metrics provider shutdown: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			shutdownErrors = append(shutdownErrors, fmt.Errorf("database close: %w", err))
		}
	}

	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown errors: %v", shutdownErrors)
	}

	return nil
}

// initLogger creates and configures a structured logger based on the log level.
func (c *Container) initLogger() *slog.Logger {
	var logLevel slog.Level
	switch c.config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})

	return slog.New(handler)
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	if c.config.DBDriver == DriverMemory {
		return nil, fmt.Errorf("the %s driver does not use a database connection", DriverMemory)
	}

	db, err := database.Connect(database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	if c.config.DBDriver == DriverMemory {
		return database.NewNoOpTxManager(), nil
	}
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for business metrics: %w", err)
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}
	return metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
}

func (c *Container) initRepositoriesOnce() error {
	c.repositoriesInit.Do(func() {
		c.initErrors["repositories"] = c.initRepositories()
	})
	return c.initErrors["repositories"]
}

// initRepositories creates the token, group and audit log repositories together so
// they always share one storage backend.
func (c *Container) initRepositories() error {
	idKind := domain.IDKind(c.config.TokenIDStrategy)

	if c.config.DBDriver == DriverMemory {
		c.tokenRepo = tokenMemory.NewTokenRepository()
		c.groupRepo = tokenMemory.NewGroupRepository()
		c.auditLogRepo = tokenMemory.NewAuditLogRepository()
		return nil
	}

	db, err := c.DB()
	if err != nil {
		return fmt.Errorf("failed to get database for token repositories: %w", err)
	}

	// Select the appropriate repository based on the database driver
	switch c.config.DBDriver {
	case DriverMySQL:
		c.tokenRepo = tokenMySQL.NewMySQLTokenRepository(db, idKind)
		c.groupRepo = tokenMySQL.NewMySQLGroupRepository(db, idKind)
		c.auditLogRepo = tokenMySQL.NewMySQLAuditLogRepository(db, idKind)
	case DriverPostgres:
		c.tokenRepo = tokenRepository.NewPostgreSQLTokenRepository(db, idKind)
		c.groupRepo = tokenRepository.NewPostgreSQLGroupRepository(db, idKind)
		c.auditLogRepo = tokenRepository.NewPostgreSQLAuditLogRepository(db, idKind)
	default:
		return fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
	return nil
}

func (c *Container) initRegistries() (*Registries, error) {
	tokenRepo, err := c.TokenRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get token repository for registries: %w", err)
	}
	auditLogRepo, err := c.AuditLogRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log repository for registries: %w", err)
	}
	return NewRegistries(c.config, tokenRepo, auditLogRepo, c.Logger())
}

func (c *Container) initCodec() (*service.Codec, error) {
	registries, err := c.Registries()
	if err != nil {
		return nil, fmt.Errorf("failed to get registries for codec: %w", err)
	}
	codec, err := registries.Codec()
	if err != nil {
		return nil, err
	}

	c.Logger().Info("token codec configured",
		slog.String("generator", codec.Generator().Name()),
		slog.String("hasher", codec.Hasher().Name()),
	)
	return codec, nil
}

// initIDGenerator backs sequential ids with the token repository's sequence, which the
// token and group tables share. SQL drivers draw it from the database so every worker
// on the same database gets distinct ids.
func (c *Container) initIDGenerator() (service.IDGenerator, error) {
	kind := domain.IDKind(c.config.TokenIDStrategy)
	if kind != domain.IDKindSequential {
		return service.NewIDGenerator(kind, nil)
	}

	tokenRepo, err := c.TokenRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get token repository for id generator: %w", err)
	}
	sequence, ok := tokenRepo.(service.SequenceSource)
	if !ok {
		return nil, fmt.Errorf("token repository for driver %s has no id sequence", c.config.DBDriver)
	}
	return service.NewIDGenerator(kind, sequence)
}

func (c *Container) initAuditSink() (audit.Sink, error) {
	registries, err := c.Registries()
	if err != nil {
		return nil, fmt.Errorf("failed to get registries for audit sink: %w", err)
	}
	return registries.AuditDrivers.Default()
}

// initTokenUseCase creates the token use case with all its dependencies.
func (c *Container) initTokenUseCase() (tokenUseCase.TokenUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for token use case: %w", err)
	}
	tokenRepo, err := c.TokenRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get token repository for token use case: %w", err)
	}
	groupRepo, err := c.GroupRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get group repository for token use case: %w", err)
	}
	codec, err := c.Codec()
	if err != nil {
		return nil, fmt.Errorf("failed to get codec for token use case: %w", err)
	}
	idGenerator, err := c.IDGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to get id generator for token use case: %w", err)
	}
	sink, err := c.AuditSink()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit sink for token use case: %w", err)
	}
	registries, err := c.Registries()
	if err != nil {
		return nil, fmt.Errorf("failed to get registries for token use case: %w", err)
	}

	useCase := tokenUseCase.NewTokenUseCase(
		c.config,
		txManager,
		tokenRepo,
		groupRepo,
		codec,
		idGenerator,
		sink,
		registries.Strategies(),
	)

	if !c.config.MetricsEnabled {
		return useCase, nil
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for token use case: %w", err)
	}
	return tokenUseCase.NewTokenUseCaseWithMetrics(useCase, businessMetrics), nil
}

// initAuthenticator creates the guard with all its dependencies.
func (c *Container) initAuthenticator() (tokenUseCase.Authenticator, error) {
	tokenRepo, err := c.TokenRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get token repository for authenticator: %w", err)
	}
	codec, err := c.Codec()
	if err != nil {
		return nil, fmt.Errorf("failed to get codec for authenticator: %w", err)
	}
	sink, err := c.AuditSink()
	if err != nil {
		return nil, fmt.Errorf("failed to get audit sink for authenticator: %w", err)
	}

	var authenticator tokenUseCase.Authenticator = tokenUseCase.NewGuard(
		domain.IDKind(c.config.TokenIDStrategy),
		tokenRepo,
		codec,
		sink,
		c.Logger(),
		tokenUseCase.WithTokenExpiration(c.config.TokenExpiration),
	)

	if !c.config.MetricsEnabled {
		return authenticator, nil
	}
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for authenticator: %w", err)
	}
	return tokenUseCase.NewAuthenticatorWithMetrics(authenticator, businessMetrics), nil
}
