package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	appControllers "github.com/yigit/coursereg/internal/app/controllers"
	appMigrations "github.com/yigit/coursereg/internal/app/migrations"
	appRepos "github.com/yigit/coursereg/internal/app/repositories"
	appRoutes "github.com/yigit/coursereg/internal/app/routes"
	appServices "github.com/yigit/coursereg/internal/app/services"
	"github.com/yigit/coursereg/internal/config"
	"github.com/yigit/coursereg/internal/db"
	appMiddleware "github.com/yigit/coursereg/internal/middleware"
	pkgAuth "github.com/yigit/coursereg/internal/pkg/auth"
	"github.com/yigit/coursereg/internal/pkg/logger"
	"github.com/yigit/coursereg/internal/pkg/metrics"
	"github.com/yigit/coursereg/internal/pkg/websocket"
	"github.com/yigit/coursereg/internal/seed"
)

// DefaultConfigPath is used when no config path is given.
const DefaultConfigPath = "configs/config.yaml"

// Dependencies holds all the application dependencies
type Dependencies struct {
	Backend                *Backend
	RegistrationService    appServices.RegistrationService // Interface type
	JWTService             *pkgAuth.JWTService
	AuthMiddleware         *appMiddleware.AuthMiddleware
	AuthController         *appControllers.AuthController // nil unless dev tokens are allowed
	RegistrationController *appControllers.RegistrationController
	HealthController       *appControllers.HealthController
	Hub                    *websocket.Hub
	WebSocketHandler       *websocket.Handler
	Logger                 zerolog.Logger
}

// Backend is the configured registration store and what must be closed with it.
type Backend struct {
	Mode    string
	Store   appServices.RegistrationStore
	Pinger  appControllers.Pinger
	DB      *db.PostgresDB
	closers []func()
}

// Close releases the store and its connections, newest first.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// LoadConfigAndSetupLogger loads configuration and initializes the logger.
func LoadConfigAndSetupLogger(configPath string, output io.Writer) (*config.Config, zerolog.Logger, error) {
	if configPath == "" {
		configPath = config.GetEnv("CONFIG_PATH", DefaultConfigPath)
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return nil, zerolog.Logger{}, err
	}

	logLevel := logger.ParseLevel(cfg.Logging.Level)
	logger.Configure(logger.Config{
		Level:  logLevel,
		Pretty: strings.ToLower(cfg.Logging.Format) == "text",
		Output: output,
	})

	lgr := logger.Default()
	lgr.Debug().Str("logLevel", string(logLevel)).Str("logFormat", cfg.Logging.Format).Msg("Logger configured")
	return cfg, lgr, nil
}

// SetupDatabase establishes the database connection and optionally runs
// migrations and seeds the catalog.
func SetupDatabase(cfg *config.Config, lgr zerolog.Logger, migrate bool) (*db.PostgresDB, error) {
	lgr.Info().Str("host", cfg.Database.Host).Msg("Establishing database connection...")
	database, err := db.NewPostgresDB(cfg)
	if err != nil {
		lgr.Error().Err(err).Msg("Failed to connect to database")
		return nil, err
	}
	lgr.Info().Msg("Database connection successfully established.")

	if !migrate {
		return database, nil
	}
	if err := MigrateAndSeed(context.Background(), database, lgr); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// MigrateAndSeed applies the bundled migrations and inserts missing catalog courses.
func MigrateAndSeed(ctx context.Context, database *db.PostgresDB, lgr zerolog.Logger) error {
	lgr.Info().Msg("Running database migrations...")
	migrator := appMigrations.NewMigrator(database.Pool, lgr)
	if err := migrator.Migrate(ctx, appMigrations.Files()); err != nil {
		lgr.Error().Err(err).Msg("Database migration error")
		return fmt.Errorf("database migrations failed: %w", err)
	}
	lgr.Info().Msg("Database migrations successfully applied.")

	if err := seed.CreateDefaultData(ctx, database.Pool, lgr); err != nil {
		// Log the error but don't necessarily fail the startup
		lgr.Error().Err(err).Msg("Failed to create default data, proceeding anyway...")
	}
	return nil
}

// SetupBackend builds the registration store selected by backend.mode.
func SetupBackend(cfg *config.Config, lgr zerolog.Logger, migrate bool) (*Backend, error) {
	b := &Backend{Mode: cfg.Backend.Mode}

	switch cfg.Backend.Mode {
	case config.BackendPostgres:
		database, err := SetupDatabase(cfg, lgr, migrate)
		if err != nil {
			return nil, fmt.Errorf("failed to setup database: %w", err)
		}
		store := appRepos.NewPostgresStore(database, lgr)
		b.DB = database
		b.Store = store
		b.Pinger = store
		b.closers = append(b.closers, database.Close, store.Close)

	case config.BackendSupabase:
		store, err := appRepos.NewSupabaseStore(cfg.Backend.URL, cfg.Backend.Key, lgr)
		if err != nil {
			return nil, fmt.Errorf("failed to setup supabase backend: %w", err)
		}
		b.Store = store
		b.closers = append(b.closers, store.Close)

	case config.BackendMemory:
		b.Store = appRepos.NewCatalogMemoryStore()

	default:
		return nil, fmt.Errorf("unknown backend mode %q", cfg.Backend.Mode)
	}

	lgr.Info().Str("backend", b.Mode).Msg("Registration backend ready")
	return b, nil
}

// NewJWTService builds the token service from config.
func NewJWTService(cfg *config.Config) *pkgAuth.JWTService {
	return pkgAuth.NewJWTService(pkgAuth.JWTConfig{
		SecretKey:      cfg.JWT.Secret,
		AccessTokenExp: cfg.AccessTokenTTL(),
		TokenIssuer:    cfg.JWT.Issuer,
	})
}

// BuildDependencies initializes services, controllers and the websocket hub.
func BuildDependencies(cfg *config.Config, backend *Backend, lgr zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Logger: lgr, Backend: backend}

	deps.RegistrationService = appServices.NewRegistrationService(backend.Store, appServices.RegistrationServiceConfig{
		MaxCourses:    cfg.Registration.MaxCourses,
		IdleTimeout:   cfg.SessionIdleTimeout(),
		SweepInterval: time.Minute,
	}, lgr)

	deps.JWTService = NewJWTService(cfg)
	deps.AuthMiddleware = appMiddleware.NewAuthMiddleware(deps.JWTService)

	if cfg.Auth.AllowDevTokens {
		if cfg.IsProduction() {
			lgr.Warn().Msg("Development tokens are enabled in production mode")
		}
		deps.AuthController = appControllers.NewAuthController(deps.JWTService, lgr)
	}

	deps.RegistrationController = appControllers.NewRegistrationController(deps.RegistrationService, lgr)
	deps.HealthController = appControllers.NewHealthController(backend.Mode, backend.Pinger, deps.RegistrationService.ActiveSessions)

	deps.Hub = websocket.NewHub(lgr)
	deps.WebSocketHandler = websocket.NewHandler(deps.Hub, deps.RegistrationService, cfg.Server.CORSOrigins, lgr)

	return deps, nil
}

// SetupRouter configures the Gin engine with middleware and routes.
func SetupRouter(cfg *config.Config, deps *Dependencies, lgr zerolog.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
		lgr.Info().Msg("Setting Gin mode to release")
	} else {
		gin.SetMode(gin.DebugMode)
		lgr.Info().Msg("Setting Gin mode to debug")
	}

	metrics.Register()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(appMiddleware.RequestLogger(lgr))
	router.Use(appMiddleware.RequestMetrics())
	router.Use(cors.New(corsConfig(cfg.Server.CORSOrigins)))
	_ = router.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	appRoutes.SetupRouter(router, appRoutes.Handlers{
		Health:         deps.HealthController,
		Auth:           deps.AuthController,
		Registration:   deps.RegistrationController,
		WebSocket:      deps.WebSocketHandler,
		AuthMiddleware: deps.AuthMiddleware,
	})

	return router
}

// corsConfig allows the configured browser origins; none or "*" allows all.
func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	return c
}
