package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/impilo-health/impilo/internal/config"
	"github.com/impilo-health/impilo/internal/domain/audit"
	"github.com/impilo-health/impilo/internal/domain/authorization"
	"github.com/impilo-health/impilo/internal/domain/discovery"
	"github.com/impilo-health/impilo/internal/domain/facegate"
	"github.com/impilo-health/impilo/internal/domain/fhirmap"
	"github.com/impilo-health/impilo/internal/domain/imaging"
	"github.com/impilo-health/impilo/internal/domain/nasfolders"
	"github.com/impilo-health/impilo/internal/domain/reporting"
	"github.com/impilo-health/impilo/internal/domain/sharelink"
	"github.com/impilo-health/impilo/internal/domain/telemed"
	"github.com/impilo-health/impilo/internal/domain/user"
	"github.com/impilo-health/impilo/internal/platform/auth"
	"github.com/impilo-health/impilo/internal/platform/db"
	"github.com/impilo-health/impilo/internal/platform/middleware"
	"github.com/impilo-health/impilo/internal/platform/schemagen"
	"github.com/impilo-health/impilo/internal/platform/securestore"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "impilo-server",
		Short: "Impilo hospital operations API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(schemaCmd())
	rootCmd.AddCommand(keyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			sqlDB, err := db.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			count, err := db.Migrate(context.Background(), sqlDB)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			sqlDB, err := db.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			statuses, err := db.Status(context.Background(), sqlDB)
			if err != nil {
				return fmt.Errorf("failed to read migration status: %w", err)
			}

			fmt.Printf("%-40s %-10s %s\n", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-40s %-10s %s\n", s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}

func schemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Generate DDL for the management tables",
	}

	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the management schema for a target database dialect",
		RunE: func(cmd *cobra.Command, args []string) error {
			dialectFlag, _ := cmd.Flags().GetString("dialect")
			dialect, err := schemagen.ParseDialect(dialectFlag)
			if err != nil {
				return err
			}
			gen, err := schemagen.NewGenerator(dialect)
			if err != nil {
				return err
			}
			script, err := gen.SchemaSQL(schemagen.ManagementTables())
			if err != nil {
				return err
			}
			fmt.Println(script)
			return nil
		},
	}
	dumpCmd.Flags().String("dialect", "sqlite", "Target dialect: mysql, postgresql, sqlite, firebird, sqlserver, oracle")
	cmd.AddCommand(dumpCmd)

	return cmd
}

func keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage encryption keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Generate a new master key for credential encryption",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := securestore.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(key))
			return nil
		},
	})

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Master key for credential encryption. Development falls back to an
	// ephemeral key so encrypted credentials do not survive a restart.
	masterKey, err := cfg.MasterKeyBytes()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid master key")
	}
	if masterKey == nil {
		masterKey, err = securestore.GenerateKey()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to generate ephemeral master key")
		}
		logger.Warn().Msg("MASTER_KEY not set; using an ephemeral key, stored credentials will not survive restart")
	}
	store, err := securestore.New(masterKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise secure store")
	}

	// Session secret for JWT signing.
	sessionSecret := []byte(cfg.SessionSecret)
	if len(sessionSecret) == 0 {
		random, err := securestore.GenerateKey()
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to generate session secret")
		}
		sessionSecret = random
		logger.Warn().Msg("SESSION_SECRET not set; sessions will not survive restart")
	}
	sessionTTL := time.Duration(cfg.SessionTTLMinutes) * time.Minute

	// Database
	ctx := context.Background()
	sqlDB, err := db.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open database")
	}
	defer sqlDB.Close()

	applied, err := db.Migrate(ctx, sqlDB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	if applied > 0 {
		logger.Info().Int("applied", applied).Msg("database migrations applied")
	}
	logger.Info().Str("path", cfg.DatabasePath).Msg("database ready")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// -- Services --

	auditSvc := audit.NewService(audit.NewRepoSQLite(sqlDB), logger)

	userSvc := user.NewService(user.NewRepoSQLite(sqlDB), auditSvc, sessionSecret, sessionTTL)

	var notifier sharelink.Notifier
	if cfg.SMTPHost != "" {
		notifier = sharelink.NewSMTPNotifier(sharelink.SMTPConfig{
			Host:      cfg.SMTPHost,
			Port:      cfg.SMTPPort,
			Username:  cfg.SMTPUsername,
			Password:  cfg.SMTPPassword,
			FromEmail: cfg.FromEmail,
		})
		logger.Info().Str("host", cfg.SMTPHost).Msg("share link email notifications enabled")
	}
	linkSvc := sharelink.NewService(sharelink.NewRepoSQLite(sqlDB), store, auditSvc, notifier, sharelink.Options{
		BaseURL:      cfg.BaseURL,
		MaxHours:     cfg.LinkMaxHours,
		DefaultViews: cfg.LinkDefaultViews,
	}, logger)

	authzSvc := authorization.NewService(
		authorization.NewDoctorRepoSQLite(sqlDB),
		authorization.NewAuthRepoSQLite(sqlDB),
		auditSvc, logger)

	imagingSvc := imaging.NewService(imaging.NewRepoSQLite(sqlDB), auditSvc, logger)
	reportSvc := reporting.NewService(reporting.NewRepoSQLite(sqlDB), auditSvc, logger)
	telemedSvc := telemed.NewService(telemed.NewRepoSQLite(sqlDB), auditSvc, logger)
	fhirmapSvc := fhirmap.NewService(fhirmap.NewRepoSQLite(sqlDB), logger)
	facegateSvc := facegate.NewService(facegate.NewRepoSQLite(sqlDB), auditSvc, logger)

	nasSvc := nasfolders.NewService(
		nasfolders.NewDeviceRepoSQLite(sqlDB),
		nasfolders.NewFolderRepoSQLite(sqlDB),
		store, auditSvc, logger)

	discoverySvc := discovery.NewService(
		discovery.NewRepoSQLite(sqlDB),
		&nasRegistrar{svc: nasSvc},
		auditSvc, logger)
	discoverySvc.SetProbeOptions(cfg.ScanConcurrency, time.Duration(cfg.ScanTimeoutMS)*time.Millisecond)

	// Audit middleware writes API access trails through the audit service.
	e.Use(middleware.Audit(logger, &accessRecorder{svc: auditSvc}))

	// Auth middleware
	publicAPI := e.Group("/api/v1")
	apiV1 := e.Group("/api/v1")
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
		logger.Warn().Msg("development auth enabled; all requests run as the dev admin")
	} else {
		apiV1.Use(auth.Middleware(sessionSecret))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	publicAPI.Use(middleware.RateLimit(rateLimitCfg))
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// -- Routes --

	userHandler := user.NewHandler(userSvc)
	userHandler.RegisterPublicRoutes(publicAPI)
	userHandler.RegisterRoutes(apiV1)

	linkHandler := sharelink.NewHandler(linkSvc)
	linkHandler.RegisterPublicRoutes(publicAPI)
	linkHandler.RegisterRoutes(apiV1)

	authorization.NewHandler(authzSvc).RegisterRoutes(apiV1)
	audit.NewHandler(auditSvc).RegisterRoutes(apiV1)
	imaging.NewHandler(imagingSvc).RegisterRoutes(apiV1)
	reporting.NewHandler(reportSvc).RegisterRoutes(apiV1)
	telemed.NewHandler(telemedSvc).RegisterRoutes(apiV1)
	fhirmap.NewHandler(fhirmapSvc).RegisterRoutes(apiV1)
	nasfolders.NewHandler(nasSvc).RegisterRoutes(apiV1)
	discovery.NewHandler(discoverySvc).RegisterRoutes(apiV1)

	// Face verification mints a session token on success so clients can log
	// in without a password once enrolled.
	issuer := func(c echo.Context, userID string) (string, error) {
		u, err := userSvc.Get(c.Request().Context(), userID)
		if err != nil {
			return "", err
		}
		if !u.IsActive {
			return "", fmt.Errorf("account %s is disabled", userID)
		}
		return auth.IssueToken(sessionSecret, u.ID, u.Role, u.FullName, sessionTTL)
	}
	facegate.NewHandler(facegateSvc, issuer).RegisterRoutes(apiV1)

	// Health check
	e.GET("/health", func(c echo.Context) error {
		if err := db.Health(c.Request().Context(), sqlDB); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		if cfg.TLSEnabled {
			logger.Info().Str("addr", addr).Msg("starting server with TLS")
			if err := e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile); err != nil && err != http.ErrServerClosed {
				logger.Fatal().Err(err).Msg("server error")
			}
			return
		}
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// nasRegistrar adapts the NAS folder service to the discovery.Registrar
// interface so promoted scan results become registered storage devices,
// avoiding a direct import between the two domains.
type nasRegistrar struct {
	svc *nasfolders.Service
}

func (r *nasRegistrar) RegisterDevice(ctx context.Context, actorID, name, ip, manufacturer, adminUser, adminPassword string) (string, error) {
	device, err := r.svc.CreateDevice(ctx, actorID, nasfolders.CreateDeviceRequest{
		DeviceName:    name,
		IPAddress:     ip,
		Manufacturer:  manufacturer,
		AdminUsername: adminUser,
		AdminPassword: adminPassword,
	})
	if err != nil {
		return "", err
	}
	return device.DeviceID, nil
}

// accessRecorder adapts the audit service to the middleware.AccessRecorder
// interface, turning per-request access entries into compliance records.
type accessRecorder struct {
	svc *audit.Service
}

func (r *accessRecorder) RecordAccess(entry middleware.AccessEntry) error {
	details := map[string]any{
		"method": entry.Method,
		"path":   entry.Path,
		"status": entry.StatusCode,
	}
	if entry.RequestID != "" {
		details["request_id"] = entry.RequestID
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}

	actorType := "user"
	if entry.UserID == "" {
		actorType = "anonymous"
	}
	return r.svc.Record(context.Background(), audit.Entry{
		ActorID:            entry.UserID,
		ActorType:          actorType,
		Action:             entry.Action,
		ResourceType:       entry.Resource,
		Details:            string(raw),
		ComplianceCategory: accessCategory(entry.Resource),
		SourceIP:           entry.IPAddress,
		UserAgent:          entry.UserAgent,
	})
}

// accessCategory maps an API resource to its compliance category.
func accessCategory(resource string) string {
	switch {
	case resource == "auth" || strings.HasPrefix(resource, "face-auth"):
		return audit.CategoryAuth
	case resource == "secure-links" || resource == "shared":
		return audit.CategoryDataSharing
	case resource == "users" || resource == "nas-devices" ||
		resource == "shared-folders" || resource == "discovery" ||
		resource == "audit":
		return audit.CategoryAdmin
	default:
		return audit.CategoryPHIAccess
	}
}
