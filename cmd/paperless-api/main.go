package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/blobs"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/config"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/database"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/documents"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/editor"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/imaging"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/server"
	"github.com/MarcoPoloResearchLab/paperless/backend/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	shutdownTimeout   = 10 * time.Second
	editorSweepEvery  = time.Minute
	readHeaderTimeout = 10 * time.Second
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "paperless-api",
		Short: "Paperless invitations backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newMintTokenCommand(), newGrantAdminCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, postgres)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("database-dsn", "", "PostgreSQL connection string")
	cmd.PersistentFlags().String("blob-driver", defaults.GetString("blobs.driver"), "Image storage driver (none, local, gcs)")
	cmd.PersistentFlags().String("share-origin", defaults.GetString("share.origin"), "Origin used in share links")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.dsn", "database-dsn")
	bindFlag(cmd, "blobs.driver", "blob-driver")
	bindFlag(cmd, "share.origin", "share-origin")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newMintTokenCommand() *cobra.Command {
	var (
		userID string
		email  string
		admin  bool
	)
	cmd := &cobra.Command{
		Use:   "mint-token",
		Short: "Issue a session token for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.SigningSecret),
				Issuer:        appConfig.Issuer,
				TokenTTL:      appConfig.TokenTTL,
			})
			if err != nil {
				return err
			}
			var roles []string
			if admin {
				roles = append(roles, auth.RoleAdmin)
			}
			token, expiresAt, err := issuer.Issue(auth.TokenRequest{UserID: userID, Email: email, Roles: roles})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id to embed in the token")
	cmd.Flags().StringVar(&email, "email", "", "Email to embed in the token")
	cmd.Flags().BoolVar(&admin, "admin", false, "Include the admin role claim")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newGrantAdminCommand() *cobra.Command {
	var revoke bool
	cmd := &cobra.Command{
		Use:   "grant-admin [user-id]",
		Short: "Grant or revoke the admin role for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			handles, err := openDatabase(cmd.Context(), appConfig, logger)
			if err != nil {
				return err
			}
			defer handles.Close()

			userService, err := users.NewService(users.ServiceConfig{Database: handles.DB, Logger: logger})
			if err != nil {
				return err
			}
			if revoke {
				return userService.RevokeAdmin(cmd.Context(), args[0])
			}
			return userService.GrantAdmin(cmd.Context(), args[0])
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "Remove the admin role instead")
	return cmd
}

func openDatabase(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (*database.Handles, error) {
	return database.Open(ctx, database.Config{
		Driver:   appConfig.DatabaseDriver,
		Path:     appConfig.DatabasePath,
		DSN:      appConfig.DatabaseDSN,
		MaxConns: appConfig.DatabaseMaxConns,
	}, logger)
}

// openBlobStore returns nil for the none driver, which makes uploads fall back to data URLs.
func openBlobStore(ctx context.Context, appConfig config.AppConfig) (imaging.BlobStore, func(), error) {
	switch appConfig.BlobDriver {
	case config.BlobDriverLocal:
		baseURL := appConfig.BlobBaseURL
		if strings.HasPrefix(baseURL, "/") {
			baseURL = appConfig.ShareOrigin + baseURL
		}
		store, err := blobs.NewLocalStore(blobs.LocalStoreConfig{Root: appConfig.BlobRoot, BaseURL: baseURL})
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case config.BlobDriverGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("blobs: gcs client: %w", err)
		}
		baseURL := appConfig.BlobBaseURL
		if strings.HasPrefix(baseURL, "/") {
			baseURL = ""
		}
		store, err := blobs.NewGCSStore(blobs.GCSStoreConfig{Client: client, Bucket: appConfig.BlobBucket, BaseURL: baseURL})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	handles, err := openDatabase(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer handles.Close()

	documentStore, err := handles.DocumentStore()
	if err != nil {
		return err
	}

	blobStore, closeBlobs, err := openBlobStore(ctx, appConfig)
	if err != nil {
		return err
	}
	defer closeBlobs()

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.Issuer,
		CookieName:    appConfig.CookieName,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{Database: handles.DB, Logger: logger})
	if err != nil {
		return err
	}

	realtime := server.NewRealtimeDispatcher()
	documentService, err := documents.NewService(documents.ServiceConfig{
		Store:    documentStore,
		Clock:    time.Now,
		Notifier: realtime,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	registry := editor.NewRegistry(editor.RegistryConfig{
		IdleTimeout: appConfig.EditorIdleTimeout,
		Logger:      logger,
	})
	metrics := server.NewMetrics()
	metrics.RegisterSessionGauge(registry.Len)

	blobRoot := ""
	if appConfig.BlobDriver == config.BlobDriverLocal {
		blobRoot = appConfig.BlobRoot
	}
	handler, err := server.NewHTTPHandler(server.Dependencies{
		Validator:      validator,
		Principals:     userService,
		Documents:      documentService,
		Editor:         registry,
		Blobs:          blobStore,
		BlobRoot:       blobRoot,
		ShareOrigin:    appConfig.ShareOrigin,
		Realtime:       realtime,
		Metrics:        metrics,
		RateLimit:      server.RateLimitConfig{RPS: appConfig.RateLimitRPS, Burst: appConfig.RateLimitBurst},
		AllowedOrigins: appConfig.AllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go registry.Run(signalCtx, editorSweepEvery)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("database_driver", appConfig.DatabaseDriver),
			zap.String("blob_driver", appConfig.BlobDriver))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
