package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quorum/internal/api"
	"quorum/internal/api/handlers"
	ws "quorum/internal/api/websocket"
	"quorum/internal/broker"
	"quorum/internal/config"
	"quorum/internal/jobs"
	"quorum/internal/logging"
	mcpbridge "quorum/internal/mcp"
	"quorum/internal/service"
	"quorum/internal/storage"
	"quorum/internal/storage/repos"
)

// localRuntime is the locally opened database plus the service built on it.
type localRuntime struct {
	cfg    config.Config
	db     *sql.DB
	app    *service.App
	log    *slog.Logger
	redis  *redis.Client
	closer io.Closer
}

func openRuntime(ctx context.Context, cfgPath string, logger *slog.Logger) (*localRuntime, error) {
	cfg, err := loadConfigMaybe(cfgPath)
	if err != nil {
		return nil, err
	}
	rt := &localRuntime{cfg: cfg, closer: io.NopCloser(nil)}
	if logger == nil {
		logger, rt.closer, err = logging.New(cfg)
		if err != nil {
			return nil, err
		}
	}
	rt.log = logger

	rt.db, err = storage.Open(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}
	applied, err := storage.Migrate(ctx, rt.db)
	if err != nil {
		rt.Close()
		return nil, err
	}
	for _, v := range applied {
		logger.Info("migration applied", "version", v)
	}

	var locker jobs.Locker
	if url := strings.TrimSpace(cfg.Locks.RedisURL); url != "" {
		rt.redis, err = jobs.NewRedisClient(ctx, url)
		if err != nil {
			rt.Close()
			return nil, err
		}
		locker = jobs.NewRedisLocker(rt.redis, config.LockTTL(cfg))
	}

	rt.app = service.New(cfg, repos.New(rt.db), broker.NewMemory(cfg.Broker.ChannelBufferSize), locker, logger)
	return rt, nil
}

func (rt *localRuntime) Close() {
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
	if rt.db != nil {
		_ = rt.db.Close()
	}
	_ = rt.closer.Close()
}

func newInitCommand(cfgPath *string) *cobra.Command {
	var adminName string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the database, the system user and the first admin key",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), *cfgPath, logging.Discard())
			if err != nil {
				return err
			}
			defer rt.Close()
			admin, key, err := rt.app.BootstrapInit(cmd.Context(), adminName)
			if err != nil {
				return err
			}
			fmt.Printf("Initialized at %s\n", filepath.Clean(rt.cfg.Database.Path))
			fmt.Printf("Admin User ID: %s\n", admin.ID)
			fmt.Printf("Admin API Key (shown once): %s\n", key)
			return nil
		},
	}
	cmd.Flags().StringVar(&adminName, "admin-name", "admin", "Username for the bootstrap admin")
	return cmd
}

func newMigrateCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfigMaybe(*cfgPath)
			if err != nil {
				return err
			}
			db, err := storage.Open(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			applied, err := storage.Migrate(cmd.Context(), db)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Println("Database is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Printf("Applied %s\n", v)
			}
			return nil
		},
	}
}

func newNotifyCommand(cfgPath *string) *cobra.Command {
	var userRef string
	var all bool
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Run the saved search notifier once against the local database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (userRef == "") == !all {
				return errors.New("exactly one of --user or --all is required")
			}
			ctx := cmd.Context()
			rt, err := openRuntime(ctx, *cfgPath, nil)
			if err != nil {
				return err
			}
			defer rt.Close()
			if _, err := rt.app.EnsureSystemUser(ctx); err != nil {
				return err
			}
			if all {
				summary, err := rt.app.RunAllSavedSearchNotifications(ctx)
				if perr := printJSON(summary); perr != nil {
					return perr
				}
				return err
			}
			user, err := rt.app.ResolveUser(ctx, userRef)
			if err != nil {
				return err
			}
			res, err := rt.app.RunSavedSearchNotification(ctx, user.ID)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().StringVar(&userRef, "user", "", "User ID or username")
	cmd.Flags().BoolVar(&all, "all", false, "Run for every user with saved searches")
	return cmd
}

func newMCPCommand(cfgPath, apiKey *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the protocol.
			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			rt, err := openRuntime(cmd.Context(), *cfgPath, logger)
			if err != nil {
				return err
			}
			defer rt.Close()
			key := *apiKey
			if key == "" {
				key = os.Getenv("QUORUM_API_KEY")
			}
			router := api.NewRouter(handlers.New(rt.app, rt.db, rt.cfg), rt.app, ws.NewHub(rt.app, logger), logger)
			bridge := mcpbridge.New(mcpbridge.Options{
				App:           rt.app,
				Config:        rt.cfg,
				Router:        router,
				DefaultAPIKey: key,
			})
			return bridge.ServeStdio()
		},
	}
}

func newServerCommand(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Run the quorum HTTP server and saved search scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(ctx, *cfgPath, nil)
			if err != nil {
				return err
			}
			defer rt.Close()
			cfg, app, logger := rt.cfg, rt.app, rt.log
			slog.SetDefault(logger)

			if _, err := app.EnsureSystemUser(ctx); err != nil {
				return err
			}

			if cfg.SavedSearches.Enabled {
				scheduler := jobs.NewScheduler(app.Runner, logger)
				if err := scheduler.Register(cfg.SavedSearches.Schedule); err != nil {
					return err
				}
				scheduler.Start(cfg.SavedSearches.RunOnStart)
				defer func() { <-scheduler.Stop().Done() }()
			}

			hub := ws.NewHub(app, logger)
			apiRouter := api.NewRouter(handlers.New(app, rt.db, cfg), app, hub, logger)
			var mcpHandler http.Handler
			if cfg.MCP.Enabled && cfg.MCP.HTTP.Enabled {
				mcpHandler = mcpbridge.New(mcpbridge.Options{App: app, Config: cfg, Router: apiRouter}).HTTPHandler()
			}
			serverMux := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if mcpHandler != nil && strings.HasPrefix(r.URL.Path, cfg.MCP.HTTP.Path) {
					mcpHandler.ServeHTTP(w, r)
					return
				}
				apiRouter.ServeHTTP(w, r)
			})

			httpServer := &http.Server{
				Addr:         config.Addr(cfg),
				Handler:      serverMux,
				ReadTimeout:  config.ReadTimeout(cfg),
				WriteTimeout: config.WriteTimeout(cfg),
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Info("quorum server listening", "addr", config.Addr(cfg))
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}
}
