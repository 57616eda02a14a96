package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"messagely/config"
	"messagely/internal/auth"
	"messagely/internal/cache"
	"messagely/internal/database"
	"messagely/internal/httpapi"
	"messagely/internal/logutil"
	"messagely/internal/memstore"
	"messagely/internal/protocol"
	"messagely/internal/service"
)

// stores bundles the persistence backend selected by STORE_DRIVER.
type stores struct {
	users    service.UserStore
	messages service.MessageStore
	reset    func(context.Context) error
	close    func() error
}

// app is the wired application shared by every command.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	stores   *stores
	users    *service.UserService
	messages *service.MessageService
}

func loadConfig(c *cli.Context) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(c.StringSlice("env-file")...)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := logutil.New(cfg.LogLevel, cfg.Environment)
	log.Logger = logger
	return cfg, logger, nil
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		s := memstore.New()
		return &stores{users: s, messages: s, reset: s.Reset, close: func() error { return nil }}, nil
	}
	db, err := database.NewDatabase(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	return &stores{
		users:    database.NewUserRepository(db),
		messages: database.NewMessageRepository(db),
		reset:    db.Reset,
		close:    db.Close,
	}, nil
}

func newApp(c *cli.Context) (*app, error) {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	st, err := openStores(c.Context, cfg, logger)
	if err != nil {
		return nil, err
	}
	hasher, err := auth.NewPasswordHasher(cfg.BcryptWorkFactor)
	if err != nil {
		st.close()
		return nil, err
	}
	return &app{
		cfg:      cfg,
		logger:   logger,
		stores:   st,
		users:    service.NewUserService(st.users, st.messages, hasher, logger),
		messages: service.NewMessageService(st.messages, logger),
	}, nil
}

func (a *app) Close() error {
	return a.stores.close()
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API and the TCP protocol server",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "seed",
				Usage: "Create the demo users before serving (always on in development)",
			},
		},
		Action: func(c *cli.Context) error {
			a, err := newApp(c)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.serve(c.Context, c.Bool("seed") || a.cfg.IsDevelopment())
		},
	}
}

func (a *app) serve(ctx context.Context, seed bool) error {
	if seed {
		if err := service.Seed(ctx, a.users, a.messages); err != nil {
			a.logger.Error().Err(err).Msg("Failed to seed demo data")
		}
	}

	tokens, err := auth.NewTokenService([]byte(a.cfg.SecretKey), a.cfg.TokenIssuer, a.cfg.TokenTTL)
	if err != nil {
		return err
	}
	participants, err := cache.NewParticipantCache(a.messages, a.cfg.ParticipantCacheTTL)
	if err != nil {
		return err
	}
	defer participants.Close()

	gate := auth.NewGate(tokens)
	authz := auth.NewAuthorizer(participants)

	group, ctx := errgroup.WithContext(ctx)
	httpServer := httpapi.NewServer(httpapi.Options{
		Users:          a.users,
		Messages:       a.messages,
		Tokens:         tokens,
		Gate:           gate,
		Authorizer:     authz,
		AllowedOrigins: a.cfg.AllowedOrigins,
		Logger:         a.logger,
	})
	group.Go(func() error {
		return httpServer.Start(ctx, a.cfg.HTTPAddr())
	})
	if a.cfg.TCPEnabled {
		tcpServer := protocol.NewServer(protocol.Options{
			Users:      a.users,
			Messages:   a.messages,
			Tokens:     tokens,
			Gate:       gate,
			Authorizer: authz,
			Logger:     a.logger,
		})
		group.Go(func() error {
			return tcpServer.Start(ctx, a.cfg.TCPAddr())
		})
	}

	a.logger.Info().
		Str("version", version).
		Str("environment", a.cfg.Environment).
		Str("store", a.cfg.StoreDriver).
		Str("http", a.cfg.HTTPAddr()).
		Bool("tcp_enabled", a.cfg.TCPEnabled).
		Msg("Messagely is running")

	err = group.Wait()
	a.logger.Info().Msg("Shutting down messagely")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func seedCmd() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Create the demo users a, b and c and their conversation",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "reset",
				Usage: "Delete all users and messages first",
			},
		},
		Action: func(c *cli.Context) error {
			a, err := newApp(c)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.cfg.StoreDriver == config.DriverMemory {
				return errors.New("seed needs a persistent store; the memory driver is seeded by serve")
			}
			if c.Bool("reset") {
				if err := a.stores.reset(c.Context); err != nil {
					return fmt.Errorf("reset store: %w", err)
				}
				a.logger.Info().Msg("Store reset")
			}
			return service.Seed(c.Context, a.users, a.messages)
		},
	}
}

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.DriverSQLite {
				return fmt.Errorf("migrate needs the %s driver, got %s", config.DriverSQLite, cfg.StoreDriver)
			}
			// NewDatabase applies migrations on open.
			db, err := database.NewDatabase(c.Context, cfg.DatabasePath, logger)
			if err != nil {
				return err
			}
			logger.Info().Str("path", cfg.DatabasePath).Msg("Migrations applied")
			return db.Close()
		},
	}
}
