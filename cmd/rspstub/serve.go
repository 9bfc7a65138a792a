package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/rspstub/internal/config"
	"github.com/danmuck/rspstub/internal/logging"
	"github.com/danmuck/rspstub/internal/server"
	"github.com/danmuck/rspstub/internal/target"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	configPath string
	listen     string
	admin      string
	targetPath string
	stdio      bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve RSP sessions over TCP or stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveServeConfig(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, opts.stdio)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "runtime config file (toml)")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "tcp listen address (overrides config)")
	cmd.Flags().StringVar(&opts.admin, "admin", "", "admin http address (overrides config; empty disables)")
	cmd.Flags().StringVar(&opts.targetPath, "target", "", "target description file (overrides config)")
	cmd.Flags().BoolVar(&opts.stdio, "stdio", false, "serve one session on stdin/stdout instead of tcp")
	return cmd
}

// resolveServeConfig layers flags over the config file over defaults.
func resolveServeConfig(opts serveOptions) (ServiceConfig, error) {
	cfg := DefaultServiceConfig()
	if path := strings.TrimSpace(opts.configPath); path != "" {
		loaded, err := loadServiceConfig(path)
		if err != nil {
			return ServiceConfig{}, err
		}
		cfg = loaded
	}
	if v := strings.TrimSpace(opts.listen); v != "" {
		cfg.Listen = v
	}
	if v := strings.TrimSpace(opts.admin); v != "" {
		cfg.AdminAddr = v
	}
	if v := strings.TrimSpace(opts.targetPath); v != "" {
		cfg.TargetPath = v
	}
	return cfg, nil
}

func runServe(ctx context.Context, cfg ServiceConfig, stdio bool) error {
	logging.ConfigureRuntime("rspstub")
	if err := applyLogLevel(cfg); err != nil {
		return err
	}

	stub, err := loadTarget(cfg.TargetPath)
	if err != nil {
		return err
	}

	srvCfg := server.DefaultConfig()
	srvCfg.ListenAddr = cfg.Listen
	srvCfg.Limits = cfg.Limits
	srv, err := server.New(stub, srvCfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	adminErr := make(chan error, 1)
	if cfg.AdminAddr != "" {
		go func() {
			adminErr <- server.ServeAdmin(ctx, cfg.AdminAddr, server.AdminRouter(srv, server.AdminConfig{CORSOrigins: cfg.CORSOrigins, Token: cfg.AdminToken}))
		}()
	} else {
		adminErr <- nil
	}

	if stdio {
		log.Info().Str("target", stub.Name()).Msg("rspstub serving stdio")
		err = serveStdio(ctx, srv, os.Stdin, os.Stdout)
	} else {
		log.Info().Str("target", stub.Name()).Str("listen", cfg.Listen).Msg("rspstub serving tcp")
		err = srv.ListenAndServe(ctx)
	}
	cancel()
	return errors.Join(err, <-adminErr)
}

// applyLogLevel applies log_level to the runtime logger. RSPSTUB_LOG_LEVEL
// still wins when set.
func applyLogLevel(cfg ServiceConfig) error {
	if err := logging.OverrideLevel(cfg.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// serveStdio runs one session on in/out. in is closed when ctx is done so a
// blocked read returns.
func serveStdio(ctx context.Context, srv *server.Server, in io.ReadCloser, out io.Writer) error {
	stop := context.AfterFunc(ctx, func() {
		_ = in.Close()
	})
	defer stop()
	return srv.ServeStream(ctx, in, out, "stdio")
}

func loadTarget(path string) (*target.Stub, error) {
	if path == "" {
		return target.NewStub(target.DefaultConfig()), nil
	}
	tc, err := config.LoadTargetConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load target %s: %w", path, err)
	}
	return config.NewStub(tc)
}
