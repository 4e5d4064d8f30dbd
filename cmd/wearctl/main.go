package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/wearctl/internal/admin"
	"github.com/danmuck/wearctl/internal/config"
	"github.com/danmuck/wearctl/internal/console"
	"github.com/danmuck/wearctl/internal/hub"
	"github.com/danmuck/wearctl/internal/link/bridge"
	"github.com/danmuck/wearctl/internal/logging"
	"github.com/danmuck/wearctl/internal/observability"
	"github.com/danmuck/wearctl/internal/wearable"
)

const shutdownGrace = 3 * time.Second

func main() {
	configPath := flag.String("config", "cmd/wearctl/config.toml", "config path (.toml, .yaml or .yml)")
	interactive := flag.Bool("interactive", false, "run the operator console")
	flag.Parse()

	logging.ConfigureRuntime()
	logger := observability.InitLogger("wearctl")

	if err := run(*configPath, *interactive, logger); err != nil {
		fmt.Fprintf(os.Stderr, "wearctl: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, interactive bool, logger zerolog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Info().Str("path", configPath).Msg("loaded config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessCfg := cfg.Session()
	l, err := bridge.New(cfg.BridgeConfig(), sessCfg.LinkOptions())
	if err != nil {
		return err
	}
	sess, err := wearable.New(l, sessCfg)
	if err != nil {
		return err
	}
	watch(sess, logger)

	if adminCfg := cfg.AdminConfig(); adminCfg.ListenAddr != "" {
		srv := admin.New(adminCfg, sess)
		go func() {
			if err := srv.ListenAndServe(ctx); err != nil {
				logger.Error().Err(err).Msg("admin server stopped")
			}
		}()
	}

	if interactive {
		con, err := console.New(sess)
		if err != nil {
			return err
		}
		log.Logger = log.Logger.Output(zerolog.ConsoleWriter{Out: con.Stdout(), TimeFormat: time.RFC3339})
		go con.Run(ctx, stop)
	}

	// the link lives until Disconnect, not until the signal context ends
	if err := sess.Setup(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	logger.Info().Str("session", sess.ID()).Str("bridge", cfg.Bridge.Address).Msg("session started")

	select {
	case <-sess.Done():
		logger.Info().Msg("session ended")
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	if err := sess.Disconnect(); err != nil {
		logger.Warn().Err(err).Msg("disconnect failed")
	}
	select {
	case <-sess.Done():
	case <-time.After(shutdownGrace):
		logger.Warn().Msg("session did not confirm disconnect")
	}
	return nil
}

// watch logs every notification and echoes signal strength back to the
// device.
func watch(sess *wearable.Session, logger zerolog.Logger) {
	sess.OnReady(func(err error) {
		if err != nil {
			logger.Error().Err(err).Msg("session not ready")
			if !errors.Is(err, wearable.ErrLinkLost) {
				_ = sess.Disconnect()
			}
			return
		}
		logger.Info().Str("identity", sess.Identity()).Msg("session ready")
	})
	sess.OnLike(func() { logger.Info().Msg("like") })
	sess.OnDismiss(func() { logger.Info().Msg("dismiss") })
	sess.OnSignal(func(err error, strength int, ack hub.AckFunc) {
		if err != nil {
			logger.Warn().Err(err).Msg("signal update failed")
			return
		}
		logger.Debug().Int("strength", strength).Msg("signal")
		if ack != nil {
			if err := ack(strength); err != nil {
				logger.Warn().Err(err).Msg("signal ack failed")
			}
		}
	})
	sess.OnDisconnect(func() { logger.Info().Msg("disconnected") })
}
