// Package main is the batch entry point that evaluates every enabled
// notification rule and delivers the ones due now.
//
// It is designed to be invoked by an external scheduler (cron or a
// systemd timer, typically every minute) with no arguments. The run acts
// under the system identity, prints one status line per attempted rule and
// a final aggregate count, and always exits 0: per-rule errors are
// operator information, not batch failures. Only a startup failure (bad
// configuration, unreachable database) exits non-zero, since in that case
// nothing was evaluated at all.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"pagenotify/internal/config"
	"pagenotify/internal/db"
	"pagenotify/internal/dispatch"
	"pagenotify/internal/external"
	"pagenotify/internal/mailer"
	"pagenotify/internal/render"
	"pagenotify/internal/scheduler"
	"pagenotify/internal/tracking"
	"pagenotify/internal/types"
)

// slogAdapter wraps *slog.Logger to implement the types.Logger interface.
// slog.Logger satisfies Info, Error, and Warn directly but With returns
// *slog.Logger, not types.Logger, so an adapter is necessary.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

var _ types.Logger = (*slogAdapter)(nil)

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	typedLogger := &slogAdapter{logger: logger}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		logger.Error("database connection failed", "error", err.Error())
		os.Exit(1)
	}
	defer pool.Close()

	registry, err := external.NewRegistry(cfg, typedLogger)
	if err != nil {
		logger.Error("external client initialization failed", "error", err.Error())
		os.Exit(1)
	}

	ruleCache := db.NewRuleCache()
	rules := db.NewRuleRepository(pool, ruleCache)
	sent := db.NewSentRepository(pool)
	unsubscribes := db.NewUnsubscribeRepository(pool)

	codec := tracking.NewCodec(cfg.Mailer.IDHost, cfg.Server.PublicHost(), cfg.Server.PublicURL)
	adapter := render.NewAdapter(registry.Platform.Renderer, typedLogger)
	composer := mailer.NewComposer(mailer.ComposerConfig{
		BaseHost:          cfg.Server.PublicURL,
		InlineUnsubscribe: cfg.Feature.UnsubscribeLink,
		TrackingPixel:     cfg.Feature.EmailTracking,
	})

	engine := dispatch.NewEngine(dispatch.EngineConfig{
		Resolver:      dispatch.NewRecipientResolver(registry.Platform.Membership, cfg.Dispatch.RecipientPageSize),
		Renderer:      adapter,
		Users:         registry.Platform.Users,
		Sent:          sent,
		Unsubscribes:  unsubscribes,
		Composer:      composer,
		Transport:     registry.Transport,
		TransportErr:  registry.TransportErr,
		Codec:         codec,
		From:          cfg.Mailer.From(),
		DefaultLocale: cfg.Dispatch.DefaultLocale,
		Logger:        typedLogger,
	})

	driver := scheduler.NewDriver(rules, engine, adapter, typedLogger)
	report := driver.RunOnce(ctx, time.Now().UTC())

	for _, r := range report.Rules {
		switch {
		case !r.Due:
			continue
		case len(r.Errors) == 0:
			fmt.Printf("notification %d (%s): sent to %d recipient(s)\n", r.NotificationID, r.Subject, r.Sent)
		default:
			fmt.Printf("notification %d (%s): sent to %d recipient(s), %d error(s)\n",
				r.NotificationID, r.Subject, r.Sent, len(r.Errors))
			for _, e := range r.Errors {
				fmt.Println("  " + e)
			}
		}
	}
	fmt.Printf("%d email sent\n", report.Sent)
}
