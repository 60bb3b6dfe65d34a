// Command tieredctl reads and writes instances of the models declared in a
// schema file, using tiers configured from TIERED_* environment variables.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/tiered"
	"github.com/unkn0wn-root/tiered/config"
	asynchook "github.com/unkn0wn-root/tiered/hooks/async"
	sloghook "github.com/unkn0wn-root/tiered/hooks/slog"
	"github.com/unkn0wn-root/tiered/internal/ctl"
	tieredzap "github.com/unkn0wn-root/tiered/log/zap"
	"github.com/unkn0wn-root/tiered/schemafile"
)

func main() {
	schema := flag.String("schema", "models.yaml", "YAML model declarations")
	events := flag.Bool("events", false, "report cache fallbacks and write failures on stderr")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), ctl.Usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, *schema, *events, flag.Args())
	stop()
	if errors.Is(err, ctl.ErrUsage) {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tieredctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, schema string, events bool, args []string) error {
	cfg, err := config.Parse()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	defs, err := schemafile.Load(schema)
	if err != nil {
		return err
	}
	reg := tiered.NewRegistry()
	if err := reg.Register(defs...); err != nil {
		return err
	}
	opts := tiered.Options{
		Registry: reg,
		Logger:   tieredzap.Logger{L: logger.Named("tiered")},
	}
	if events {
		h := asynchook.New(sloghook.New(slog.New(slog.NewTextHandler(os.Stderr, nil)), sloghook.Options{}), 1, 64)
		// runs after db.Close so background repopulation can still report
		defer h.Close()
		opts.Hooks = h
	}
	db, err := config.Open(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("close", zap.Error(err))
		}
	}()
	return ctl.Run(ctx, db, args, os.Stdout)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("TIERED_LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}
