package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/tradecore/config"
)

const usage = `usage: tradecore [flags] <command>

commands:
  backtest      run a backtest over synthetic data or -feed
  walk-forward  split the data into train/validate/test and run each
  paper         replay -feed through the engine in real time
  verify        check a decision log and print the recovered state
  report        print stored runs and reason code totals

flags:
`

func main() {
	configPath := flag.String("config", "", "path to config file (empty = defaults)")
	feedPath := flag.String("feed", "", "tick file (jsonl or csv); empty = synthetic data")
	feedFormat := flag.String("format", "", "feed format: jsonl|csv (overrides config)")
	logPath := flag.String("log", "", "decision log path (overrides config)")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("log-format", "", "log format: text|json (overrides config)")
	noSave := flag.Bool("no-save", false, "do not persist the run")
	trades := flag.Int("trades", 20, "trades to print after a run (0 = none)")
	resume := flag.Bool("resume", false, "paper: clear a freeze recovered from the decision log")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *feedPath != "" {
		cfg.Feed.Path = *feedPath
	}
	if *feedFormat != "" {
		cfg.Feed.Format = *feedFormat
	}
	if *logPath != "" {
		cfg.DecisionLog.Path = *logPath
	}
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := runOptions{save: !*noSave, trades: *trades, resume: *resume}
	cmd := flag.Arg(0)
	slog.Info("tradecore starting", "command", cmd, "config", *configPath, "strategy", cfg.Strategy.Name)

	switch cmd {
	case "backtest":
		err = runBacktest(ctx, cfg, opts)
	case "walk-forward":
		err = runWalkForward(ctx, cfg, opts)
	case "paper":
		err = runPaper(ctx, cfg, opts)
	case "verify":
		err = runVerify(ctx, cfg)
	case "report":
		err = runReport(ctx, cfg)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("tradecore exited with error", "command", cmd, "err", err)
		os.Exit(1)
	}
	slog.Info("tradecore stopped cleanly", "command", cmd)
}

type runOptions struct {
	save   bool
	trades int
	resume bool
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// stderr: stdout queda para los reportes
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
