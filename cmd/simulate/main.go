package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/okian/tourney/internal/simulation"
	"github.com/okian/tourney/pkg/logger"
)

const (
	simulationTimeout = 10 * time.Minute
	logFileMaxSizeMB  = 50
	logFileMaxBackups = 3
)

func main() {
	cfg, err := simulation.ParseArgs(os.Args[1:])
	if errors.Is(err, simulation.ErrHelp) {
		return
	}
	if err != nil {
		// go-flags has already printed its own parse errors.
		var flagErr *flags.Error
		if !errors.As(err, &flagErr) {
			os.Stderr.WriteString("simulate: " + err.Error() + "\n")
		}
		os.Exit(2)
	}

	opts := []logger.Option{}
	if cfg.LogFile != "" {
		opts = append(opts, logger.WithFile(cfg.LogFile, logFileMaxSizeMB, logFileMaxBackups))
	}
	if err := logger.Init(opts...); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if cfg.Verbose {
		_ = logger.SetLevelString("debug")
	}
	log := logger.Named("simulate")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, simulationTimeout)
	defer cancel()

	report, err := simulation.Run(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "simulation failed", logger.Error(err))
		os.Exit(1)
	}
	if cfg.Output != "" {
		if err := report.Save(cfg.Output); err != nil {
			log.Warn(ctx, "failed to save report", logger.Error(err))
		} else {
			log.Info(ctx, "report saved", logger.String("file", cfg.Output))
		}
	}
	if len(report.Violations) > 0 {
		for _, v := range report.Violations {
			log.Error(ctx, "pairing violation", logger.Int("round", v.Round), logger.String("detail", v.Message))
		}
		os.Exit(1)
	}
}
