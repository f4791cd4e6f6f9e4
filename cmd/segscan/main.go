package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nvr-ai/go-segscan/config"
)

func main() {
	var (
		configPath string
		mode       string
		index      int
		headless   bool
		reportPath string
		baseline   string
		profile    time.Duration
	)
	flag.StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	flag.StringVar(&mode, "mode", "live", "Start mode: live, test or autotest")
	flag.IntVar(&index, "index", 0, "Dataset index for -mode test")
	flag.BoolVar(&headless, "headless", false, "Run without a display window")
	flag.StringVar(&reportPath, "report", "", "Write the AutoTest report to this YAML file")
	flag.StringVar(&baseline, "baseline", "", "Compare the AutoTest mean IoU against this earlier report")
	flag.DurationVar(&profile, "profile", 0, "Log a pipeline status report at this interval, 0 disables")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cfg = *loaded
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, &cfg, runOptions{
		mode:       mode,
		index:      index,
		headless:   headless,
		reportPath: reportPath,
		baseline:   baseline,
		profile:    profile,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("segscan failed")
		os.Exit(1)
	}
}
