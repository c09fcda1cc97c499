package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"macroflow/config"
	"macroflow/logger"
	"macroflow/models"
	"macroflow/pipeline"
)

const defaultConfigPath = "config/config.yml"

func main() {
	log := logger.GetLogger()

	configPath := flag.String("config", "", "Path to configuration file (default "+defaultConfigPath+")")
	sourceName := flag.String("source", "", "Data source for this run: statcan, bankofcanada or fred (default from config)")
	envPath := flag.String("env", ".env", "Path to environment file")
	flag.Parse()

	// Load environment variables from .env if present
	if err := godotenv.Load(*envPath); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	cfg, err := config.LoadConfig(config.ResolveConfigPath(*configPath, defaultConfigPath))
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	env := config.AppEnvironment()

	log.WithFields(logger.Fields{
		"service":     cfg.Macroflow.Name,
		"version":     cfg.Macroflow.Version,
		"environment": env,
	}).Info("starting macroflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// An interrupt cancels in-flight requests; output already persisted
	// stays as it is.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
		cancel()
	}()

	if cfg.Metrics.Enabled {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace, cfg.Metrics.Dashboard)
	}
	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, cfg.Metrics.ReportInterval)
	}

	if config.IsProductionLike(env) && !cfg.Storage.S3.Enabled {
		log.WithComponent("main").Warn("archive mirror disabled in a production-like environment")
	}

	name := *sourceName
	if name == "" {
		name = cfg.Macroflow.DefaultSource
	}

	p, err := pipeline.New(cfg, name)
	if err != nil {
		log.WithError(err).Error("Failed to build pipeline")
		os.Exit(1)
	}

	summary, err := p.Run(ctx)
	if err != nil {
		if errors.Is(err, models.ErrEmptySeries) {
			log.WithFields(logger.Fields{"source": name}).Warn("no usable observations; nothing written")
			fmt.Printf("No data available from %s; no output written.\n", name)
			return
		}
		log.WithError(err).Error("Pipeline run failed")
		os.Exit(1)
	}

	printSummary(summary)

	log.WithFields(logger.Fields{"run_id": summary.RunID}).Info("macroflow finished")
}

func printSummary(s *pipeline.Summary) {
	fmt.Println()
	fmt.Println("==================================================")
	fmt.Println("  Inflation run summary")
	fmt.Println("==================================================")
	fmt.Printf("  Run ID:        %s\n", s.RunID)
	fmt.Printf("  Source:        %s\n", s.Source)
	fmt.Printf("  Records:       %d\n", s.Records)
	fmt.Printf("  Latest month:  %s\n", s.LatestMonth.Format("2006-01"))
	fmt.Printf("  Latest value:  %.2f\n", s.LatestValue)
	fmt.Printf("  Latest YoY:    %s\n", fmtRate(s.LatestYoY))
	fmt.Printf("  Latest MoM:    %s\n", fmtRate(s.LatestMoM))
	fmt.Printf("  3-obs trend:   %s\n", fmtRate(s.LatestTrend))
	fmt.Printf("  Avg YoY (12m): %s\n", fmtRate(s.AvgYoY12))
	fmt.Printf("  Avg MoM (12m): %s\n", fmtRate(s.AvgMoM12))
	fmt.Printf("  Archive:       %s\n", s.ArchivePath)
	fmt.Printf("  Snapshot:      %s\n", s.SnapshotPath)
	if s.S3Key != "" {
		fmt.Printf("  S3 mirror:     %s\n", s.S3Key)
	}
	fmt.Printf("  Duration:      %s\n", s.Duration.Round(time.Millisecond))
	fmt.Println("==================================================")
}

func fmtRate(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *v)
}
