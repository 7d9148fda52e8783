// Command import loads historical signals from a YAML file into the store.
// Re-running it updates the same signals in place.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"SignalHub/internal/di"
	"SignalHub/internal/domain/models"
	"SignalHub/internal/domain/repository"
	"SignalHub/internal/usecase"
	"SignalHub/pkg/config"
	applogger "SignalHub/pkg/logger"

	"gopkg.in/yaml.v3"
)

// discard drops realtime events; nobody is connected to this process.
type discard struct{}

func (discard) Publish(models.Event) {}

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	file := flag.String("file", "config/historical_signals.yaml", "YAML file with a signals list")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	b, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("read %s: %v", *file, err)
	}
	var req models.ImportRequest
	if err := yaml.Unmarshal(b, &req); err != nil {
		log.Fatalf("parse %s: %v", *file, err)
	}
	for i := range req.Signals {
		if req.Signals[i].Source == "" {
			req.Signals[i].Source = "import"
		}
	}

	logger, err := di.ProvideLogger(cfg)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	store, err := di.ProvideStore(cfg, logger)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	os.Exit(run(store, req.Signals, logger))
}

func run(store repository.Repository, signals []models.RawSignal, logger *applogger.Logger) int {
	defer store.Close()
	ingestor := usecase.NewSignalIngestor(store, discard{}, nil, logger.Named("import"), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	sum := ingestor.IngestBatch(ctx, signals)

	for _, item := range sum.Items {
		if len(item.Errors) > 0 {
			log.Printf("signal #%d rejected: %v", item.Index, item.Errors)
		}
	}
	log.Printf("imported %d signals: %d created, %d updated, %d failed", sum.Total, sum.Created, sum.Updated, sum.Failed)
	if sum.Failed > 0 {
		return 1
	}
	return 0
}
