package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"rentradar-backend/cmd"
	"rentradar-backend/internal/database"
	"rentradar-backend/internal/messaging"
	"rentradar-backend/internal/scraper"
	"rentradar-backend/internal/storage"
	"rentradar-backend/internal/useragent"
	"rentradar-backend/pkg/api"
)

type CollectorConfig struct {
	BaseURL     string `env:"BASE_URL" envDefault:"https://spb.cian.ru/snyat-kvartiru/"`
	StartPage   int    `env:"START_PAGE" envDefault:"40"`
	MaxPages    int    `env:"MAX_PAGES" envDefault:"1000"`
	Headless    bool   `env:"HEADLESS" envDefault:"true"`
	Concurrency int    `env:"CONCURRENCY" envDefault:"1"`

	DataDir string `env:"DATA_DIR" envDefault:"data"`
	LogDir  string `env:"LOG_DIR" envDefault:"logs"`

	DatabaseURL string `env:"DATABASE_URL"`
	RabbitMQURL string `env:"RABBITMQ_URL"`

	PredictURL string `env:"PREDICT_URL"`

	DelayVariance float64 `env:"DELAY_VARIANCE" envDefault:"0.25"`

	ArchiveS3Bucket   string `env:"ARCHIVE_S3_BUCKET"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION"`
}

func main() {
	log.Println("Starting collector...")

	cmd.LoadEnvFile()

	var cfg CollectorConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	logFile, err := cmd.SetupLogging(cfg.LogDir, "collector.log")
	if err != nil {
		log.Fatalf("error setting up logging: %v", err)
	}
	defer logFile.Close()

	if err := os.MkdirAll(cfg.DataDir, os.ModePerm); err != nil {
		log.Fatalf("error creating data directory: %v", err)
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = filepath.Join(cfg.DataDir, "rentradar.db")
	}
	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	var publisher messaging.Publisher
	var receiver messaging.Receiver
	if cfg.RabbitMQURL != "" {
		pub, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("failed to connect to RabbitMQ: %v", err)
		}
		recv, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("failed to create RabbitMQ receiver: %v", err)
		}
		publisher, receiver = pub, recv
		defer recv.Close()
	} else {
		queue := messaging.NewInMemoryQueue()
		publisher, receiver = queue, queue
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	uaGen := useragent.NewGenerator(rng)

	browser, err := scraper.NewBrowser(ctx, cfg.Headless, uaGen)
	if err != nil {
		log.Fatalf("failed to start browser: %v", err)
	}
	defer browser.Close()

	outputPath := filepath.Join(cfg.DataDir, fmt.Sprintf("offers_%s.jsonl", time.Now().UTC().Format("2006-01-02_150405")))
	writer, err := scraper.NewJsonlWriter(outputPath)
	if err != nil {
		log.Fatalf("failed to create output file: %v", err)
	}

	pacer := scraper.NewPacer(cfg.DelayVariance, rng)
	retrier := scraper.NewRetrier(scraper.DefaultRetryConfig(), pacer)

	var predictor scraper.PricePredictor
	if cfg.PredictURL != "" {
		client := api.NewClient(cfg.PredictURL)
		if err := client.Health(ctx); err != nil {
			log.Fatalf("prediction service unreachable at %s: %v", cfg.PredictURL, err)
		}
		predictor = client
	}

	collector := scraper.NewCollector(
		scraper.CollectorConfig{
			BaseURL:     cfg.BaseURL,
			StartPage:   cfg.StartPage,
			MaxPages:    cfg.MaxPages,
			Concurrency: cfg.Concurrency,
		},
		db, browser, publisher, receiver,
		scraper.NewSink(writer, db),
		retrier, pacer, predictor,
	)

	runErr := collector.Run(ctx)

	if cfg.ArchiveS3Bucket != "" {
		store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
			Endpoint:        cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("failed to create object store: %v", err)
		}
		if _, err := storage.ArchiveRunOutput(context.Background(), store, cfg.ArchiveS3Bucket, writer.Path()); err != nil {
			log.Fatalf("failed to archive run output: %v", err)
		}
	}

	if runErr != nil {
		log.Fatalf("collection run failed: %v", runErr)
	}
	log.Println("Collector finished.")
}
