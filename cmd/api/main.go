package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	ort "github.com/yalue/onnxruntime_go"

	"rentradar-backend/cmd"
	backend "rentradar-backend/internal/api"
	"rentradar-backend/internal/core"
	"rentradar-backend/internal/database"
	"rentradar-backend/internal/storage"
)

type APIConfig struct {
	APIPort string `env:"API_PORT" envDefault:"8000"`

	DataDir string `env:"DATA_DIR" envDefault:"data"`
	LogDir  string `env:"LOG_DIR" envDefault:"logs"`

	DatabaseURL string `env:"DATABASE_URL"`

	ModelDir         string  `env:"MODEL_DIR" envDefault:"models"`
	OnnxRuntimeDylib string  `env:"ONNX_RUNTIME_DYLIB,notEmpty,required"`
	PredictionMargin float64 `env:"PREDICTION_MARGIN" envDefault:"0.15"`

	ModelS3Bucket     string `env:"MODEL_S3_BUCKET"`
	ModelS3Prefix     string `env:"MODEL_S3_PREFIX" envDefault:"latest"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION"`
}

func main() {
	log.Println("Starting API server...")

	cmd.LoadEnvFile()

	var cfg APIConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	logFile, err := cmd.SetupLogging(cfg.LogDir, "api.log")
	if err != nil {
		log.Fatalf("error setting up logging: %v", err)
	}
	defer logFile.Close()

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = filepath.Join(cfg.DataDir, "rentradar.db")
	}
	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if cfg.ModelS3Bucket != "" {
		store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
			Endpoint:        cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("failed to create object store: %v", err)
		}
		if err := storage.SyncModelDir(context.Background(), store, cfg.ModelS3Bucket, cfg.ModelS3Prefix, cfg.ModelDir); err != nil {
			log.Fatalf("failed to sync model: %v", err)
		}
	}

	ort.SetSharedLibraryPath(cfg.OnnxRuntimeDylib)
	if err := ort.InitializeEnvironment(); err != nil {
		log.Fatalf("could not init ONNX Runtime: %v", err)
	}
	defer func() {
		if err := ort.DestroyEnvironment(); err != nil {
			log.Fatalf("error destroying onnx env: %v", err)
		}
	}()

	model, err := core.LoadOnnxRegressor(cfg.ModelDir)
	if err != nil {
		log.Fatalf("failed to load model from %s: %v", cfg.ModelDir, err)
	}
	defer model.Release()

	predictor := core.NewPredictionService(model, cfg.PredictionMargin)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	apiHandler := backend.NewBackendService(db, predictor)
	r.Route("/api/v1", apiHandler.AddRoutes)

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("could not listen on %s: %v", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
