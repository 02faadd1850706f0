package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Brownie44l1/squeezenet-api/internal/app"
	"github.com/Brownie44l1/squeezenet-api/internal/classify"
	"github.com/Brownie44l1/squeezenet-api/internal/config"
	"github.com/Brownie44l1/squeezenet-api/internal/handlers"
	"github.com/Brownie44l1/squeezenet-api/internal/imageio"
	"github.com/Brownie44l1/squeezenet-api/internal/logging"
	"github.com/Brownie44l1/squeezenet-api/internal/model"
	"github.com/Brownie44l1/squeezenet-api/internal/realtime"
	"github.com/Brownie44l1/squeezenet-api/internal/samples"
	"github.com/Brownie44l1/squeezenet-api/internal/tensor"
	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "Path to YAML config")
	port := flag.Int("port", 0, "Override server port")
	modelDir := flag.String("model-dir", "", "Override model directory")
	flag.Parse()

	// If running from cmd/server, look for the config two levels up
	if _, err := os.Stat(*cfgPath); os.IsNotExist(err) && !filepath.IsAbs(*cfgPath) {
		if wd, err := os.Getwd(); err == nil && filepath.Base(wd) == "server" {
			root := filepath.Join(wd, "../..")
			*cfgPath = filepath.Join(root, *cfgPath)
			if err := os.Chdir(root); err != nil {
				log.Fatalf("Failed to change to project root: %v", err)
			}
		}
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyOverrides(config.EnvOverrides())
	cfg.ApplyOverrides(config.Overrides{Port: *port, ModelDir: *modelDir})

	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("loading model", zap.String("model", cfg.ModelPath()), zap.String("metadata", cfg.MetadataPath()))

	// Without a model the service still runs; classification then fails
	// with an inference error.
	var engine model.Engine
	onnx, err := model.NewONNXEngine(model.ONNXConfig{
		ModelPath:    cfg.ModelPath(),
		MetadataPath: cfg.MetadataPath(),
		LibraryPath:  cfg.Model.LibraryPath,
		NumThreads:   cfg.Model.NumThreads,
	}, logger)
	if err != nil {
		logger.Error("model not loaded", zap.Error(err))
	} else {
		engine = onnx
		defer onnx.Close()
		logger.Info("classes loaded", zap.Int("count", len(onnx.Metadata.Classes)))
	}

	encoder, err := tensor.NewEncoder(cfg.Encoder.Filter)
	if err != nil {
		return err
	}

	pipeline := &classify.Pipeline{
		Loader: imageio.NewLoader(
			imageio.WithMaxBytes(cfg.Server.MaxUploadBytes),
			imageio.WithHTTPClient(&http.Client{Timeout: cfg.Server.Timeout}),
			imageio.WithLogger(logger.Named("imageio")),
		),
		Encoder:    encoder,
		Classifier: model.NewAdapter(engine, cfg.Inference.Timeout, logger.Named("inference")),
		Logger:     logger.Named("pipeline"),
	}

	catalog, err := samples.NewCatalog(cfg.Samples.Dir, logger.Named("samples"))
	if err != nil {
		return err
	}
	if catalog.Len() == 0 {
		logger.Warn("no sample images found, random sample is disabled until files are added",
			zap.String("dir", catalog.Dir()),
			zap.Strings("expected", samples.DefaultNames))
	}
	if cfg.Samples.Watch {
		go func() {
			if err := catalog.Watch(ctx); err != nil {
				logger.Warn("sample watcher stopped", zap.Error(err))
			}
		}()
	}

	seed := cfg.Samples.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	shell := app.NewShell(pipeline, catalog, seed, logger.Named("shell"))

	hub := realtime.NewHub(cfg.Server.AllowedOrigins, logger.Named("ws"))
	go hub.Run(ctx)
	shell.Subscribe(func(st app.State) { hub.Publish("state", st.View()) })

	handler := handlers.NewHandler(handlers.Options{
		Pipeline:  pipeline,
		Shell:     shell,
		Catalog:   catalog,
		Events:    hub,
		MaxUpload: cfg.Server.MaxUploadBytes,
		Logger:    logger.Named("http"),
	})
	mux := http.NewServeMux()
	handler.Register(mux)

	chain := handlers.Chain(
		handlers.Recovery(logger),
		handlers.Logger(logger.Named("access")),
		handlers.CORS(cfg.Server.AllowedOrigins),
	)

	// No write timeout: classification has its own timeout and /ws is long-lived.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           chain(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.Strings("samples", catalog.Names()),
			zap.Strings("endpoints", []string{
				"GET /health", "POST /predict", "POST /predict/image",
				"GET /state", "POST /image", "POST /capture/enable", "POST /capture/cancel",
				"POST /capture", "POST /sample/random", "POST /classify",
				"GET /samples/{name}", "GET /ws",
			}))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
