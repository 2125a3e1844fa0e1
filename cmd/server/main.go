// Command server runs the slide generation service: HTTP API, provisioning
// supervisor, and the job worker in one process.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/foundry"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/httpserver"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/observability"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/queue/memq"
	rendercdp "github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/render/chromedp"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/store/jobfs"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/adapter/store/statefile"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/app"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/config"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/pipeline"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/provision"
	"github.com/aratatotsuka/foundry-slide-html-generator/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdownTracing, err := observability.SetupTracing(cfg)
		if err != nil {
			return fmt.Errorf("op=main.tracing: %w", err)
		}
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				slog.Warn("tracer shutdown", slog.Any("error", err))
			}
		}()
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return fmt.Errorf("op=main.credential: %w", err)
	}
	client := foundry.New(cfg, cred)

	jobStore := jobfs.New(cfg.JobDataDir)
	stateStore := statefile.New(cfg.StateLocalPath)
	queue := memq.New()

	prov := provision.NewContext()
	supervisor := provision.NewSupervisor(client, stateStore, cfg.SeedDataDir, cfg.ModelDeploymentName, prov)

	renderer := rendercdp.New()
	defer renderer.Close()

	orchestrator := pipeline.New(jobStore, client, prov, renderer)
	worker := memq.NewWorker(queue, jobStore, orchestrator)

	gen := usecase.NewGenerateService(jobStore, queue)
	status := usecase.NewStatusService(jobStore)
	handler := httpserver.NewHandler(gen, status, jobStore, cfg.AllowHTMLDownload, cfg.HTMLDownloadAPIKey)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      app.NewRouter(cfg, handler, prov),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Provisioning failures are logged and the ready latch still fires;
		// jobs degrade rather than the process refusing to start.
		supervisor.Run(gctx)
		return nil
	})

	g.Go(func() error {
		return worker.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("http server listening", slog.String("addr", srv.Addr), slog.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("op=main.listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil {
			return fmt.Errorf("op=main.shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("server stopped")
	return nil
}
