package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/spacesaver/internal/config"
	"github.com/jmylchreest/spacesaver/internal/ffmpeg"
	internalhttp "github.com/jmylchreest/spacesaver/internal/http"
	"github.com/jmylchreest/spacesaver/internal/http/handlers"
	"github.com/jmylchreest/spacesaver/internal/observability"
	"github.com/jmylchreest/spacesaver/internal/scanner"
	"github.com/jmylchreest/spacesaver/internal/store"
	"github.com/jmylchreest/spacesaver/internal/transcoder"
	"github.com/jmylchreest/spacesaver/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the spacesaver server",
	Long: `Start the spacesaver HTTP server and encode worker.

On startup the source directories are scanned for media files, interrupted
encodes are rolled back, and the single encode worker begins draining the
queue. The server provides:
- REST API for listing files and requesting transcodes
- Health check endpoint
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "", "Database file path (default {data-dir}/state.db)")
	serveCmd.Flags().String("data-dir", "./data", "Data directory for state and workfiles")
	serveCmd.Flags().StringSlice("source-dir", nil, "Media source directory (repeatable)")
	serveCmd.Flags().Int("crf", 22, "x265 constant rate factor")
	serveCmd.Flags().Int("res-cap", 0, "Maximum output height in pixels (0 = no cap)")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.path", serveCmd.Flags().Lookup("database"))
	mustBindPFlag("library.data_dir", serveCmd.Flags().Lookup("data-dir"))
	mustBindPFlag("library.source_dirs", serveCmd.Flags().Lookup("source-dir"))
	mustBindPFlag("encoder.crf", serveCmd.Flags().Lookup("crf"))
	mustBindPFlag("encoder.res_cap", serveCmd.Flags().Lookup("res-cap"))
}

func runServe(_ *cobra.Command, _ []string) error {
	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	logger := slog.Default()
	logger.Info("starting spacesaver",
		slog.String("version", version.Version),
		slog.Any("source_dirs", cfg.Library.SourceDirs),
	)

	st, err := store.Open(cfg.DatabasePath(), cfg.Database.LogLevel, observability.WithComponent(logger, "store"))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ffmpegLog := observability.WithComponent(logger, "ffmpeg")
	prober := ffmpeg.NewProber(cfg.Encoder.FFprobePath, cfg.Encoder.ProbeTimeout, ffmpegLog)
	encoder := ffmpeg.NewEncoder(cfg.Encoder.FFmpegPath, cfg.Encoder.Preset, ffmpegLog)

	sc := scanner.New(st, prober, observability.WithComponent(logger, "scanner"))
	sc.Scan(ctx, cfg.Library.SourceDirs)

	worker := transcoder.NewWorker(
		st, prober, encoder,
		cfg.Encoder.CRF, cfg.Encoder.ResCap,
		cfg.Library.WorkPath(), cfg.Encoder.PollInterval,
		observability.WithComponent(logger, "worker"),
	)
	if err := worker.PrepareStartup(ctx); err != nil {
		return fmt.Errorf("preparing worker: %w", err)
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	admission := transcoder.NewAdmission(st, observability.WithComponent(logger, "admission"))

	httpLog := observability.WithComponent(logger, "http")
	server := internalhttp.NewServer(cfg.Server, httpLog, version.Version)
	handlers.NewLibraryHandler(st, worker, httpLog).Register(server.API())
	handlers.NewEnqueueHandler(admission, httpLog).Register(server.API())
	handlers.NewHealthHandler(version.Version, st).Register(server.API())

	err = server.ListenAndServe(ctx)

	// Cancellation has already reached the worker; wait for it to let go of
	// any in-flight encode before closing the store.
	stop()
	<-workerDone

	if err != nil {
		return fmt.Errorf("running server: %w", err)
	}
	logger.Info("spacesaver stopped")
	return nil
}
