// cfsi is the pipeline's single entrypoint, accepting one or more action
// tokens in order (index, mask, mosaic, init, build, start, stop, clean,
// deploy, destroy, log), per spec §6.
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/GispoCoding/CFSI/internal/blobstore"
	"github.com/GispoCoding/CFSI/internal/cache"
	"github.com/GispoCoding/CFSI/internal/catalog"
	"github.com/GispoCoding/CFSI/internal/config"
	"github.com/GispoCoding/CFSI/internal/controller"
	"github.com/GispoCoding/CFSI/internal/fmask"
	"github.com/GispoCoding/CFSI/internal/httpapi"
	"github.com/GispoCoding/CFSI/internal/indexer"
	"github.com/GispoCoding/CFSI/internal/logging"
	"github.com/GispoCoding/CFSI/internal/maskgen"
	"github.com/GispoCoding/CFSI/internal/mosaic"
	"github.com/GispoCoding/CFSI/internal/planner"
	"github.com/GispoCoding/CFSI/internal/rasterio"
	"github.com/GispoCoding/CFSI/internal/s2cloudless"
)

var (
	detach     bool
	statusAddr string
	composeFile string
)

func main() {
	os.Exit(run())
}

func run() (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintln(os.Stderr, "panic:", r)
			code = 1
		}
	}()
	rootCmd := &cobra.Command{
		Use:   "cfsi [action...]",
		Short: "Cloud-free Sentinel-2 mosaic pipeline",
		Long: `cfsi sequences indexing, mask generation, and mosaic compositing
over Sentinel-2 imagery in a configured object store, writing results
into a catalog and an output root.

Recognized actions, executed in the order given: build, start, init,
stop, clean, index, mask, mosaic, deploy, destroy, log.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runActions,
	}
	rootCmd.Flags().BoolVarP(&detach, "detach", "d", false, "run a single action in the background (valid only with one action)")
	rootCmd.Flags().StringVar(&statusAddr, "status-addr", "", "if set, serve diagnostics HTTP on this address")
	rootCmd.Flags().StringVar(&composeFile, "compose-file", "docker-compose.yml", "compose file used for external actions")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runActions(cmd *cobra.Command, args []string) error {
	if detach && len(args) != 1 {
		return fmt.Errorf("--detach/-d is only valid with a single action")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	actions := make([]controller.Action, len(args))
	for i, a := range args {
		actions[i] = controller.Action(a)
	}

	ctrl, closeFn, err := buildController(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	if statusAddr != "" {
		srv := httpapi.NewRouter(ctrl.Registry)
		go func() {
			logger.Info("diagnostics server listening", "addr", statusAddr)
			if err := http.ListenAndServe(statusAddr, srv); err != nil && err != http.ErrServerClosed {
				logger.Error("diagnostics server stopped", "error", err)
			}
		}()
	}

	if err := ctrl.RunAll(ctx, actions); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("interrupted")
		}
		return err
	}
	return nil
}

// buildController wires every collaborator from cfg, returning a cleanup
// function that closes the catalog pool and cache connection.
func buildController(ctx context.Context, cfg config.Config) (*controller.Controller, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.Catalog.DSN)
	if err != nil {
		return nil, func() {}, fmt.Errorf("connecting to catalog: %w", err)
	}

	var cat catalog.Catalog = catalog.NewPGCatalog(pool)
	var redisCache *cache.Cache
	if cfg.Cache.Enabled {
		redisCache, err = cache.New(cfg.Cache.URL)
		if err != nil {
			pool.Close()
			return nil, func() {}, fmt.Errorf("connecting to cache: %w", err)
		}
		cat = catalog.NewCachingCatalog(cat, redisCache.Client())
	}

	blob, err := blobstore.NewS3Store(ctx)
	if err != nil {
		pool.Close()
		return nil, func() {}, fmt.Errorf("connecting to object store: %w", err)
	}

	raster := rasterio.NewGDALRasterIO()
	p := planner.New(cfg.Output.ContainerRoot, cfg.Output.ContainerRoot, cfg.Output.HostRoot)
	ix := indexer.New(blob, cat)

	l1cBucket := firstOrDefault(cfg.Index.S2Index.S3Buckets, 0, indexer.BucketL1C)
	l2aBucket := firstOrDefault(cfg.Index.S2Index.S3Buckets, 1, indexer.BucketL2A)

	s2cBackend := s2cloudless.NewBackend(blob, raster, p,
		s2cloudless.ExecDetector{BinaryPath: "s2cloudless-model"}.AsCloudDetector(),
		s2cloudless.Config{
			CloudThreshold:          cfg.Masks.S2Cloudless.CloudThreshold,
			CloudProjectionDistance: cfg.Masks.S2Cloudless.CloudProjectionDistance,
			DarkPixelThreshold:      cfg.Masks.S2Cloudless.DarkPixelThreshold,
			UseCache:                cfg.Masks.S2Cloudless.Cache,
			RowDirection:            cfg.Masks.S2Cloudless.RowDirection,
			L1CBucket:               l1cBucket,
			StagingDir:              cfg.Output.ContainerRoot + "/.safe-cache",
		})

	fmaskBackend := fmask.NewBackend(blob, p,
		fmask.ExecRunner{BinaryPath: cfg.Masks.Fmask.BinaryPath},
		fmask.Config{L1CBucket: l1cBucket, StagingDir: cfg.Output.ContainerRoot + "/.safe-cache"})

	mc := mosaic.New(cat, raster, ix, p)
	registry := controller.NewRegistry()
	orch := controller.ComposeOrchestrator{ComposeFile: composeFile}

	ctrl := controller.New(cfg, cat, ix, p,
		controller.MaskBackendSet{
			S2Cloudless: maskBackendOrNil(cfg.Masks.S2Cloudless.Generate, s2cBackend),
			Fmask:       maskBackendOrNil(cfg.Masks.Fmask.Generate, fmaskBackend),
		}, mc, orch, registry)

	closeFn := func() {
		pool.Close()
		if redisCache != nil {
			_ = redisCache.Close()
		}
	}
	return ctrl, closeFn, nil
}

func maskBackendOrNil(enabled bool, backend maskgen.Backend) maskgen.Backend {
	if !enabled {
		return nil
	}
	return backend
}

func firstOrDefault(s []string, idx int, fallback string) string {
	if idx < len(s) {
		return s[idx]
	}
	return fallback
}
