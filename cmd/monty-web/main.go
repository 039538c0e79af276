package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"monty/internal/blobstore"
	"monty/internal/catalog"
	"monty/internal/config"
	"monty/internal/ingest"
	"monty/internal/logger"
	"monty/internal/lookup"
	"monty/internal/metadata"
	"monty/internal/objcache"
	"monty/internal/provider/musicbrainz"
	"monty/internal/shutdown"
	"monty/internal/web"
)

func main() {
	var (
		port       int
		configPath string
		serveDir   string
	)

	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&configPath, "config", "", "Config file path")
	flag.StringVar(&serveDir, "serve-blobs", "", "Serve this directory as the object store bucket under /blobs/")
	flag.Parse()

	cfg, err := config.LoadConfigFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	l := logger.New(cfg.Verbose)
	logDir := config.GetDefaultLogPath()
	if err := os.MkdirAll(logDir, 0755); err == nil {
		logPath := filepath.Join(logDir, fmt.Sprintf("monty-web-%d.log", time.Now().Unix()))
		if err := l.SetFileLog(logPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to setup file logging: %v\n", err)
		}
	}
	defer l.Close()

	sh := shutdown.New(context.Background())
	sh.Listen()

	if err := run(sh, cfg, port, serveDir, l); err != nil {
		l.Error("%v", err)
		sh.Shutdown()
		os.Exit(1)
	}
}

func run(sh *shutdown.Handler, cfg config.Config, port int, serveDir string, l *logger.Logger) error {
	ctx := sh.Context()

	var (
		blobs http.Handler
		store blobstore.ObjectStore
	)
	if serveDir != "" {
		// the served bucket is also this server's own store
		local, err := blobstore.NewDirStore(serveDir)
		if err != nil {
			return err
		}
		blobs = blobstore.Handler(cfg.Storage.Bucket, cfg.Storage.Token, local)
		store = local
		l.Info("Serving %s as bucket %s under /blobs/", serveDir, cfg.Storage.Bucket)
	} else {
		var err error
		store, err = blobstore.Open(ctx, cfg.Storage, l.With("storage"))
		if err != nil {
			return err
		}
	}
	cache := objcache.New(store, cfg.MediaDir, l.With("cache"),
		objcache.WithPrefix(cfg.Storage.Prefix), objcache.WithIndexName(cfg.Storage.IndexName))

	tracks, err := catalog.Open(ctx, cfg.DBPath, cache, l.With("catalog"))
	if err != nil {
		return err
	}
	sh.AddCleanup(func() { tracks.Close() })

	reader, err := metadata.NewTagReader(cfg.TagReader, l.With("tags"))
	if err != nil {
		return err
	}
	extractor := metadata.NewExtractor(reader)

	var svc lookup.Service = lookup.Offline{}
	if cfg.Lookup.Provider == "musicbrainz" {
		svc = musicbrainz.New(cfg.Lookup.APIURL, cfg.Lookup.UserAgent)
	}
	resolver := lookup.NewResolver(svc, l.With("lookup"))

	// every job shares the resolver, so release listings are fetched once per server
	runIngest := func(ctx context.Context, dir string, hooks ingest.Hooks) (ingest.Report, error) {
		p := ingest.New(extractor, resolver, cache, l.With("ingest"), ingest.Options{
			ParallelJobs:     cfg.ParallelJobs,
			WriteIdentifiers: cfg.WriteIdentifiers,
		})
		p.Hooks = hooks
		report, err := p.Run(ctx, dir)
		if err == nil && report.Published {
			if err := tracks.Upsert(ctx, report.Records...); err != nil {
				l.Warn("Ingested but could not update local catalog: %v", err)
			}
		}
		return report, err
	}

	jobMgr := web.NewJobManager()
	jobMgr.StartCleanup(ctx)
	server := web.NewServer(ctx, jobMgr, runIngest, tracks, blobs, l.With("web"))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // blob transfers and websockets stream without a deadline
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info("Starting web server on port %d", port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	l.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Error("Server shutdown error: %v", err)
	}
	server.Wait()
	sh.Shutdown()

	l.Info("Server stopped")
	return nil
}
