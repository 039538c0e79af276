package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"monty/internal/blobstore"
	"monty/internal/catalog"
	"monty/internal/config"
	"monty/internal/logger"
	"monty/internal/lookup"
	"monty/internal/metadata"
	"monty/internal/objcache"
	"monty/internal/provider/musicbrainz"
	"monty/internal/shutdown"
)

type commandContext struct {
	sh          *shutdown.Handler
	configFlag  string
	verboseFlag bool

	configOnce sync.Once
	config     config.Config
	configPath string
	configErr  error

	logOnce sync.Once
	log     *logger.Logger
}

func newCommandContext(sh *shutdown.Handler) *commandContext {
	return &commandContext{sh: sh}
}

// ensureConfig loads and validates the configuration once. Flags override
// the file.
func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(c.configFlag)
		cfg, err := config.LoadConfigFile(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.verboseFlag {
			cfg.Verbose = true
		}
		if err := cfg.Validate(); err != nil {
			c.configErr = fmt.Errorf("configuration error: %w", err)
			return
		}
		if path == "" {
			path = config.FindConfigFile()
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

// logger returns the process logger. Outside verbose mode, detailed logs
// go to a timestamped file under the default log directory.
func (c *commandContext) logger() *logger.Logger {
	c.logOnce.Do(func() {
		c.log = logger.New(c.config.Verbose)
		c.sh.AddCleanup(func() { c.log.Close() })

		if c.configPath != "" {
			c.log.Debug("Loaded configuration from: %s", c.configPath)
		}
		if c.config.Verbose {
			return
		}

		logDir := config.GetDefaultLogPath()
		if err := os.MkdirAll(logDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] Failed to create log directory: %v\n", err)
			return
		}
		logFile := filepath.Join(logDir, fmt.Sprintf("monty_%s.log", time.Now().Format("2006-01-02_15-04-05")))
		if err := c.log.SetFileLog(logFile); err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] Failed to setup file logging: %v\n", err)
		}
	})
	return c.log
}

func (c *commandContext) openCache(ctx context.Context) (*objcache.Cache, error) {
	log := c.logger()
	store, err := blobstore.Open(ctx, c.config.Storage, log.With("storage"))
	if err != nil {
		return nil, err
	}

	var opts []objcache.Option
	if c.config.Storage.Prefix != "" {
		opts = append(opts, objcache.WithPrefix(c.config.Storage.Prefix))
	}
	if c.config.Storage.IndexName != "" {
		opts = append(opts, objcache.WithIndexName(c.config.Storage.IndexName))
	}
	return objcache.New(store, c.config.MediaDir, log.With("cache"), opts...), nil
}

// openCatalog opens the local store, bootstrapping it from the remote
// index the first time. The store is closed on shutdown.
func (c *commandContext) openCatalog(ctx context.Context, cache *objcache.Cache) (*catalog.Store, error) {
	store, err := catalog.Open(ctx, c.config.DBPath, cache, c.logger().With("catalog"))
	if err != nil {
		return nil, err
	}
	c.sh.AddCleanup(func() { store.Close() })
	return store, nil
}

func (c *commandContext) newResolver() *lookup.Resolver {
	var svc lookup.Service = lookup.Offline{}
	if c.config.Lookup.Provider == "musicbrainz" {
		svc = musicbrainz.New(c.config.Lookup.APIURL, c.config.Lookup.UserAgent)
	}
	return lookup.NewResolver(svc, c.logger().With("lookup"))
}

func (c *commandContext) newExtractor() (*metadata.Extractor, error) {
	reader, err := metadata.NewTagReader(c.config.TagReader, c.logger().With("tags"))
	if err != nil {
		return nil, err
	}
	return metadata.NewExtractor(reader), nil
}
