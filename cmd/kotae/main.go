// Package main is the kotae CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kotae/config.yaml"
	defaultServerURL  = "http://localhost:8080"
	clientTimeout     = 5 * time.Minute
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing default config falls back to built-in defaults.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	var err error
	switch command {
	case "server":
		err = runServer(args)
	case "ingest":
		err = runIngest(args)
	case "ask":
		err = runAsk(args)
	case "retrieve":
		err = runRetrieve(args)
	case "delete":
		err = runDelete(args)
	case "list":
		err = runList(args)
	case "status":
		err = runStatus(args)
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for usage errors, 3 when the AI service is unavailable, 1 otherwise.
func exitCode(err error) int {
	var apiErr *cli.APIError
	switch {
	case errors.Is(err, errUsage):
		return 2
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusServiceUnavailable:
		return 3
	default:
		return 1
	}
}

var errUsage = errors.New("usage")

func usageError(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, a...))
}

// argsReorder moves any flags (and their values) that appear after the
// positional arguments to the front so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument, so `kotae ask "question" --k 8`
// would otherwise leave --k unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// clientFlags registers the flags shared by commands that talk to a server.
func clientFlags(fs *flag.FlagSet) (serverURL *string, asJSON *bool) {
	serverURL = fs.String("server", envOr("KOTAE_SERVER", defaultServerURL), "server URL")
	asJSON = fs.Bool("json", false, "print JSON output")
	return serverURL, asJSON
}

func envOr(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (index builds, file events, etc.)")
	_ = fs.Parse(args)

	envDirs := []string{"."}
	if *configPath != defaultConfigPath {
		envDirs = append(envDirs, filepath.Dir(*configPath))
	}
	envFiles, err := config.LoadEnv(envDirs...)
	if err != nil {
		return err
	}
	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Strings("env_files", envFiles),
		zap.Bool("debug", debugMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Close()

	if _, err := components.Indexer.Reconcile(ctx); err != nil {
		logger.Warn("catalog reconciliation failed", zap.Error(err))
	}

	opts := []server.ServerOption{server.WithKeywordIndex(components.KeywordIndex)}
	var watchSvc *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		watchSvc = watcher.NewWatcher(cfg.Watch, components.Indexer, watcher.WithLogger(logger))
		if err := watchSvc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer watchSvc.Stop()
		go watchSvc.SyncExistingFiles()
		opts = append(opts, server.WithWatchService(watchSvc))
	}

	srv := server.NewServer(
		components.Pipeline,
		components.Indexer,
		components.Catalog,
		components.Index,
		cfg,
		logger,
		opts...,
	)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Shutting down...")
	if st := components.Embedder.CacheStats(); st.Hits+st.Misses > 0 {
		logger.Info("embedding cache",
			zap.Int("entries", st.Entries),
			zap.Int64("hits", st.Hits),
			zap.Int64("misses", st.Misses))
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	serverURL, asJSON := clientFlags(fs)
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() < 1 {
		return usageError("kotae ingest [flags] <file-or-directory>...")
	}
	files, err := collectFiles(fs.Args())
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return usageError("no supported files found")
	}
	client := cli.NewClient(*serverURL, clientTimeout)
	format := cli.Format(*asJSON)
	ctx := context.Background()
	failed := 0
	for _, path := range files {
		resp, err := client.Upload(ctx, path)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "Ingest %s failed: %v\n", path, err)
			continue
		}
		if err := cli.WriteUpload(os.Stdout, path, resp, format); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", failed, len(files))
	}
	return nil
}

// collectFiles expands directories into the supported files under them.
func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && extract.Supported(strings.ToLower(filepath.Ext(path))) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL, asJSON := clientFlags(fs)
	k := fs.Int("k", 0, "number of passages to retrieve (0 = server default)")
	_ = fs.Parse(argsReorder(args))
	question := joinArgs(fs.Args())
	if question == "" {
		return usageError("kotae ask [flags] <question>")
	}
	client := cli.NewClient(*serverURL, clientTimeout)
	resp, err := client.Ask(context.Background(), models.AskRequest{Question: question, K: *k})
	if err != nil {
		return err
	}
	return cli.WriteAnswer(os.Stdout, resp, cli.Format(*asJSON))
}

func runRetrieve(args []string) error {
	fs := flag.NewFlagSet("retrieve", flag.ExitOnError)
	serverURL, asJSON := clientFlags(fs)
	k := fs.Int("k", 0, "number of passages to retrieve (0 = server default)")
	_ = fs.Parse(argsReorder(args))
	question := joinArgs(fs.Args())
	if question == "" {
		return usageError("kotae retrieve [flags] <question>")
	}
	client := cli.NewClient(*serverURL, clientTimeout)
	passages, err := client.Retrieve(context.Background(), question, *k)
	if err != nil {
		return err
	}
	return cli.WritePassages(os.Stdout, passages, cli.Format(*asJSON))
}

func runDelete(args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL, asJSON := clientFlags(fs)
	_ = fs.Parse(argsReorder(args))
	if fs.NArg() != 1 {
		return usageError("kotae delete [flags] <document-id>")
	}
	client := cli.NewClient(*serverURL, clientTimeout)
	resp, err := client.Delete(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}
	return cli.WriteDelete(os.Stdout, resp, cli.Format(*asJSON))
}

func runList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	serverURL, asJSON := clientFlags(fs)
	offset := fs.Int("offset", 0, "skip this many documents")
	limit := fs.Int("limit", 50, "maximum documents to list")
	_ = fs.Parse(args)
	client := cli.NewClient(*serverURL, clientTimeout)
	list, err := client.List(context.Background(), *offset, *limit)
	if err != nil {
		return err
	}
	return cli.WriteDocuments(os.Stdout, list, cli.Format(*asJSON))
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL, asJSON := clientFlags(fs)
	_ = fs.Parse(args)
	client := cli.NewClient(*serverURL, clientTimeout)
	st, err := client.Status(context.Background())
	if err != nil {
		return err
	}
	return cli.WriteStatus(os.Stdout, st, cli.Format(*asJSON))
}

// Components holds initialized services.
type Components struct {
	Catalog      *storage.SQLiteCatalog
	Embedder     *embedding.CachedEmbedder
	Generator    generation.Generator
	Index        *vector.Manager
	KeywordIndex *keyword.BleveIndex
	Pipeline     *search.Pipeline
	Indexer      *indexer.Indexer
}

// Close releases every initialized component.
func (c *Components) Close() {
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Generator != nil {
		_ = c.Generator.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if dir := filepath.Dir(cfg.Storage.DatabasePath); cfg.Storage.DatabasePath != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	c.Catalog, err = storage.NewSQLiteCatalog(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	embedder, err := embedding.New(ctx, cfg.Embedding, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedder

	c.Generator, err = generation.New(ctx, cfg.Generation, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generator: %w", err)
	}

	metric, err := vector.ParseMetric(cfg.Vector.Metric)
	if err != nil {
		return nil, err
	}
	builder, err := vector.NewBuilder(cfg.Vector.IndexType)
	if err != nil {
		return nil, err
	}
	c.Index = vector.NewManager(metric,
		vector.WithBuilder(builder),
		vector.WithDimensions(embedder.Dimensions()),
		vector.WithLogger(logger))
	logger.Info("vector index configured",
		zap.String("type", cfg.Vector.IndexType),
		zap.String("metric", string(metric)),
		zap.Int("dimensions", embedder.Dimensions()))

	c.KeywordIndex, err = keyword.NewBleveIndex(cfg.Storage.CatalogIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog search index: %w", err)
	}

	c.Pipeline = search.NewPipeline(embedder, c.Index, c.Generator, cfg.Retrieval,
		search.WithDocumentNamer(c.Catalog),
		search.WithLogger(logger))
	c.Indexer = indexer.NewIndexer(c.Catalog, embedder, c.Index, c.KeywordIndex, cfg.Chunking,
		extract.NewExtractor(), indexer.WithLogger(logger))
	return c, nil
}

func printUsage() {
	fmt.Println(`kotae - Question answering over your documents, with citations

Usage:
  kotae server [flags]                 Start the HTTP server
  kotae ingest [flags] <path>...       Upload files or directories for ingestion
  kotae ask [flags] <question>         Ask a question
  kotae retrieve [flags] <question>    Show the passages a question retrieves
  kotae delete [flags] <id>            Delete a document
  kotae list [flags]                   List ingested documents
  kotae status [flags]                 Show catalog/index status
  kotae version                        Show version
  kotae help                           Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Client Flags (ingest, ask, retrieve, delete, list, status):
  --server string    Server URL (default: $KOTAE_SERVER or http://localhost:8080)
  --json             Print JSON output
  --k int            Passages to retrieve (ask, retrieve)
  --offset, --limit  Paging (list)

Examples:
  kotae server --config ./config.yaml
  kotae ingest handbook.pdf ./policies
  kotae ask "How long do refunds take?"
  kotae ask --json --k 8 "Who approves travel?"
  kotae delete 3f0c9a52-...
  kotae status --json`)
}
