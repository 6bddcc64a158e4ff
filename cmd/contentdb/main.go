// Package main is the contentdb command line entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/contentdb/internal/cli"
	"github.com/hyperjump/contentdb/internal/config"
	"github.com/hyperjump/contentdb/internal/contentdb"
	"github.com/hyperjump/contentdb/internal/ingest"
	"github.com/hyperjump/contentdb/internal/models"
	"github.com/hyperjump/contentdb/internal/server"
	"github.com/hyperjump/contentdb/internal/watcher"
	"github.com/hyperjump/contentdb/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/contentdb/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default and config.yaml exists in
// the working directory, that file is used instead. It returns the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
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
	args := argsReorder(os.Args[2:])
	switch command {
	case "server":
		runServer(args)
	case "ingest":
		runIngest(args)
	case "rebuild":
		runRebuild(args)
	case "row":
		runRow(args)
	case "candidates":
		runCandidates(args)
	case "similar":
		runSimilar(args, false)
	case "recommend":
		runSimilar(args, true)
	case "delete":
		runDelete(args)
	case "status":
		runStatus(args)
	case "version", "--version", "-v":
		fmt.Printf("contentdb version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// argsReorder moves flags that follow positional arguments to the front so that
// flag.Parse sees them: "contentdb row 4 -output json" works like "contentdb row -output json 4".
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

// joinArgs joins positional args with spaces so queries work with or without quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// openDB loads the config and opens the database directly, bypassing any server.
func openDB(configPath string, debug bool) (*contentdb.DB, *config.Config, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved))
	db, err := contentdb.Open(context.Background(), cfg, contentdb.WithLogger(logger))
	if err != nil {
		fatalf("Failed to open database: %v", err)
	}
	return db, cfg, logger
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	db, cfg, logger := openDB(*configPath, *debug)
	defer logger.Sync()
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var watch server.WatchService
	if len(cfg.Watch.Directories) > 0 {
		ing := ingest.New(db, cfg.Watch.Extensions,
			ingest.WithLogger(logger), ingest.WithIDField(cfg.Matrix.IDField))
		w := watcher.New(cfg.Watch.Directories, cfg.Watch.RecursiveOrDefault(), ing, watcher.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
		w.SyncExisting()
		if _, err := db.Rebuild(ctx); err != nil {
			logger.Warn("rebuild after sync failed", zap.Error(err))
		}
		watch = w
	}

	srv := server.NewServer(db, &cfg.Server, logger, watch)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	_ = srv.Stop(shutdownCtx)
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	recursive := fs.Bool("recursive", true, "descend into subdirectories")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		fatalf("Usage: contentdb ingest [flags] <file|dir>...")
	}

	db, cfg, logger := openDB(*configPath, *debug)
	defer logger.Sync()
	defer db.Close()

	ctx := context.Background()
	ing := ingest.New(db, cfg.Watch.Extensions,
		ingest.WithLogger(logger), ingest.WithIDField(cfg.Matrix.IDField))
	total := 0
	for _, path := range fs.Args() {
		info, err := os.Stat(path)
		if err != nil {
			fatalf("Failed to read %s: %v", path, err)
		}
		var n int
		if info.IsDir() {
			n, err = ing.IngestDirectory(ctx, path, *recursive)
		} else {
			n, err = ing.IngestFile(ctx, path)
		}
		if err != nil {
			fatalf("Ingest failed for %s: %v", path, err)
		}
		total += n
	}
	if _, err := db.Rebuild(ctx); err != nil {
		fatalf("Rebuild failed: %v", err)
	}
	fmt.Printf("Ingested %d entities\n", total)
}

func runRebuild(args []string) {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the database directly)")
	_ = fs.Parse(args)

	if *serverURL != "" {
		var out struct {
			Entities int `json:"entities"`
		}
		if err := callServer(http.MethodPost, *serverURL+"/api/v1/rebuild", nil, &out); err != nil {
			fatalf("Rebuild failed: %v", err)
		}
		fmt.Printf("Rebuilt matrix over %d entities\n", out.Entities)
		return
	}
	db, _, logger := openDB(*configPath, false)
	defer logger.Sync()
	defer db.Close()
	n, err := db.Rebuild(context.Background())
	if err != nil {
		fatalf("Rebuild failed: %v", err)
	}
	info := db.Info()
	fmt.Printf("Rebuilt %d x %d matrix over %d entities\n", info.Rows, info.Cols, n)
}

// commonFlags registers the flags shared by the query commands.
func commonFlags(fs *flag.FlagSet) (configPath, serverURL, output *string) {
	configPath = fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL = fs.String("server", defaultServerURL, "server URL (empty = open the database directly)")
	output = fs.String("output", "text", "output format: text or json")
	return
}

func parseID(fs *flag.FlagSet, usage string) int {
	if fs.NArg() != 1 {
		fatalf("Usage: %s", usage)
	}
	id, err := strconv.Atoi(fs.Arg(0))
	if err != nil {
		fatalf("Invalid id %q", fs.Arg(0))
	}
	return id
}

func outputFormat(s string) cli.OutputFormat {
	f, err := cli.ParseOutputFormat(s)
	if err != nil {
		fatalf("%v", err)
	}
	return f
}

func runRow(args []string) {
	fs := flag.NewFlagSet("row", flag.ExitOnError)
	configPath, serverURL, output := commonFlags(fs)
	_ = fs.Parse(args)
	id := parseID(fs, "contentdb row [flags] <id>")
	format := outputFormat(*output)

	var row models.RowResponse
	if *serverURL != "" {
		if err := callServer(http.MethodGet, fmt.Sprintf("%s/api/v1/rows/%d", *serverURL, id), nil, &row); err != nil {
			fatalf("Row failed: %v", err)
		}
	} else {
		db, _, logger := openDB(*configPath, false)
		defer logger.Sync()
		defer db.Close()
		resp, err := db.Row(context.Background(), id)
		if err != nil {
			fatalf("Row failed: %v", err)
		}
		row = *resp
	}
	if err := cli.WriteRow(os.Stdout, &row, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// parsePoint parses "lat,lon".
func parsePoint(s string) (*models.GeoPoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("expected lat,lon, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude: %w", err)
	}
	p := &models.GeoPoint{Lat: lat, Lon: lon}
	return p, p.Validate()
}

func runCandidates(args []string) {
	fs := flag.NewFlagSet("candidates", flag.ExitOnError)
	configPath, serverURL, output := commonFlags(fs)
	field := fs.String("field", "", "field for a keyword query")
	limit := fs.Int("limit", 0, "maximum number of ids (0 = configured default)")
	offset := fs.Int("offset", 0, "number of ids to skip")
	near := fs.String("near", "", "restrict to a radius around lat,lon")
	radius := fs.Float64("radius", 0, "radius in km for --near")
	_ = fs.Parse(args)
	format := outputFormat(*output)

	text := joinArgs(fs.Args())
	q := &models.CandidateQuery{Limit: *limit, Offset: *offset}
	if *field != "" {
		q.Field, q.Keyword = *field, text
	} else {
		q.Query = text
	}
	if *near != "" {
		p, err := parsePoint(*near)
		if err != nil {
			fatalf("Invalid --near: %v", err)
		}
		q.Near, q.RadiusKm = p, *radius
	}

	var resp models.CandidatesResponse
	if *serverURL != "" {
		if err := callServer(http.MethodPost, *serverURL+"/api/v1/candidates", q, &resp); err != nil {
			fatalf("Candidates failed: %v", err)
		}
	} else {
		db, _, logger := openDB(*configPath, false)
		defer logger.Sync()
		defer db.Close()
		r, err := db.Candidates(context.Background(), q)
		if err != nil {
			fatalf("Candidates failed: %v", err)
		}
		resp = *r
	}
	if err := cli.WriteCandidates(os.Stdout, &resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// runSimilar serves both similar and recommend; recommend may restrict candidates with --query.
func runSimilar(args []string, recommend bool) {
	name := "similar"
	if recommend {
		name = "recommend"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath, serverURL, output := commonFlags(fs)
	limit := fs.Int("limit", 0, "number of results (0 = configured default)")
	query := fs.String("query", "", "candidate query (recommend only)")
	_ = fs.Parse(args)
	id := parseID(fs, fmt.Sprintf("contentdb %s [flags] <id>", name))
	format := outputFormat(*output)

	var resp models.SimilarResponse
	if *serverURL != "" {
		params := url.Values{}
		if *limit > 0 {
			params.Set("limit", strconv.Itoa(*limit))
		}
		if recommend && *query != "" {
			params.Set("q", *query)
		}
		u := fmt.Sprintf("%s/api/v1/%s/%d", *serverURL, name, id)
		if len(params) > 0 {
			u += "?" + params.Encode()
		}
		if err := callServer(http.MethodGet, u, nil, &resp); err != nil {
			fatalf("%s failed: %v", name, err)
		}
	} else {
		db, _, logger := openDB(*configPath, false)
		defer logger.Sync()
		defer db.Close()
		var (
			r   *models.SimilarResponse
			err error
		)
		if recommend {
			var q *models.CandidateQuery
			if *query != "" {
				q = &models.CandidateQuery{Query: *query}
			}
			r, err = db.Recommend(context.Background(), id, q, *limit)
		} else {
			r, err = db.Similar(context.Background(), id, *limit)
		}
		if err != nil {
			fatalf("%s failed: %v", name, err)
		}
		resp = *r
	}
	if err := cli.WriteSimilar(os.Stdout, &resp, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the database directly)")
	_ = fs.Parse(args)
	id := parseID(fs, "contentdb delete [flags] <id>")

	if *serverURL != "" {
		if err := callServer(http.MethodDelete, fmt.Sprintf("%s/api/v1/entities/%d", *serverURL, id), nil, nil); err != nil {
			fatalf("Delete failed: %v", err)
		}
	} else {
		db, _, logger := openDB(*configPath, false)
		defer logger.Sync()
		defer db.Close()
		if err := db.Delete(context.Background(), id); err != nil {
			fatalf("Delete failed: %v", err)
		}
	}
	fmt.Printf("Deleted entity %d\n", id)
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath, serverURL, output := commonFlags(fs)
	_ = fs.Parse(args)
	format := outputFormat(*output)

	var status models.StatusResponse
	if *serverURL != "" {
		if err := callServer(http.MethodGet, *serverURL+"/api/v1/status", nil, &status); err != nil {
			fatalf("Status failed: %v", err)
		}
	} else {
		db, _, logger := openDB(*configPath, false)
		defer logger.Sync()
		defer db.Close()
		s, err := db.Status(context.Background())
		if err != nil {
			fatalf("Status failed: %v", err)
		}
		status = *s
	}
	if err := cli.WriteStatus(os.Stdout, &status, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

var httpClient = &http.Client{Timeout: 60 * time.Second}

// callServer sends body as JSON and decodes a 2xx response into out when out is non-nil.
func callServer(method, u string, body, out interface{}) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, u, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(b, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func printUsage() {
	fmt.Println(`contentdb - entity content presented as a composite sparse matrix

Usage:
  contentdb server [flags]                 Start the HTTP server and directory watcher
  contentdb ingest [flags] <file|dir>...   Ingest documents and record files, then rebuild
  contentdb rebuild [flags]                Re-index entities and rebuild the matrix
  contentdb row [flags] <id>               Show the non-zero cells of a row
  contentdb candidates [flags] <query>     Find entity ids by query
  contentdb similar [flags] <id>           Entities most like <id>
  contentdb recommend [flags] <id>         Rank candidates by row similarity to <id>
  contentdb delete [flags] <id>            Delete an entity
  contentdb status [flags]                 Show counts and disk usage
  contentdb version                        Show version
  contentdb help                           Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/contentdb/config.yaml)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to open the database directly.
  --output string    Output format: text or json (default: text)

Candidates Flags:
  --field string     Run a keyword query on this field instead of a query-string query
  --limit int        Maximum number of ids
  --offset int       Number of ids to skip
  --near lat,lon     Restrict a keyword query to a radius around a point
  --radius float     Radius in km for --near

Examples:
  contentdb server --debug
  contentdb ingest ./hotels.json ./brochures
  contentdb row 42 --output json
  contentdb candidates --field tags pool
  contentdb candidates "stars:>=4 +tags:spa"
  contentdb candidates --field tags --near 52.52,13.40 --radius 5 pool
  contentdb similar --limit 5 42
  contentdb recommend --query "tags:pool" 42`)
}
