// Package main is the Tansa CLI entry point.
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
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/okibi/tansa/internal/cli"
	"github.com/okibi/tansa/internal/config"
	"github.com/okibi/tansa/internal/engine"
	"github.com/okibi/tansa/internal/models"
	"github.com/okibi/tansa/internal/server"
	"github.com/okibi/tansa/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/tansa/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "tansa server" from the project dir uses the project's
// config. A missing default file falls back to built-in defaults.
// Returns the config and the path that was actually loaded.
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
		if _, statErr := os.Stat(path); statErr != nil {
			cfg, loadErr := config.Load("")
			return cfg, "", loadErr
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
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "query":
		runQuery()
	case "delete":
		runDelete()
	case "reset":
		runReset()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("tansa version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	host := fs.String("host", "", "bind host (overrides config)")
	port := fs.Int("port", 0, "bind port (overrides config)")
	dataDir := fs.String("data-dir", "", "data directory (overrides config)")
	debug := fs.Bool("debug", false, "enable debug logging (per-request and per-mutation detail)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.Bool("debug", debugMode),
	)

	eng, err := engine.Open(cfg.Storage.DataDir, engine.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to open engine", zap.Error(err))
	}
	defer eng.Close()

	srv := server.NewServer(eng, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	file := fs.String("f", "", "document JSON file (default: stdin)")
	docID := fs.String("id", "", "document id (overrides the file's id; generated when absent)")
	_ = fs.Parse(os.Args[2:])

	data, err := readInput(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read input: %v\n", err)
		os.Exit(1)
	}
	var req models.IngestRequest
	if err := json.Unmarshal(data, &req); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid document JSON: %v\n", err)
		os.Exit(1)
	}
	if *docID != "" {
		req.ID = *docID
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	var resp models.IngestResponse
	if err := postJSON(*serverURL, "/api/v1/ingest", &req, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Ingested %d chunk(s) into %s\n", resp.ChunksIngested, req.ID)
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	file := fs.String("f", "", "query JSON file with an embedding array (default: stdin)")
	topK := fs.Int("k", 0, "number of documents to return (0 = server default)")
	outputFormat := fs.String("format", "text", "output format: text (human-readable) or json (parseable)")
	_ = fs.Parse(os.Args[2:])

	format := cli.OutputText
	switch *outputFormat {
	case "json":
		format = cli.OutputJSON
	case "text":
		format = cli.OutputText
	default:
		fmt.Printf("Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}

	data, err := readInput(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read input: %v\n", err)
		os.Exit(1)
	}
	req, err := parseQueryInput(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid query JSON: %v\n", err)
		os.Exit(1)
	}
	if *topK != 0 {
		req.TopK = topK
	}

	var resp models.QueryResponse
	if err := postJSON(*serverURL, "/api/v1/query", &req, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteQueryResults(os.Stdout, &resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// parseQueryInput accepts either a full query object or a bare JSON array
// of numbers, which is treated as the embedding.
func parseQueryInput(data []byte) (models.QueryRequest, error) {
	var req models.QueryRequest
	if err := json.Unmarshal(data, &req); err == nil && len(req.Embedding) > 0 {
		return req, nil
	}
	var embedding []float32
	if err := json.Unmarshal(data, &embedding); err != nil {
		return models.QueryRequest{}, fmt.Errorf("expected a query object or an embedding array")
	}
	return models.QueryRequest{Embedding: embedding}, nil
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: tansa delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	var resp models.DeleteResponse
	if err := postJSON(*serverURL, "/api/v1/delete", models.DeleteRequest{ID: docID}, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d chunk(s) of %s\n", resp.ChunksDeleted, docID)
}

func runReset() {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	yes := fs.Bool("yes", false, "confirm destroying all stored documents")
	_ = fs.Parse(os.Args[2:])

	if !*yes {
		fmt.Println("Reset destroys every stored document. Re-run with -yes to confirm.")
		os.Exit(1)
	}

	var resp models.ResetResponse
	if err := postJSON(*serverURL, "/api/v1/reset", struct{}{}, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Reset failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Engine reset")
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var stats models.EngineStats
	if err := getJSON(*serverURL, "/api/v1/status", &stats); err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("documents:        %d   # count of stored documents\n", stats.Documents)
		fmt.Printf("chunks:           %d   # count of stored chunks\n", stats.Chunks)
		fmt.Printf("indexed_vectors:  %d   # count of vectors in the index\n", stats.IndexedVectors)
		if stats.Dim != nil {
			fmt.Printf("dim:              %d   # fixed embedding dimension\n", *stats.Dim)
		} else {
			fmt.Printf("dim:              unset   # fixed by the first ingest\n")
		}
		fmt.Printf("disk_bytes:       %d   # data directory on disk\n", stats.DiskBytes)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// readInput reads the whole file, or stdin when path is empty or "-".
func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func postJSON(serverURL, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := http.Post(serverURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func getJSON(serverURL, path string, out interface{}) error {
	resp, err := http.Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func printUsage() {
	fmt.Println(`tansa - Persistent embedding similarity search engine

Usage:
  tansa server [flags]            Start the HTTP server
  tansa ingest [flags]            Ingest a document (JSON from file or stdin)
  tansa query [flags]             Query by embedding (JSON from file or stdin)
  tansa delete [flags] <id>       Delete a document
  tansa reset [flags]             Destroy all stored documents
  tansa status [flags]            Show engine status
  tansa version                   Show version
  tansa help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/tansa/config.yaml)
  --host string      Bind host (overrides config)
  --port int         Bind port (overrides config)
  --data-dir string  Data directory (overrides config)
  --debug            Enable debug logging

Ingest Flags:
  --server string    Server URL (default: http://localhost:8080)
  --f string         Document JSON file: {"id", "metadata", "chunks": [{"chunk_index", "text", "embedding"}]} (default: stdin)
  --id string        Document id; overrides the file's id, generated when absent

Query Flags:
  --server string    Server URL (default: http://localhost:8080)
  --f string         Query JSON: {"embedding": [...], "top_k": n} or a bare array (default: stdin)
  --k int            Number of documents to return (0 = server default)
  --format string    Output format: text or json (default: text)

Delete/Reset/Status Flags:
  --server string    Server URL (default: http://localhost:8080)
  --yes              (reset) confirm destroying all stored documents
  --output string    (status) output format: text or json (default: text)

Examples:
  tansa server --port 9000
  tansa ingest -f document.json
  cat document.json | tansa ingest --id mail-123
  tansa query -f embedding.json -k 5
  tansa query -f embedding.json --format json
  tansa delete mail-123
  tansa reset -yes
  tansa status --output json`)
}
