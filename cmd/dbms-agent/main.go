// Package main provides the dbms-agent CLI.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/txn2/dbms-agent/internal/server"
	"github.com/txn2/dbms-agent/pkg/agent"
	"github.com/txn2/dbms-agent/pkg/health"
	"github.com/txn2/dbms-agent/pkg/result"
	"github.com/txn2/dbms-agent/pkg/schema"
)

// Version is set at build time.
var Version = "dev"

// Command represents a CLI command.
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args []string) error
}

func main() {
	commands := map[string]*Command{
		"ask": {
			Name:        "ask",
			Description: "Answer a natural-language question about the database",
			Run:         askCmd,
		},
		"schema": {
			Name:        "schema",
			Description: "Show the discovered catalog, optionally embedding it",
			Run:         schemaCmd,
		},
		"serve": {
			Name:        "serve",
			Description: "Serve the agent over MCP (stdio or HTTP)",
			Run:         serveCmd,
		},
		"version": {
			Name:        "version",
			Description: "Show version information",
			Run:         versionCmd,
		},
	}

	if len(os.Args) < 2 {
		printUsage(commands)
		os.Exit(0)
	}

	cmdName := os.Args[1]
	if cmdName == "help" || cmdName == "-h" || cmdName == "--help" {
		printUsage(commands)
		os.Exit(0)
	}

	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmdName)
		printUsage(commands)
		os.Exit(1)
	}

	if err := cmd.Run(setupSignalHandler(), os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(commands map[string]*Command) {
	fmt.Println("dbms-agent - natural-language database agent")
	fmt.Println()
	fmt.Println("Usage: dbms-agent <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, name := range []string{"ask", "schema", "serve", "version"} {
		if c, ok := commands[name]; ok {
			fmt.Printf("  %-10s %s\n", c.Name, c.Description)
		}
	}
	fmt.Println()
	fmt.Println("Run 'dbms-agent <command> -h' for help on a specific command.")
}

func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

// setupFlags registers the flags shared by every command.
func setupFlags(fs *flag.FlagSet) (configPath *string, verbose *bool) {
	configPath = fs.String("config", "", "Path to configuration file")
	verbose = fs.Bool("v", false, "Verbose logging")
	return configPath, verbose
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func createAgent(ctx context.Context, configPath string) (*agent.Agent, error) {
	cfg, err := agent.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return agent.New(ctx, cfg)
}

// askCmd answers a single question and prints the result.
func askCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath, verbose := setupFlags(fs)
	asJSON := fs.Bool("json", false, "Print the full response as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setupLogging(*verbose)

	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return fmt.Errorf("usage: dbms-agent ask [options] <question>")
	}

	a, err := createAgent(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}
	defer func() { _ = a.Close() }()

	resp := a.Answer(ctx, question)

	if *asJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding response: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Println(resp.Markdown)
	if resp.SQL != "" {
		fmt.Printf("\nSQL: %s\n", resp.SQL)
	}
	fmt.Printf("Backend: %s\n", resp.Mode)
	if resp.Error != "" {
		fmt.Printf("Error: %s\n", resp.Error)
	}
	return nil
}

// schemaCmd prints the discovered catalog. With -embed it also writes
// object embeddings to the local database.
func schemaCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("schema", flag.ExitOnError)
	configPath, verbose := setupFlags(fs)
	asJSON := fs.Bool("json", false, "Print the catalog as JSON")
	embed := fs.Bool("embed", false, "Embed the catalog into the local database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setupLogging(*verbose)

	cfg, err := agent.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	a, err := agent.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}
	defer func() { _ = a.Close() }()

	catalog := a.Catalog(ctx)
	if len(catalog) == 0 {
		fmt.Println("Schema is empty or unavailable.")
		return nil
	}

	if *asJSON {
		data, err := json.MarshalIndent(catalog, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding catalog: %w", err)
		}
		fmt.Println(string(data))
	} else {
		rows := make([][]string, 0, len(catalog))
		for _, obj := range catalog {
			rows = append(rows, []string{obj.Name, obj.Type, strings.Join(obj.Columns, ", ")})
		}
		fmt.Println(result.RenderObjectTable([]string{"Object", "Type", "Columns"}, rows))
	}

	if *embed {
		return embedCatalog(ctx, a, cfg, catalog)
	}
	return nil
}

// embedCatalog migrates the embedding store and writes one embedding per
// catalog object.
func embedCatalog(ctx context.Context, a *agent.Agent, cfg *agent.Config, catalog []schema.Object) error {
	local := a.Local()
	if local == nil {
		return fmt.Errorf("embedding requires a local database connection")
	}
	if err := schema.Migrate(local.DB()); err != nil {
		return fmt.Errorf("migrating embedding store: %w", err)
	}

	embedder, err := schema.NewEmbedder(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	store := schema.NewStore(local.DB())
	if err := embedder.EmbedCatalog(ctx, store, catalog); err != nil {
		return fmt.Errorf("embedding catalog: %w", err)
	}
	slog.Info("catalog embedded", "objects", len(catalog))
	return nil
}

// serveCmd runs the MCP server over the selected transport.
func serveCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath, verbose := setupFlags(fs)
	transport := fs.String("transport", "stdio", "Transport type: stdio, http")
	address := fs.String("address", ":8080", "Server address for HTTP transport")
	if err := fs.Parse(args); err != nil {
		return err
	}
	setupLogging(*verbose)

	a, err := createAgent(ctx, *configPath)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}
	defer func() { _ = a.Close() }()

	srv := server.New(a, Version)

	switch *transport {
	case "stdio":
		return srv.Run(ctx)
	case "http":
		return serveHTTP(ctx, srv, a, *address)
	default:
		return fmt.Errorf("unknown transport: %s", *transport)
	}
}

// serveHTTP mounts the MCP handler alongside health endpoints and shuts
// down cleanly on context cancellation.
func serveHTTP(ctx context.Context, srv *server.Server, a *agent.Agent, address string) error {
	checker := health.NewChecker()
	checker.SetMode(a.Mode().String())

	mux := http.NewServeMux()
	mux.Handle("/mcp", srv.HTTPHandler())
	mux.HandleFunc("/healthz", checker.LivenessHandler())
	mux.HandleFunc("/readyz", checker.ReadinessHandler())

	httpServer := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving MCP over HTTP", "address", address, "mode", a.Mode().String())
		errCh <- httpServer.ListenAndServe()
	}()
	checker.SetReady()

	select {
	case <-ctx.Done():
		checker.SetDraining()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	}
}

func versionCmd(_ context.Context, _ []string) error {
	fmt.Printf("dbms-agent version %s\n", Version)
	return nil
}
