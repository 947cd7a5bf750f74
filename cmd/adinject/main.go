// Command adinject serves the placement injection engine over HTTP and MCP,
// or runs a single pass over a document read from a file or stdin.
//
// Usage:
//
//	adinject -config adinject.yaml                    # serve HTTP
//	adinject -db adinject.db -mcp-stdio               # serve MCP on stdio
//	adinject -db adinject.db -put ads -in ads.json    # store a config blob
//	adinject -db adinject.db -render prefill -in page.html -targeting page.json
//	adinject -db adinject.db -render outstream -in post.html -playspace <uuid>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/adinject/audit"
	"github.com/hazyhaar/adinject/configstore"
	"github.com/hazyhaar/adinject/dbopen"
	"github.com/hazyhaar/adinject/kit"
	"github.com/hazyhaar/adinject/render"
	"github.com/hazyhaar/adinject/targeting"
)

type options struct {
	configPath string
	dbPath     string
	listen     string
	mcpStdio   bool
	put        string
	mode       string
	in         string
	targeting  string
	family     string
	playspace  string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to adinject.yaml config file")
	flag.StringVar(&o.dbPath, "db", "", "path to SQLite database (overrides config)")
	flag.StringVar(&o.listen, "listen", "", "HTTP listen address (overrides config)")
	flag.BoolVar(&o.mcpStdio, "mcp-stdio", false, "serve MCP tools on stdin/stdout instead of HTTP")
	flag.StringVar(&o.put, "put", "", "store the -in file as the blob of this config family and exit")
	flag.StringVar(&o.mode, "render", "", "one-shot pass: prefill, amp, ads, fbia, outstream or blocked")
	flag.StringVar(&o.in, "in", "-", "input file for -put and -render, - for stdin")
	flag.StringVar(&o.targeting, "targeting", "", "JSON file with the page targeting context")
	flag.StringVar(&o.family, "family", "", "fragment family of -render ads: prefill, amp or fbia")
	flag.StringVar(&o.playspace, "playspace", "", "video playspace id for -render outstream")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("adinject: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg, err := resolveConfig(o)
	if err != nil {
		return err
	}

	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	store := configstore.New(db)
	if err := store.Init(ctx); err != nil {
		return err
	}
	holder := configstore.NewHolder(store, logger)

	if o.put != "" {
		raw, err := readInput(o.in)
		if err != nil {
			return err
		}
		b, err := holder.Put(ctx, configstore.Family(o.put), raw)
		if err != nil {
			return err
		}
		logger.Info("adinject: config stored", "family", b.Family, "generation", b.Generation, "bytes", len(raw))
		return nil
	}

	if err := holder.Refresh(ctx); err != nil {
		return err
	}

	if o.mode != "" {
		svc := render.NewService(render.NewEngine(cfg, logger), holder, logger)
		return renderOnce(ctx, svc, o)
	}

	al := audit.NewSQLiteLogger(db, audit.WithLogger(logger))
	defer al.Close()
	if err := al.Init(); err != nil {
		return err
	}
	if n, err := al.Cleanup(ctx, cfg.AuditRetention); err != nil {
		logger.Warn("adinject: audit cleanup", "error", err)
	} else if n > 0 {
		logger.Info("adinject: audit cleanup", "deleted", n)
	}
	svc := render.NewService(render.NewEngine(cfg, logger), holder, logger, render.WithAudit(al))

	go holder.Run(ctx, cfg.RefreshInterval)

	if o.mcpStdio {
		srv := mcp.NewServer(&mcp.Implementation{Name: "adinject", Version: "1.0.0"}, nil)
		svc.RegisterMCP(srv)
		logger.Info("adinject: mcp on stdio", "db", cfg.DBPath)
		if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           svc.Routes(),
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("adinject: listening", "addr", cfg.Listen, "db", cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}
	logger.Info("adinject: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// renderOnce runs one pass and writes the document to stdout. The report
// goes to stderr.
func renderOnce(ctx context.Context, svc *render.Service, o options) error {
	ctx = kit.WithTransport(ctx, "cli")
	in, err := readInput(o.in)
	if err != nil {
		return err
	}
	var tc targeting.Context
	if o.targeting != "" {
		data, err := os.ReadFile(o.targeting)
		if err != nil {
			return fmt.Errorf("targeting: %w", err)
		}
		if err := json.Unmarshal(data, &tc); err != nil {
			return fmt.Errorf("targeting: %w", err)
		}
	}

	if o.mode == "outstream" {
		out, added, err := svc.Engine().Outstream(string(in), o.playspace, tc)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "{\"added\":%t}\n", added)
		_, err = io.WriteString(os.Stdout, out)
		return err
	}

	var ep kit.Endpoint
	var req any = &render.PageRequest{HTML: string(in), Targeting: tc, Family: o.family}
	switch o.mode {
	case "prefill":
		ep = svc.PrefillEndpoint()
	case "amp":
		ep = svc.AMPEndpoint()
	case "ads":
		ep = svc.AdsEndpoint()
	case "fbia":
		ep = svc.FbiaEndpoint()
	case "blocked":
		ep, req = svc.BlockedEndpoint(), &render.BlockedRequest{Targeting: tc}
	default:
		return fmt.Errorf("unknown -render mode %q", o.mode)
	}

	resp, err := ep(ctx, req)
	if err != nil {
		return err
	}
	page, ok := resp.(*render.PageResponse)
	if !ok {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	if err := json.NewEncoder(os.Stderr).Encode(page.Report); err != nil {
		return err
	}
	_, err = io.WriteString(os.Stdout, page.HTML)
	return err
}

func resolveConfig(o options) (*render.Config, error) {
	cfg := &render.Config{}
	if o.configPath != "" {
		loaded, err := render.LoadConfigFile(o.configPath)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		cfg = loaded
	}
	if o.dbPath != "" {
		cfg.DBPath = o.dbPath
	}
	if o.listen != "" {
		cfg.Listen = o.listen
	}
	c := cfg.Defaults()
	return &c, nil
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
