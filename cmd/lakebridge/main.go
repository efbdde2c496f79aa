// Command lakebridge starts an MCP server exposing data-lake SQL queries
// and Slack messaging as tools for AI agents.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/lakebridge/lakebridge/internal/athena"
	"github.com/lakebridge/lakebridge/internal/chat"
	"github.com/lakebridge/lakebridge/internal/mcp"
	"github.com/lakebridge/lakebridge/internal/resolver"
)

var build = "dev"

// secrets defines the names of the supported secret files that we load our
// secrets from.  Inexperienced windows users might have bad experience trying
// to create .env file with the notepad as it will battle for having the
// "txt" extension.  Let it have it.
var secrets = []string{".env", ".env.txt", "secrets.txt"}

// params is the command line parameters.
type params struct {
	transport    string
	listenAddr   string
	verbose      bool
	printVersion bool
}

func main() {
	loadSecrets(secrets)

	p, err := parseCmdLine(os.Args[1:])
	if err != nil {
		slog.Error("invalid parameters", "error", err)
		os.Exit(2)
	}
	if p.printVersion {
		fmt.Println(build)
		return
	}
	initLog(p.verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, p); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, p params) error {
	lg := slog.Default()

	res := resolver.New(resolver.FromEnv())
	cfg := res.Config()

	opts := []mcp.Option{mcp.WithLogger(lg)}

	// Each backend is optional: an unconfigured one leaves its tools
	// registered but reporting a configuration error, so the server is
	// usable with only the query side or only the messaging side set up.
	if cfg.OutputLocation != "" || cfg.DefaultCatalog != "" {
		awsCfg, err := res.AWSConfig(ctx)
		if err != nil {
			return fmt.Errorf("aws configuration: %w", err)
		}
		client := athena.NewClient(awsCfg)
		opts = append(opts,
			mcp.WithExecutor(athena.NewExecutor(client, lg)),
			mcp.WithCatalog(client),
		)
		lg.InfoContext(ctx, "query backend enabled",
			"data_catalog", cfg.DataCatalog,
			"catalog", cfg.DefaultCatalog,
			"workgroup", cfg.Workgroup,
		)
	} else {
		lg.InfoContext(ctx, "query backend disabled: no ATHENA_OUTPUT_LOCATION or ATHENA_DATABASE set")
	}

	if cl, err := res.SlackClient(); err == nil {
		svc := chat.New(cl, res, lg)
		if id, err := svc.Identity(ctx); err != nil {
			lg.WarnContext(ctx, "messaging auth check failed", "error", err)
		} else {
			lg.InfoContext(ctx, "messaging backend enabled", "team", id.Team, "user", id.User)
		}
		opts = append(opts, mcp.WithMessenger(svc))
	} else {
		lg.InfoContext(ctx, "messaging backend disabled: no SLACK_BOT_TOKEN set")
	}

	srv := mcp.New(res, opts...)

	switch strings.ToLower(p.transport) {
	case "stdio", "":
		return srv.ServeStdio(ctx)
	case "http":
		lg.InfoContext(ctx, "http transport", "addr", p.listenAddr)
		return srv.ServeHTTP(ctx, p.listenAddr)
	default:
		return fmt.Errorf("unknown transport %q (supported: stdio, http)", p.transport)
	}
}

// loadSecrets load secrets from the files in secrets slice.
func loadSecrets(files []string) {
	for _, f := range files {
		godotenv.Load(f)
	}
}

// initLog sets up the default logger.  Logs go to stderr: stdout belongs to
// the stdio MCP transport.
func initLog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// parseCmdLine parses the command line arguments.
func parseCmdLine(args []string) (params, error) {
	fs := flag.NewFlagSet("lakebridge", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(
			fs.Output(),
			"Lakebridge, %s\n"+
				"MCP server exposing data-lake SQL queries and Slack messaging as agent tools.\n\n"+
				"Usage:  %s [flags]\n\n",
			build, filepath.Base(os.Args[0]))
		fs.PrintDefaults()
	}

	var p params
	fs.StringVar(&p.transport, "transport", "stdio", "MCP transport: \"stdio\" or \"http\"")
	fs.StringVar(&p.listenAddr, "listen", "127.0.0.1:8483", "address to listen on when -transport=http")
	fs.BoolVar(&p.verbose, "verbose", false, "enable debug logging")
	fs.BoolVar(&p.printVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return p, err
	}
	return p, nil
}
