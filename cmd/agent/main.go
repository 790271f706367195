package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"weatherdine/internal/infra/config"
	"weatherdine/internal/infra/logger"
	"weatherdine/internal/infra/tracer"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "--help", "-h", "help":
		showUsage()
		return
	case "version", "--version":
		fmt.Println("weatherdine", version)
		return
	case "agents":
		err = runAgents(args)
	case "chat":
		err = runChat(args)
	case "workflow":
		err = runWorkflow(args)
	case "tool":
		err = runTool(args)
	case "serve":
		err = runServe(args)
	case "mcp":
		err = runMCP(args)
	case "encrypt":
		err = runEncrypt(args)
	case "doctor":
		err = runDoctor()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'weatherdine --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`weatherdine - weather-aware dining and activity agents

USAGE:
    weatherdine COMMAND [FLAGS] [ARGS]

COMMANDS:
    agents      List agents and collections
    chat        Talk to an agent
                Flags: --agent ID, --thread ID, --plain
    workflow    Run and inspect workflows
                Subcommands: run ID --input JSON, list, runs [--limit N]
    tool        Call a tool directly: tool NAME [JSON]
    serve       Run the gateway and scheduler until interrupted
    mcp         Serve the tools over MCP on stdin/stdout
    encrypt     Encrypt a secret for config.yaml (needs WEATHERDINE_CONFIG_KEY)
    doctor      Run health checks on your setup
    version     Print the version

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml (or WEATHERDINE_CONFIG)
    Environment: WEATHERDINE_* variables override config

EXAMPLES:
    weatherdine chat --agent restaurant "Where should I eat in Lisbon tonight?"
    weatherdine workflow run restaurant-workflow --input '{"location":"Lisbon"}'
    weatherdine tool get-weather '{"location":"Oslo"}'
    weatherdine serve --config /etc/weatherdine/config.yaml`)
}

// configPath returns the config file from --config, WEATHERDINE_CONFIG, or
// the default.
func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("WEATHERDINE_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// newFlagSet returns a flag set for a subcommand. --config is accepted so it
// can appear anywhere; configPath reads it from os.Args.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.String("config", "", "config file path")
	return fs
}

// bootOptions tweak startup for a single command.
type bootOptions struct {
	agents bool                 // build the LLM-backed catalog and workflows
	adjust func(*config.Config) // applied after loading, before the logger
}

// boot loads config, starts logging and tracing, and wires the app. The
// returned cleanup must be called once the command is done.
func boot(ctx context.Context, opts bootOptions) (*app, func(), error) {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if opts.adjust != nil {
		opts.adjust(cfg)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		logCloser()
		return nil, nil, fmt.Errorf("tracer: %w", err)
	}

	// 3. Data sources, tools, storage
	a, err := newApp(cfg, log)
	if err != nil {
		tracerShutdown(ctx)
		logCloser()
		return nil, nil, err
	}

	// 4. Agents and workflows
	if opts.agents {
		if err := a.initAgents(); err != nil {
			a.Close()
			tracerShutdown(ctx)
			logCloser()
			return nil, nil, err
		}
	}

	cleanup := func() {
		a.Close()
		if err := tracerShutdown(context.Background()); err != nil {
			log.Warn("tracer shutdown", "error", err)
		}
		logCloser()
	}
	return a, cleanup, nil
}
