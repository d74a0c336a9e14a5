// Libula generates children's stories with a hosted assistant, stores
// them in Supabase, and narrates them to MP3.
//
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	libula new -user <id> -character <id> -type <id> [-lang de] [-side 1,2]
//	libula continue -user <id> -suggestion <id> -parent <id> [-lang de]
//	libula audio -user <id> -story <id> [-voice nova]
//	libula usage [-since 24h] [-by workflow|user] [-request <id>]
//	libula credit -user <id> [-set <balance>]
//	libula version
//	libula -o json <command>
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nugget/libula/internal/buildinfo"
	"github.com/nugget/libula/internal/config"
)

func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Logs go to stderr so stdout carries
// only command results.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	// Manual parsing keeps run free of flag package globals so tests
	// can call it concurrently.
	var configPath string
	var outputFmt string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}
	out := output{w: stdout, format: outputFmt}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch command {
	case "new":
		return runNew(ctx, out, stderr, configPath, cmdArgs)
	case "continue":
		return runContinue(ctx, out, stderr, configPath, cmdArgs)
	case "audio":
		return runAudio(ctx, out, stderr, configPath, cmdArgs)
	case "usage":
		return runUsage(ctx, out, stderr, configPath, cmdArgs)
	case "credit":
		return runCredit(ctx, out, stderr, configPath, cmdArgs)
	case "version":
		return runVersion(out)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// output writes command results as text or JSON.
type output struct {
	w      io.Writer
	format string
}

// print writes v as indented JSON, or calls text for the text format.
func (o output) print(v any, text func(w io.Writer)) error {
	if o.format == "json" {
		enc := json.NewEncoder(o.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(o.w)
	return nil
}

func runVersion(out output) error {
	info := buildinfo.BuildInfo()
	return out.print(info, func(w io.Writer) {
		fmt.Fprintln(w, buildinfo.String())
		for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
			if v, ok := info[k]; ok {
				fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
			}
		}
	})
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Libula - story generation and narration")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: libula [flags] <command> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  new          Generate a new story")
	fmt.Fprintln(w, "               -user <id> -character <id> -type <id> [-lang de] [-side 1,2] [-token <jwt>]")
	fmt.Fprintln(w, "  continue     Continue a story from one of its suggestions")
	fmt.Fprintln(w, "               -user <id> -suggestion <id> -parent <id> [-lang de] [-token <jwt>]")
	fmt.Fprintln(w, "  audio        Narrate a story to MP3")
	fmt.Fprintln(w, "               -user <id> -story <id> [-voice nova] [-token <jwt>]")
	fmt.Fprintln(w, "  usage        Summarize recorded workflow runs")
	fmt.Fprintln(w, "               [-since 24h] [-by workflow|user] [-request <id>]")
	fmt.Fprintln(w, "  credit       Show or set a user's credit balance")
	fmt.Fprintln(w, "               -user <id> [-set <balance>]")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	for _, p := range config.DefaultSearchPaths() {
		fmt.Fprintf(w, "  %s\n", p)
	}
	return nil
}

// newLogger creates a logger writing to w at level in the given format
// ("text" or "json").
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig finds, loads, and validates the config file. It returns
// the path it loaded from.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// setup loads the config and builds the logger every command uses.
func setup(stderr io.Writer, configPath string) (*config.Config, *slog.Logger, error) {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := newLogger(stderr, level, cfg.LogFormat)
	logger.Debug("config loaded", "path", cfgPath)
	return cfg, logger, nil
}
