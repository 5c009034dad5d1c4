// Command natal computes a natal chart from a birth event on the command
// line. It wires the full pipeline: configuration, reference bundle,
// engines, time preparation and the optional trace store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Orrery-Labs/natal/core/pkg/astrotime"
	"github.com/Orrery-Labs/natal/core/pkg/config"
	"github.com/Orrery-Labs/natal/core/pkg/contracts"
	"github.com/Orrery-Labs/natal/core/pkg/engine"
	"github.com/Orrery-Labs/natal/core/pkg/ephemeris"
	"github.com/Orrery-Labs/natal/core/pkg/natal"
	"github.com/Orrery-Labs/natal/core/pkg/observability"
	"github.com/Orrery-Labs/natal/core/pkg/reference"
	"github.com/Orrery-Labs/natal/core/pkg/trace"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	switch args[1] {
	case "compute":
		return runCompute(args[2:], stdout, stderr, logger)
	case "bootstrap":
		return runBootstrap(stdout, logger)
	case "trace":
		return runTrace(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: natal <compute|bootstrap|trace> [flags]")
}

func runCompute(args []string, stdout, stderr io.Writer, logger *slog.Logger) int {
	fs := flag.NewFlagSet("compute", flag.ContinueOnError)
	fs.SetOutput(stderr)
	inputPath := fs.String("input", "-", "birth input JSON file, - for stdin")
	accurate := fs.Bool("accurate", false, "use the swiss engine")
	zodiac := fs.String("zodiac", "tropical", "tropical or sidereal")
	ayanamsa := fs.String("ayanamsa", "", "ayanamsa for the sidereal zodiac")
	frame := fs.String("frame", "geocentric", "geocentric or topocentric")
	altitude := fs.Float64("altitude", 0, "observer altitude in meters (topocentric)")
	houses := fs.String("houses", "placidus", "placidus, equal or whole_sign")
	school := fs.String("school", "modern", "aspect school")
	userID := fs.String("user", "", "user id for trace persistence")
	traceDB := fs.String("trace-db", "", "sqlite path for trace persistence")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	raw, err := readInput(*inputPath)
	if err != nil {
		fmt.Fprintf(stderr, "read input: %v\n", err)
		return 1
	}
	if err := contracts.ValidateBirthInputJSON(raw); err != nil {
		fmt.Fprintf(stderr, "invalid input: %v\n", err)
		return 1
	}
	input, err := contracts.DecodeBirthInput(raw)
	if err != nil {
		fmt.Fprintf(stderr, "decode input: %v\n", err)
		return 1
	}

	cfg := config.Load()
	sink := observability.NewMemorySink()
	assembler, err := buildAssembler(cfg, sink, logger)
	if err != nil {
		fmt.Fprintf(stderr, "wire pipeline: %v\n", err)
		return 1
	}
	if *traceDB != "" {
		store, err := trace.OpenSQLiteStore(*traceDB)
		if err != nil {
			fmt.Fprintf(stderr, "open trace store: %v\n", err)
			return 1
		}
		defer func() { _ = store.Close() }()
		assembler.Traces = store
	}

	opts := natal.Options{
		Accurate:     *accurate,
		Zodiac:       contracts.Zodiac(*zodiac),
		Frame:        contracts.Frame(*frame),
		HouseSystem:  contracts.HouseSystem(*houses),
		AspectSchool: contracts.AspectSchool(*school),
		UserID:       *userID,
	}
	if *ayanamsa != "" {
		a := contracts.Ayanamsa(*ayanamsa)
		opts.Ayanamsa = &a
	}
	if *frame == string(contracts.FrameTopocentric) {
		opts.AltitudeM = altitude
	}

	result, err := assembler.Calculate(context.Background(), input, opts)
	if err != nil {
		fmt.Fprintf(stderr, "compute: %v\n", err)
		return 1
	}
	return printJSON(stdout, stderr, result)
}

// runBootstrap is a preflight: it checks the configured data directory
// and hash the same way the in-process bootstrap does, without touching
// the process-wide bootstrap record.
func runBootstrap(stdout io.Writer, logger *slog.Logger) int {
	cfg := config.Load()
	required := requiredFilesFromEnv()
	expected := os.Getenv("SWISSEPH_PATH_HASH")

	report := map[string]any{
		"path_version":   cfg.SwissEphPathVersion,
		"required_files": len(required),
	}
	ok := true
	hash, err := ephemeris.HashDataFiles(cfg.SwissEphDataPath, required)
	if err != nil {
		logger.Error("ephemeris data unreadable", "error", err)
		report["error"] = err.Error()
		ok = false
	} else {
		report["path_hash"] = hash
		if expected != "" && !strings.EqualFold(hash, expected) {
			report["error"] = "hash mismatch"
			ok = false
		}
	}
	report["success"] = ok && cfg.SwissEphPathVersion != ""

	if printJSON(stdout, stdout, report) != 0 || report["success"] != true {
		return 1
	}
	return 0
}

func runTrace(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("trace", flag.ContinueOnError)
	fs.SetOutput(stderr)
	traceDB := fs.String("trace-db", "", "sqlite path of the trace store")
	userID := fs.String("user", "", "user id to query")
	compare := fs.String("compare", "", "chart id to check the latest trace against")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *traceDB == "" || *userID == "" {
		fmt.Fprintln(stderr, "trace requires -trace-db and -user")
		return 2
	}

	store, err := trace.OpenSQLiteStore(*traceDB)
	if err != nil {
		fmt.Fprintf(stderr, "open trace store: %v\n", err)
		return 1
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	latest, err := store.GetLatest(ctx, *userID)
	if err != nil {
		fmt.Fprintf(stderr, "get latest trace: %v\n", err)
		return 1
	}

	if *compare == "" {
		return printJSON(stdout, stderr, latest)
	}
	other, err := store.Get(ctx, *compare)
	if err != nil {
		fmt.Fprintf(stderr, "get trace %s: %v\n", *compare, err)
		return 1
	}
	return printJSON(stdout, stderr, trace.CheckConsistency(latest, other))
}

func buildAssembler(cfg *config.Config, sink observability.MetricsSink, logger *slog.Logger) (*natal.Assembler, error) {
	ref, err := reference.Default()
	if err != nil {
		return nil, err
	}
	guard := ephemeris.NewGuard(nil)
	preparer := astrotime.NewPreparer(astrotime.StdDatabase{}, cfg.TimezoneDeriveEnabled, sink, logger)
	return natal.New(ref,
		engine.NewSimplified(sink, logger),
		engine.NewSwiss(guard, sink, logger),
		preparer, cfg, sink, logger), nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func requiredFilesFromEnv() []string {
	raw := os.Getenv("SWISSEPH_REQUIRED_FILES")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	files := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			files = append(files, trimmed)
		}
	}
	return files
}

func printJSON(w, errw io.Writer, v any) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(errw, "encode output: %v\n", err)
		return 1
	}
	return 0
}
