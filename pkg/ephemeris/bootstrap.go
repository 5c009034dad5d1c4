package ephemeris

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"log/slog"

	"github.com/Orrery-Labs/natal/core/pkg/natalerr"
	"github.com/Orrery-Labs/natal/core/pkg/observability"
)

// BootstrapConfig carries the inputs of the one-shot initialization.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type BootstrapConfig struct {
	DataPath         string
	PathVersion      string
	RequiredFiles    []string
	ExpectedPathHash string
}

// BootstrapState is the read-only record of the bootstrap outcome.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type BootstrapState struct {
	Initialized bool
	Success     bool
	PathVersion string
	PathHash    string
	Err         error
}

var (
	stateMu sync.RWMutex
	state   BootstrapState
)

// State returns a copy of the bootstrap record. Three observable states:
// absent (Initialized false), success, failed.
func State() BootstrapState {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return state
}

// ResetForTest clears the bootstrap record. Test hook only.
func ResetForTest() {
	stateMu.Lock()
	defer stateMu.Unlock()
	state = BootstrapState{}
}

// Bootstrap validates the data directory, hashes its required files, hands
// the path to the backend and stores the outcome. It never surfaces a raw
// filesystem path in its errors.
func Bootstrap(cfg BootstrapConfig, backend Backend, sink observability.MetricsSink, logger *slog.Logger) BootstrapState {
	sink = observability.OrNop(sink)
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ephemeris")

	record := func(s BootstrapState) BootstrapState {
		s.Initialized = true
		s.PathVersion = cfg.PathVersion
		stateMu.Lock()
		state = s
		stateMu.Unlock()
		return s
	}

	fail := func(err *natalerr.Error) BootstrapState {
		switch err.Code {
		case natalerr.CodeEphemerisDataMissing:
			sink.IncrCounter("swisseph_data_missing_total", 1)
		case natalerr.CodeSwissEphInitFailed:
			sink.IncrCounter("swisseph_init_errors_total", 1)
		}
		sink.IncrCounter("swisseph_errors_total", 1, observability.L("code", err.Code))
		logger.Error("ephemeris bootstrap failed", "code", err.Code)
		return record(BootstrapState{Err: err})
	}

	if strings.TrimSpace(cfg.PathVersion) == "" {
		return fail(natalerr.New(natalerr.CodeSwissEphInitFailed, "ephemeris path version is required"))
	}

	if strings.TrimSpace(cfg.DataPath) == "" {
		return fail(natalerr.New(natalerr.CodeEphemerisDataMissing, "ephemeris data path is not configured"))
	}
	info, err := os.Stat(cfg.DataPath)
	if err != nil || !info.IsDir() {
		return fail(natalerr.New(natalerr.CodeEphemerisDataMissing, "ephemeris data directory is missing"))
	}

	for _, name := range cfg.RequiredFiles {
		if _, err := os.Stat(filepath.Join(cfg.DataPath, name)); err != nil {
			return fail(natalerr.New(natalerr.CodeEphemerisDataMissing, "required ephemeris file is missing").
				WithDetail("missing_file", name))
		}
	}

	hash, err := hashFiles(cfg.DataPath, cfg.RequiredFiles)
	if err != nil {
		return fail(natalerr.New(natalerr.CodeEphemerisDataMissing, "ephemeris data is unreadable").Wrap(err))
	}

	if cfg.ExpectedPathHash == "" {
		return fail(natalerr.New(natalerr.CodeSwissEphInitFailed, "expected ephemeris path hash is not configured"))
	}
	if !strings.EqualFold(hash, cfg.ExpectedPathHash) {
		return fail(natalerr.New(natalerr.CodeSwissEphInitFailed, "ephemeris data hash mismatch").
			WithDetail("path_hash", hash))
	}

	if backend == nil {
		return fail(natalerr.New(natalerr.CodeSwissEphInitFailed, "ephemeris backend is not configured"))
	}
	if err := backend.SetPath(cfg.DataPath); err != nil {
		return fail(natalerr.New(natalerr.CodeSwissEphInitFailed, "ephemeris backend initialization failed").Wrap(err))
	}

	logger.Info("ephemeris bootstrap complete",
		"path_version", cfg.PathVersion,
		"path_hash", hash,
		"required_files", len(cfg.RequiredFiles),
	)
	return record(BootstrapState{Success: true, PathHash: hash})
}

// hashFiles computes the canonical content hash: SHA-256 over each file's
// name and bytes, files visited in sorted name order.
func hashFiles(dir string, names []string) (string, error) {
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)

	h := sha256.New()
	for _, name := range sorted {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return "", fmt.Errorf("hash open: %w", err)
		}
		_, _ = io.WriteString(h, name)
		h.Write([]byte{0})
		if _, err := io.Copy(h, f); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("hash read: %w", err)
		}
		_ = f.Close()
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashDataFiles exposes the canonical hash to provisioning tooling so the
// expected hash can be produced from a known-good directory.
func HashDataFiles(dir string, names []string) (string, error) {
	return hashFiles(dir, names)
}
