// Package trace persists one ChartResultTrace per successful computation
// and answers the reproducibility question: did two runs for the same
// user produce the same chart, and if not, what diverged first.
package trace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/Orrery-Labs/natal/core/pkg/contracts"
)

// ErrNotFound is returned when no trace matches the query.
var ErrNotFound = errors.New("trace not found")

// Store persists and retrieves chart result traces.
type Store interface {
	// Persist stores one trace. ChartID collisions are an error.
	Persist(ctx context.Context, t contracts.ChartResultTrace) error

	// GetLatest returns the most recent trace for a user.
	GetLatest(ctx context.Context, userID string) (contracts.ChartResultTrace, error)

	// Get returns one trace by chart id.
	Get(ctx context.Context, chartID string) (contracts.ChartResultTrace, error)
}

// Consistency is the outcome of comparing two traces.
type Consistency struct {
	Consistent bool   `json:"consistent"`
	Reason     string `json:"reason"`
	Detail     string `json:"detail,omitempty"`
}

// Comparison reasons, ordered by check priority.
const (
	ReasonMatch           = "match"
	ReasonVersionMismatch = "version_mismatch"
	ReasonHashMismatch    = "hash_mismatch"
	ReasonPayloadMismatch = "payload_mismatch"
)

// CheckConsistency compares two traces in fixed order: versions, then
// input hash, then serialized payload. The first mismatch wins.
func CheckConsistency(a, b contracts.ChartResultTrace) Consistency {
	if a.ReferenceVersion != b.ReferenceVersion {
		return Consistency{
			Reason: ReasonVersionMismatch,
			Detail: versionDetail("reference", a.ReferenceVersion, b.ReferenceVersion),
		}
	}
	if a.RulesetVersion != b.RulesetVersion {
		return Consistency{
			Reason: ReasonVersionMismatch,
			Detail: versionDetail("ruleset", a.RulesetVersion, b.RulesetVersion),
		}
	}
	if a.InputHash != b.InputHash {
		return Consistency{Reason: ReasonHashMismatch, Detail: "input fingerprints differ"}
	}
	if !bytes.Equal(a.ResultPayload, b.ResultPayload) {
		return Consistency{Reason: ReasonPayloadMismatch, Detail: "result payloads differ"}
	}
	return Consistency{Consistent: true, Reason: ReasonMatch}
}

// versionDetail says which side is newer when both versions parse as
// semver, and falls back to a bare inequality otherwise.
func versionDetail(kind, va, vb string) string {
	sa, ea := semver.NewVersion(va)
	sb, eb := semver.NewVersion(vb)
	if ea == nil && eb == nil {
		switch {
		case sa.LessThan(sb):
			return fmt.Sprintf("%s version %s is older than %s", kind, va, vb)
		case sb.LessThan(sa):
			return fmt.Sprintf("%s version %s is newer than %s", kind, va, vb)
		}
	}
	return fmt.Sprintf("%s versions differ: %s vs %s", kind, va, vb)
}

// MemoryStore keeps traces in memory. Used by tests and by deployments
// that opt out of persistence.
type MemoryStore struct {
	mu     sync.RWMutex
	traces map[string]contracts.ChartResultTrace
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{traces: make(map[string]contracts.ChartResultTrace)}
}

func (s *MemoryStore) Persist(_ context.Context, t contracts.ChartResultTrace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.traces[t.ChartID]; exists {
		return fmt.Errorf("trace %s already persisted", t.ChartID)
	}
	s.traces[t.ChartID] = t
	return nil
}

func (s *MemoryStore) GetLatest(_ context.Context, userID string) (contracts.ChartResultTrace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]contracts.ChartResultTrace, 0, 4)
	for _, t := range s.traces {
		if t.UserID == userID {
			matches = append(matches, t)
		}
	}
	if len(matches) == 0 {
		return contracts.ChartResultTrace{}, ErrNotFound
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}
		return matches[i].ChartID < matches[j].ChartID
	})
	return matches[len(matches)-1], nil
}

func (s *MemoryStore) Get(_ context.Context, chartID string) (contracts.ChartResultTrace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.traces[chartID]
	if !ok {
		return contracts.ChartResultTrace{}, ErrNotFound
	}
	return t, nil
}
