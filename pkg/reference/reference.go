// Package reference serves the versioned ReferenceData bundles consumed
// by the assembler. Bundles are validated on ingest, structurally via
// JSON Schema and numerically via bound checks, so compute-time code can
// treat the data as trustworthy.
package reference

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Orrery-Labs/natal/core/pkg/contracts"
	"github.com/Orrery-Labs/natal/core/pkg/natalerr"
)

//go:embed bundle.yaml
var defaultBundle []byte

// Provider serves reference bundles to the assembler.
type Provider interface {
	// GetActive returns the bundle with the highest version.
	GetActive(ctx context.Context) (contracts.ReferenceData, error)

	// GetVersion returns one specific bundle version.
	GetVersion(ctx context.Context, version string) (contracts.ReferenceData, error)
}

// MemoryProvider holds validated bundles in memory, keyed by version.
// Safe for concurrent use.
type MemoryProvider struct {
	mu       sync.RWMutex
	versions map[string]contracts.ReferenceData
	active   string
}

// NewMemoryProvider validates and stores the given bundles. At least one
// bundle is required; the highest semver becomes active.
func NewMemoryProvider(bundles ...contracts.ReferenceData) (*MemoryProvider, error) {
	if len(bundles) == 0 {
		return nil, natalerr.New(natalerr.CodeInvalidReferenceData, "no reference bundle provided")
	}
	p := &MemoryProvider{versions: make(map[string]contracts.ReferenceData)}
	for _, b := range bundles {
		if err := p.Seed(b); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Default returns a provider seeded with the embedded bundle.
func Default() (*MemoryProvider, error) {
	var data contracts.ReferenceData
	if err := yaml.Unmarshal(defaultBundle, &data); err != nil {
		return nil, natalerr.New(natalerr.CodeInvalidReferenceData, "embedded bundle is not valid YAML").Wrap(err)
	}
	return NewMemoryProvider(data)
}

// Seed validates one bundle and adds it. The active version is
// recomputed; an existing version is replaced.
func (p *MemoryProvider) Seed(data contracts.ReferenceData) error {
	if err := Validate(data); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.versions[data.Version] = data

	versions := make([]string, 0, len(p.versions))
	for v := range p.versions {
		versions = append(versions, v)
	}
	p.active = LatestVersion(versions)
	return nil
}

func (p *MemoryProvider) GetActive(_ context.Context) (contracts.ReferenceData, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	data, ok := p.versions[p.active]
	if !ok {
		return contracts.ReferenceData{}, natalerr.New(natalerr.CodeReferenceVersionNotFound, "no active reference version")
	}
	return data, nil
}

func (p *MemoryProvider) GetVersion(_ context.Context, version string) (contracts.ReferenceData, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	data, ok := p.versions[version]
	if !ok {
		return contracts.ReferenceData{}, natalerr.New(natalerr.CodeReferenceVersionNotFound, "reference version not found").
			WithDetail("version", version)
	}
	return data, nil
}

// LatestVersion picks the highest version. Strict semver compares as
// semver; anything unparseable falls back to lexicographic order behind
// every parseable version.
func LatestVersion(versions []string) string {
	if len(versions) == 0 {
		return ""
	}
	sorted := make([]string, len(versions))
	copy(sorted, versions)
	sort.Slice(sorted, func(i, j int) bool {
		vi, ei := semver.NewVersion(sorted[i])
		vj, ej := semver.NewVersion(sorted[j])
		switch {
		case ei == nil && ej == nil:
			return vi.LessThan(vj)
		case ei == nil:
			return false
		case ej == nil:
			return true
		default:
			return sorted[i] < sorted[j]
		}
	})
	return sorted[len(sorted)-1]
}

const schemaURL = "https://orrery.schemas.local/reference/bundle.schema.json"

var bundleSchema = jsonschema.MustCompileString(schemaURL, `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["version", "ruleset_version", "planets", "signs", "houses", "aspects"],
	"properties": {
		"version": {"type": "string", "minLength": 1},
		"ruleset_version": {"type": "string", "minLength": 1},
		"planets": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["code", "name"],
				"properties": {
					"code": {"type": "string", "minLength": 1},
					"name": {"type": "string", "minLength": 1}
				}
			}
		},
		"signs": {
			"type": "array",
			"minItems": 12,
			"maxItems": 12,
			"items": {
				"type": "object",
				"required": ["code", "name"],
				"properties": {
					"code": {"type": "string", "minLength": 1},
					"name": {"type": "string", "minLength": 1}
				}
			}
		},
		"houses": {
			"type": "array",
			"minItems": 12,
			"maxItems": 12,
			"items": {
				"type": "object",
				"required": ["number", "name"],
				"properties": {
					"number": {"type": "integer", "minimum": 1, "maximum": 12},
					"name": {"type": "string", "minLength": 1}
				}
			}
		},
		"aspects": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["code", "angle", "default_orb_deg"],
				"properties": {
					"code": {"type": "string", "minLength": 1},
					"angle": {"type": "number", "minimum": 0, "maximum": 180},
					"default_orb_deg": {"type": "number", "minimum": 0, "maximum": 15},
					"orb_luminaries": {"type": "number", "minimum": 0, "maximum": 15},
					"orb_pair_overrides": {
						"type": "object",
						"additionalProperties": {"type": "number", "minimum": 0, "maximum": 15}
					}
				}
			}
		}
	}
}`)

// Validate checks a bundle structurally and numerically. Every failure is
// invalid_reference_data with the offending field in the details.
func Validate(data contracts.ReferenceData) error {
	doc, err := toJSONValue(data)
	if err != nil {
		return natalerr.New(natalerr.CodeInvalidReferenceData, "bundle is not serializable").Wrap(err)
	}
	if err := bundleSchema.Validate(doc); err != nil {
		return natalerr.New(natalerr.CodeInvalidReferenceData, "bundle failed schema validation").
			WithDetail("reason", err.Error()).
			Wrap(err)
	}

	// Schema bounds do not catch NaN/Inf (they are not representable in
	// JSON, but the structs can carry them).
	for _, a := range data.Aspects {
		if !orbOK(a.DefaultOrbDeg) {
			return orbError(a.Code, "default_orb_deg", a.DefaultOrbDeg)
		}
		if a.OrbLuminaries != nil && !orbOK(*a.OrbLuminaries) {
			return orbError(a.Code, "orb_luminaries", *a.OrbLuminaries)
		}
		for pair, orb := range a.OrbPairOverrides {
			if !orbOK(orb) {
				return orbError(a.Code, "orb_pair_overrides["+pair+"]", orb)
			}
		}
	}

	for i, s := range data.Signs {
		if s.Code != canonicalSigns[i] {
			return natalerr.New(natalerr.CodeInvalidReferenceData, "signs must be ordered aries through pisces").
				WithDetail("position", fmt.Sprintf("%d", i)).
				WithDetail("code", s.Code)
		}
	}

	seen := make(map[int]bool, 12)
	for _, h := range data.Houses {
		if seen[h.Number] {
			return natalerr.New(natalerr.CodeInvalidReferenceData, "duplicate house number").
				WithDetail("number", fmt.Sprintf("%d", h.Number))
		}
		seen[h.Number] = true
	}

	return nil
}

var canonicalSigns = []string{
	"aries", "taurus", "gemini", "cancer", "leo", "virgo",
	"libra", "scorpio", "sagittarius", "capricorn", "aquarius", "pisces",
}

func orbOK(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= 15
}

func orbError(aspect, field string, v float64) error {
	return natalerr.New(natalerr.CodeInvalidReferenceData, "orb out of bounds").
		WithDetail("aspect", aspect).
		WithDetail("field", field).
		WithDetail("value", fmt.Sprintf("%g", v))
}

// toJSONValue round-trips through encoding/json so the schema validator
// sees plain JSON types.
func toJSONValue(data contracts.ReferenceData) (any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
