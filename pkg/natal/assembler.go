// Package natal assembles the full chart computation: reference data,
// prepared time, planetary positions, houses and aspects, checked against
// the coherence invariants and persisted as a reproducible trace.
package natal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/Orrery-Labs/natal/core/pkg/aspects"
	"github.com/Orrery-Labs/natal/core/pkg/astrotime"
	"github.com/Orrery-Labs/natal/core/pkg/config"
	"github.com/Orrery-Labs/natal/core/pkg/contracts"
	"github.com/Orrery-Labs/natal/core/pkg/engine"
	"github.com/Orrery-Labs/natal/core/pkg/ephemeris"
	"github.com/Orrery-Labs/natal/core/pkg/fingerprint"
	"github.com/Orrery-Labs/natal/core/pkg/natalerr"
	"github.com/Orrery-Labs/natal/core/pkg/observability"
	"github.com/Orrery-Labs/natal/core/pkg/reference"
	"github.com/Orrery-Labs/natal/core/pkg/trace"
)

// Options shape one computation. Zero values mean the defaults: tropical
// geocentric placidus, modern school, engine per configuration.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Options struct {
	// Accurate selects the swiss engine and unlocks sidereal and
	// topocentric regimes. Requires a birth time and coordinates.
	Accurate bool

	// Engine overrides the selection. Only internal callers may override
	// to simplified, and only when the feature flag allows it.
	Engine contracts.Engine

	Zodiac      contracts.Zodiac
	Ayanamsa    *contracts.Ayanamsa
	Frame       contracts.Frame
	HouseSystem contracts.HouseSystem
	AltitudeM   *float64

	// TTEnabled overrides the configured Terrestrial Time toggle.
	TTEnabled *bool

	AspectSchool contracts.AspectSchool

	// Internal marks an administrative call.
	Internal bool

	// TimeoutCheck is invoked at every stage boundary. A non-nil return
	// aborts the computation with a retryable timeout.
	TimeoutCheck func() error

	// UserID keys the persisted trace.
	UserID string
}

// Assembler runs the pipeline. All collaborators are injected; Traces is
// optional.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Assembler struct {
	Ref        reference.Provider
	Simplified engine.Provider
	Swiss      engine.Provider
	Preparer   *astrotime.Preparer
	Cfg        *config.Config
	Sink       observability.MetricsSink
	Logger     *slog.Logger
	Warner     *observability.SampledWarner
	Traces     trace.Store
}

// New wires an assembler with the standard collaborators.
func New(ref reference.Provider, simplified, swiss engine.Provider, preparer *astrotime.Preparer, cfg *config.Config, sink observability.MetricsSink, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "natal")
	return &Assembler{
		Ref:        ref,
		Simplified: simplified,
		Swiss:      swiss,
		Preparer:   preparer,
		Cfg:        cfg,
		Sink:       observability.OrNop(sink),
		Logger:     logger,
		Warner:     observability.NewSampledWarner(logger, 100),
	}
}

// Prepare exposes the time preparation step on its own.
func (a *Assembler) Prepare(_ context.Context, input contracts.BirthInput, ttEnabled bool) (contracts.BirthPrepared, error) {
	return a.Preparer.Prepare(input, ttEnabled)
}

// Calculate runs the full pipeline for one birth event.
func (a *Assembler) Calculate(ctx context.Context, input contracts.BirthInput, opts Options) (contracts.NatalResult, error) {
	var zero contracts.NatalResult

	opts = withDefaults(opts)
	if err := validateOptions(input, opts); err != nil {
		return zero, err
	}
	provider, err := a.selectEngine(opts)
	if err != nil {
		return zero, err
	}
	if provider.Name() == contracts.EngineSwiss && !input.HasCoordinates() {
		return zero, natalerr.New(natalerr.CodeMissingBirthCoordinates, "swiss engine requires birth coordinates")
	}
	if err := a.stageBoundary(ctx, opts); err != nil {
		return zero, err
	}

	data, err := a.Ref.GetActive(ctx)
	if err != nil {
		return zero, err
	}
	if err := reference.Validate(data); err != nil {
		return zero, err
	}
	if err := a.stageBoundary(ctx, opts); err != nil {
		return zero, err
	}

	ttEnabled := a.Cfg.TTEnabled
	if opts.TTEnabled != nil {
		ttEnabled = *opts.TTEnabled
	}
	prepared, err := a.Preparer.Prepare(input, ttEnabled)
	if err != nil {
		return zero, err
	}
	if err := a.stageBoundary(ctx, opts); err != nil {
		return zero, err
	}

	var lat, lon float64
	if input.HasCoordinates() {
		lat, lon = *input.BirthLat, *input.BirthLon
	}
	altitude := 0.0
	if opts.AltitudeM != nil {
		altitude = *opts.AltitudeM
	}
	engOpts := engine.Options{
		Zodiac:    opts.Zodiac,
		Frame:     opts.Frame,
		Lat:       lat,
		Lon:       lon,
		AltitudeM: altitude,
	}
	if opts.Ayanamsa != nil {
		engOpts.Ayanamsa = *opts.Ayanamsa
	}

	raw, err := provider.CalculatePlanets(ctx, prepared.JDUT, engOpts)
	if err != nil {
		return zero, err
	}
	if err := a.stageBoundary(ctx, opts); err != nil {
		return zero, err
	}

	angles, err := provider.CalculateHouses(ctx, prepared.JDUT, lat, lon, opts.HouseSystem, engOpts)
	if err != nil {
		return zero, err
	}
	if err := validateCusps(angles.Cusps); err != nil {
		return zero, err
	}
	if err := a.stageBoundary(ctx, opts); err != nil {
		return zero, err
	}

	positions := make([]contracts.PlanetPosition, 0, len(raw))
	for _, p := range raw {
		speed := p.SpeedLongitude
		retro := p.Retrograde
		positions = append(positions, contracts.PlanetPosition{
			PlanetCode:     p.Code,
			Longitude:      p.Longitude,
			SignCode:       data.SignForLongitude(p.Longitude),
			HouseNumber:    houseOf(p.Longitude, angles.Cusps),
			SpeedLongitude: &speed,
			IsRetrograde:   &retro,
		})
	}

	houses := make([]contracts.HouseCusp, 0, 12)
	for i, c := range angles.Cusps {
		houses = append(houses, contracts.HouseCusp{Number: i + 1, CuspLongitude: c})
	}

	aspectPositions := make([]aspects.Position, 0, len(raw))
	for _, p := range raw {
		aspectPositions = append(aspectPositions, aspects.Position{Code: p.Code, Longitude: p.Longitude})
	}
	found := aspects.Calculate(aspectPositions, data.Aspects, opts.AspectSchool, a.Sink)
	if err := a.stageBoundary(ctx, opts); err != nil {
		return zero, err
	}

	result := contracts.NatalResult{
		ReferenceVersion:   data.Version,
		RulesetVersion:     data.RulesetVersion,
		HouseSystem:        opts.HouseSystem,
		Engine:             provider.Name(),
		Zodiac:             opts.Zodiac,
		Frame:              opts.Frame,
		Ayanamsa:           opts.Ayanamsa,
		TimeScale:          prepared.TimeScale,
		AspectSchool:       opts.AspectSchool,
		AspectRulesVersion: data.RulesetVersion,
		PreparedInput:      prepared,
		PlanetPositions:    positions,
		Houses:             houses,
		Aspects:            found,
	}
	if opts.Frame == contracts.FrameTopocentric {
		result.AltitudeM = &altitude
	}
	if provider.Name() == contracts.EngineSwiss {
		state := ephemeris.State()
		result.EphemerisPathVersion = state.PathVersion
		result.EphemerisPathHash = state.PathHash
	}

	if err := VerifyCoherence(result, data, a.Sink, a.Warner); err != nil {
		return zero, err
	}

	a.persistTrace(ctx, opts, prepared, result)
	return result, nil
}

// stageBoundary runs the cooperative timeout hook and the context check
// between pipeline stages.
func (a *Assembler) stageBoundary(ctx context.Context, opts Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if opts.TimeoutCheck == nil {
		return nil
	}
	if err := opts.TimeoutCheck(); err != nil {
		return natalerr.New(natalerr.CodeNatalGenerationTimeout, "computation exceeded its time budget").
			AsRetryable().
			Wrap(err)
	}
	return nil
}

func withDefaults(opts Options) Options {
	if opts.Zodiac == "" {
		opts.Zodiac = contracts.ZodiacTropical
	}
	if opts.Zodiac != contracts.ZodiacSidereal {
		// An ayanamsa only applies to the sidereal zodiac.
		opts.Ayanamsa = nil
	}
	if opts.Frame == "" {
		opts.Frame = contracts.FrameGeocentric
	}
	if opts.HouseSystem == "" {
		opts.HouseSystem = contracts.HousePlacidus
	}
	if opts.AspectSchool == "" {
		opts.AspectSchool = contracts.SchoolModern
	}
	return opts
}

func validateOptions(input contracts.BirthInput, opts Options) error {
	if !opts.Zodiac.Valid() {
		return natalerr.New(natalerr.CodeInvalidZodiac, "unknown zodiac").
			WithDetail("zodiac", string(opts.Zodiac))
	}
	if !opts.Frame.Valid() {
		return natalerr.New(natalerr.CodeInvalidFrame, "unknown frame").
			WithDetail("frame", string(opts.Frame))
	}
	if !opts.HouseSystem.Valid() {
		return natalerr.New(natalerr.CodeUnsupportedHouseSystem, "house system not supported").
			WithDetail("house_system", string(opts.HouseSystem))
	}
	if !opts.AspectSchool.Valid() {
		return natalerr.New(natalerr.CodeInvalidBirthInput, "unknown aspect school").
			WithDetail("aspect_school", string(opts.AspectSchool))
	}

	if opts.Accurate && input.BirthTime == "" {
		return natalerr.New(natalerr.CodeMissingBirthTime, "accurate mode requires a birth time")
	}

	if opts.Zodiac == contracts.ZodiacSidereal {
		if !opts.Accurate {
			return natalerr.New(natalerr.CodeAccurateModeRequired, "sidereal zodiac requires accurate mode")
		}
		if opts.Ayanamsa == nil {
			return natalerr.New(natalerr.CodeMissingAyanamsa, "sidereal zodiac requires an ayanamsa")
		}
		if !contracts.AllowedAyanamsas[*opts.Ayanamsa] {
			return natalerr.New(natalerr.CodeInvalidAyanamsa, "ayanamsa is not in the allow-list").
				WithDetail("ayanamsa", string(*opts.Ayanamsa))
		}
	}
	if opts.Frame == contracts.FrameTopocentric {
		if !opts.Accurate {
			return natalerr.New(natalerr.CodeAccurateModeRequired, "topocentric frame requires accurate mode")
		}
		if !input.HasCoordinates() {
			return natalerr.New(natalerr.CodeMissingBirthCoordinates, "topocentric frame requires birth coordinates")
		}
	}
	return nil
}

// selectEngine resolves the provider per the option gates: explicit
// override first, then accurate, then the configured default.
func (a *Assembler) selectEngine(opts Options) (engine.Provider, error) {
	switch {
	case opts.Engine == contracts.EngineSimplified:
		if opts.Accurate || !opts.Internal || !a.Cfg.NatalEngineSimplifiedEnabled || !a.Cfg.IsInternalEnv() {
			return nil, natalerr.New(natalerr.CodeEngineOverrideForbidden, "engine override to simplified is not allowed")
		}
		return a.Simplified, nil
	case opts.Engine == contracts.EngineSwiss:
		return a.swissProvider()
	case opts.Engine != "":
		return nil, natalerr.New(natalerr.CodeEngineOptionUnsupported, "unknown engine").
			WithDetail("engine", string(opts.Engine))
	case opts.Accurate:
		return a.swissProvider()
	case contracts.Engine(a.Cfg.NatalEngineDefault) == contracts.EngineSwiss:
		return a.swissProvider()
	default:
		return a.Simplified, nil
	}
}

func (a *Assembler) swissProvider() (engine.Provider, error) {
	if !a.Cfg.SwissEphEnabled {
		return nil, natalerr.New(natalerr.CodeNatalEngineUnavailable, "swiss engine is disabled")
	}
	state := ephemeris.State()
	if !state.Initialized || !state.Success {
		err := natalerr.New(natalerr.CodeNatalEngineUnavailable, "ephemeris bootstrap did not succeed")
		if state.Err != nil {
			err = err.Wrap(state.Err)
		}
		return nil, err
	}
	return a.Swiss, nil
}

// validateCusps enforces step six of the pipeline: twelve finite,
// normalized, pairwise distinct longitudes.
func validateCusps(cusps [12]float64) error {
	seen := make(map[float64]bool, 12)
	for i, c := range cusps {
		if math.IsNaN(c) || math.IsInf(c, 0) || c < 0 || c >= 360 {
			return natalerr.New(natalerr.CodeInvalidReferenceData, "house cusp out of range").
				WithDetail("number", fmt.Sprintf("%d", i+1)).
				WithDetail("cusp_longitude", fmt.Sprintf("%g", c))
		}
		if seen[c] {
			return natalerr.New(natalerr.CodeInvalidReferenceData, "duplicate house cusp").
				WithDetail("number", fmt.Sprintf("%d", i+1)).
				WithDetail("cusp_longitude", fmt.Sprintf("%g", c))
		}
		seen[c] = true
	}
	return nil
}

// houseOf finds the house whose half-open arc [cusp_k, cusp_k+1) holds
// lon. An exact boundary belongs to the house starting there.
func houseOf(lon float64, cusps [12]float64) int {
	for k := 0; k < 12; k++ {
		if inArc(lon, cusps[k], cusps[(k+1)%12]) {
			return k + 1
		}
	}
	// Unreachable with twelve distinct cusps covering the circle.
	return 1
}

func inArc(lon, start, end float64) bool {
	if start < end {
		return lon >= start && lon < end
	}
	return lon >= start || lon < end
}

// VerifyCoherence re-derives the sign and house of every planet from the
// assembled result and fails on the first divergence. Violations are
// counted and sampled-warned before surfacing.
func VerifyCoherence(result contracts.NatalResult, data contracts.ReferenceData, sink observability.MetricsSink, warner *observability.SampledWarner) error {
	sink = observability.OrNop(sink)

	var cusps [12]float64
	if len(result.Houses) != 12 {
		return natalerr.New(natalerr.CodeInconsistentNatalResult, "result does not carry twelve houses").
			WithDetail("houses", fmt.Sprintf("%d", len(result.Houses)))
	}
	for i, h := range result.Houses {
		cusps[i] = h.CuspLongitude
	}

	for _, p := range result.PlanetPositions {
		expectedSign := data.SignForLongitude(p.Longitude)
		if p.SignCode != expectedSign {
			reportIncoherence(sink, warner, result, p, "sign mismatch")
			return natalerr.New(natalerr.CodeInconsistentNatalResult, "planet sign does not match its longitude").
				WithDetails(map[string]any{
					"planet_code":        p.PlanetCode,
					"expected_sign_code": expectedSign,
					"actual_sign_code":   p.SignCode,
					"reference_version":  result.ReferenceVersion,
					"house_system":       string(result.HouseSystem),
				})
		}

		if p.HouseNumber < 1 || p.HouseNumber > 12 {
			reportIncoherence(sink, warner, result, p, "house out of range")
			return natalerr.New(natalerr.CodeInconsistentNatalResult, "planet house number out of range").
				WithDetail("planet_code", p.PlanetCode).
				WithDetail("house_number", fmt.Sprintf("%d", p.HouseNumber))
		}
		start := cusps[p.HouseNumber-1]
		end := cusps[p.HouseNumber%12]
		if !inArc(p.Longitude, start, end) {
			reportIncoherence(sink, warner, result, p, "house interval mismatch")
			return natalerr.New(natalerr.CodeInconsistentNatalResult, "planet longitude outside its house interval").
				WithDetails(map[string]any{
					"planet_code":    p.PlanetCode,
					"longitude":      p.Longitude,
					"house_number":   p.HouseNumber,
					"interval_start": start,
					"interval_end":   end,
				})
		}
	}
	return nil
}

func reportIncoherence(sink observability.MetricsSink, warner *observability.SampledWarner, result contracts.NatalResult, p contracts.PlanetPosition, kind string) {
	sink.IncrCounter("natal_inconsistent_result_total", 1,
		observability.L("reference_version", result.ReferenceVersion),
		observability.L("house_system", string(result.HouseSystem)),
		observability.L("planet_code", p.PlanetCode),
	)
	if warner != nil {
		warner.Warn("incoherent natal result",
			"kind", kind,
			"planet_code", p.PlanetCode,
			"reference_version", result.ReferenceVersion,
			"house_system", string(result.HouseSystem),
		)
	}
}

// persistTrace stores the reproducibility record. Persistence failures do
// not fail the computation; the result is already coherent.
func (a *Assembler) persistTrace(ctx context.Context, opts Options, prepared contracts.BirthPrepared, result contracts.NatalResult) {
	if a.Traces == nil || opts.UserID == "" {
		return
	}

	hash, err := fingerprint.Compute(prepared, fingerprint.CanonicalOptions{
		Engine:      result.Engine,
		Zodiac:      result.Zodiac,
		Ayanamsa:    result.Ayanamsa,
		Frame:       result.Frame,
		HouseSystem: result.HouseSystem,
		AltitudeM:   result.AltitudeM,
		TimeScale:   result.TimeScale,
	})
	if err != nil {
		a.Logger.Error("trace fingerprint failed", "error", err)
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		a.Logger.Error("trace payload marshal failed", "error", err)
		return
	}

	t := contracts.ChartResultTrace{
		ChartID:          uuid.NewString(),
		UserID:           opts.UserID,
		ReferenceVersion: result.ReferenceVersion,
		RulesetVersion:   result.RulesetVersion,
		InputHash:        hash,
		ResultPayload:    payload,
		CreatedAt:        time.Now().UTC(),
	}
	if err := a.Traces.Persist(ctx, t); err != nil {
		a.Logger.Error("trace persist failed", "chart_id", t.ChartID, "error", err)
		return
	}
	a.Logger.Debug("trace persisted", "chart_id", t.ChartID, "input_hash", hash)
}
