package natal_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Orrery-Labs/natal/core/pkg/astrotime"
	"github.com/Orrery-Labs/natal/core/pkg/config"
	"github.com/Orrery-Labs/natal/core/pkg/contracts"
	"github.com/Orrery-Labs/natal/core/pkg/engine"
	"github.com/Orrery-Labs/natal/core/pkg/ephemeris"
	"github.com/Orrery-Labs/natal/core/pkg/natal"
	"github.com/Orrery-Labs/natal/core/pkg/natalerr"
	"github.com/Orrery-Labs/natal/core/pkg/observability"
	"github.com/Orrery-Labs/natal/core/pkg/reference"
	"github.com/Orrery-Labs/natal/core/pkg/trace"
)

// testBackend is a deterministic ephemeris stand-in with a linear
// ayanamsa model, mirroring the behavior the swiss provider relies on.
type testBackend struct {
	sidereal *ephemeris.SiderealMode
	topo     bool
}

var testElements = map[ephemeris.Body]struct {
	lon0 float64
	rate float64
}{
	ephemeris.BodySun:     {280.460, 0.98564736},
	ephemeris.BodyMoon:    {218.316, 13.17639648},
	ephemeris.BodyMercury: {252.251, 4.09233445},
	ephemeris.BodyVenus:   {181.980, 1.60213034},
	ephemeris.BodyMars:    {355.433, 0.52402068},
	ephemeris.BodyJupiter: {34.351, 0.08308529},
	ephemeris.BodySaturn:  {50.077, 0.03344414},
	ephemeris.BodyUranus:  {314.055, 0.01172834},
	ephemeris.BodyNeptune: {304.348, 0.00598103},
	ephemeris.BodyPluto:   {238.958, 0.00396},
}

func (b *testBackend) SetPath(string) error { return nil }

func (b *testBackend) Calc(jdUT float64, body ephemeris.Body) (ephemeris.CalcResult, error) {
	el, ok := testElements[body]
	if !ok {
		return ephemeris.CalcResult{}, errors.New("unknown body")
	}
	lon := el.lon0 + el.rate*(jdUT-engine.J2000)
	if b.sidereal != nil {
		lon -= 23.853
	}
	return ephemeris.CalcResult{
		Longitude: math.Mod(math.Mod(lon, 360)+360, 360),
		SpeedLon:  el.rate,
	}, nil
}

func (b *testBackend) Houses(jdUT, lat, lon float64, system byte) (ephemeris.HousesResult, error) {
	asc := math.Mod(jdUT*1.3+lat+lon+360*4, 360)
	var out ephemeris.HousesResult
	out.Ascendant = asc
	out.MC = asc + 270
	for i := 0; i < 12; i++ {
		out.Cusps[i] = asc + float64(i)*30
	}
	return out, nil
}

func (b *testBackend) SetSiderealMode(mode ephemeris.SiderealMode) { b.sidereal = &mode }
func (b *testBackend) ClearSiderealMode()                          { b.sidereal = nil }
func (b *testBackend) SetTopocentric(_, _, _ float64)              { b.topo = true }
func (b *testBackend) ClearTopocentric()                           { b.topo = false }
func (b *testBackend) Close() error                                { return nil }

func parisInput() contracts.BirthInput {
	lat, lon := 48.8566, 2.3522
	return contracts.BirthInput{
		BirthDate:     "1990-06-15",
		BirthTime:     "10:30",
		BirthPlace:    "Paris, France",
		BirthTimezone: "Europe/Paris",
		BirthLat:      &lat,
		BirthLon:      &lon,
	}
}

func newAssembler(t *testing.T, cfg *config.Config) (*natal.Assembler, *observability.MemorySink) {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{
			NatalEngineDefault:           "simplified",
			NatalEngineSimplifiedEnabled: true,
			AppEnv:                       "test",
		}
	}
	ref, err := reference.Default()
	require.NoError(t, err)

	sink := observability.NewMemorySink()
	guard := ephemeris.NewGuard(&testBackend{})
	preparer := astrotime.NewPreparer(astrotime.StdDatabase{}, cfg.TimezoneDeriveEnabled, sink, nil)
	a := natal.New(ref,
		engine.NewSimplified(sink, nil),
		engine.NewSwiss(guard, sink, nil),
		preparer, cfg, sink, nil)
	return a, sink
}

// bootstrapOK runs a successful ephemeris bootstrap against a temp data
// directory and restores the neutral state afterwards.
func bootstrapOK(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sepl_18.se1"), []byte("ephemeris bytes"), 0o600))
	hash, err := ephemeris.HashDataFiles(dir, []string{"sepl_18.se1"})
	require.NoError(t, err)

	state := ephemeris.Bootstrap(ephemeris.BootstrapConfig{
		DataPath:         dir,
		PathVersion:      "de441-2024",
		RequiredFiles:    []string{"sepl_18.se1"},
		ExpectedPathHash: hash,
	}, &testBackend{}, nil, nil)
	require.True(t, state.Success)
	t.Cleanup(ephemeris.ResetForTest)
}

func TestCalculateSimplifiedHappyPath(t *testing.T) {
	a, _ := newAssembler(t, nil)

	result, err := a.Calculate(context.Background(), parisInput(), natal.Options{})
	require.NoError(t, err)

	assert.Equal(t, contracts.EngineSimplified, result.Engine)
	assert.Equal(t, contracts.ZodiacTropical, result.Zodiac)
	assert.Equal(t, contracts.FrameGeocentric, result.Frame)
	assert.Equal(t, contracts.HousePlacidus, result.HouseSystem)
	assert.Equal(t, contracts.SchoolModern, result.AspectSchool)
	assert.Equal(t, "2.1.0", result.ReferenceVersion)
	assert.Equal(t, "1.4.0", result.RulesetVersion)
	assert.Nil(t, result.Ayanamsa)
	assert.Empty(t, result.EphemerisPathVersion)

	assert.Equal(t, "1990-06-15T08:30:00+00:00", result.PreparedInput.BirthDatetimeUTC)
	assert.Equal(t, int64(645438600), result.PreparedInput.TimestampUTC)
	assert.InDelta(t, 2448057.8541666665, result.PreparedInput.JDUT, 1e-8)

	require.Len(t, result.PlanetPositions, 10)
	for _, p := range result.PlanetPositions {
		assert.Equal(t, int(p.Longitude/30), signIndex(t, result, p.SignCode), p.PlanetCode)
		assert.GreaterOrEqual(t, p.HouseNumber, 1, p.PlanetCode)
		assert.LessOrEqual(t, p.HouseNumber, 12, p.PlanetCode)
	}
	require.Len(t, result.Houses, 12)
	for i, h := range result.Houses {
		assert.Equal(t, i+1, h.Number)
	}
	for _, asp := range result.Aspects {
		assert.True(t, contracts.MajorAspects[asp.AspectCode])
		assert.LessOrEqual(t, asp.OrbUsed, asp.OrbMax)
		assert.Less(t, asp.PlanetA, asp.PlanetB)
	}
}

func signIndex(t *testing.T, result contracts.NatalResult, code string) int {
	t.Helper()
	for i, s := range []string{
		"aries", "taurus", "gemini", "cancer", "leo", "virgo",
		"libra", "scorpio", "sagittarius", "capricorn", "aquarius", "pisces",
	} {
		if s == code {
			return i
		}
	}
	t.Fatalf("unknown sign %q in result %s", code, result.ReferenceVersion)
	return -1
}

func TestCalculateDeterministic(t *testing.T) {
	a, _ := newAssembler(t, nil)
	ctx := context.Background()

	first, err := a.Calculate(ctx, parisInput(), natal.Options{})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := a.Calculate(ctx, parisInput(), natal.Options{})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAccurateRequiresBirthTime(t *testing.T) {
	a, _ := newAssembler(t, &config.Config{SwissEphEnabled: true, NatalEngineDefault: "simplified"})
	input := parisInput()
	input.BirthTime = ""

	_, err := a.Calculate(context.Background(), input, natal.Options{Accurate: true})
	require.Error(t, err)
	assert.True(t, natalerr.IsCode(err, natalerr.CodeMissingBirthTime))
}

func TestAccurateRequiresBootstrap(t *testing.T) {
	ephemeris.ResetForTest()
	a, _ := newAssembler(t, &config.Config{SwissEphEnabled: true, NatalEngineDefault: "simplified"})

	_, err := a.Calculate(context.Background(), parisInput(), natal.Options{Accurate: true})
	require.Error(t, err)
	assert.True(t, natalerr.IsCode(err, natalerr.CodeNatalEngineUnavailable))
}

func TestSwissDisabledIsUnavailable(t *testing.T) {
	a, _ := newAssembler(t, &config.Config{SwissEphEnabled: false, NatalEngineDefault: "swiss"})

	_, err := a.Calculate(context.Background(), parisInput(), natal.Options{})
	require.Error(t, err)
	assert.True(t, natalerr.IsCode(err, natalerr.CodeNatalEngineUnavailable))
}

func TestSwissHappyPathCarriesEphemerisVersions(t *testing.T) {
	bootstrapOK(t)
	a, _ := newAssembler(t, &config.Config{SwissEphEnabled: true, NatalEngineDefault: "simplified"})

	result, err := a.Calculate(context.Background(), parisInput(), natal.Options{Accurate: true})
	require.NoError(t, err)
	assert.Equal(t, contracts.EngineSwiss, result.Engine)
	assert.Equal(t, "de441-2024", result.EphemerisPathVersion)
	assert.NotEmpty(t, result.EphemerisPathHash)
}

func TestSwissRequiresCoordinates(t *testing.T) {
	bootstrapOK(t)
	a, _ := newAssembler(t, &config.Config{SwissEphEnabled: true, NatalEngineDefault: "simplified"})
	input := parisInput()
	input.BirthLat = nil
	input.BirthLon = nil
	input.BirthTimezone = "Europe/Paris"

	_, err := a.Calculate(context.Background(), input, natal.Options{Accurate: true})
	require.Error(t, err)
	assert.True(t, natalerr.IsCode(err, natalerr.CodeMissingBirthCoordinates))
}

func TestSiderealGates(t *testing.T) {
	bootstrapOK(t)
	a, _ := newAssembler(t, &config.Config{SwissEphEnabled: true, NatalEngineDefault: "simplified"})
	ctx := context.Background()
	lahiri := contracts.AyanamsaLahiri
	bogus := contracts.Ayanamsa("galactic_center")

	_, err := a.Calculate(ctx, parisInput(), natal.Options{
		Zodiac: contracts.ZodiacSidereal, Ayanamsa: &lahiri,
	})
	assert.True(t, natalerr.IsCode(err, natalerr.CodeAccurateModeRequired))

	_, err = a.Calculate(ctx, parisInput(), natal.Options{
		Accurate: true, Zodiac: contracts.ZodiacSidereal,
	})
	assert.True(t, natalerr.IsCode(err, natalerr.CodeMissingAyanamsa))

	_, err = a.Calculate(ctx, parisInput(), natal.Options{
		Accurate: true, Zodiac: contracts.ZodiacSidereal, Ayanamsa: &bogus,
	})
	assert.True(t, natalerr.IsCode(err, natalerr.CodeInvalidAyanamsa))

	result, err := a.Calculate(ctx, parisInput(), natal.Options{
		Accurate: true, Zodiac: contracts.ZodiacSidereal, Ayanamsa: &lahiri,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Ayanamsa)
	assert.Equal(t, contracts.AyanamsaLahiri, *result.Ayanamsa)
	assert.Equal(t, contracts.ZodiacSidereal, result.Zodiac)
}

func TestTopocentricGates(t *testing.T) {
	bootstrapOK(t)
	a, _ := newAssembler(t, &config.Config{SwissEphEnabled: true, NatalEngineDefault: "simplified"})
	ctx := context.Background()

	_, err := a.Calculate(ctx, parisInput(), natal.Options{Frame: contracts.FrameTopocentric})
	assert.True(t, natalerr.IsCode(err, natalerr.CodeAccurateModeRequired))

	noCoords := parisInput()
	noCoords.BirthLat = nil
	noCoords.BirthLon = nil
	_, err = a.Calculate(ctx, noCoords, natal.Options{Accurate: true, Frame: contracts.FrameTopocentric})
	assert.True(t, natalerr.IsCode(err, natalerr.CodeMissingBirthCoordinates))

	// Altitude defaults to zero and is surfaced.
	result, err := a.Calculate(ctx, parisInput(), natal.Options{Accurate: true, Frame: contracts.FrameTopocentric})
	require.NoError(t, err)
	require.NotNil(t, result.AltitudeM)
	assert.Zero(t, *result.AltitudeM)
}

func TestEngineOverrideGates(t *testing.T) {
	ctx := context.Background()

	t.Run("external callers may not override", func(t *testing.T) {
		a, _ := newAssembler(t, nil)
		_, err := a.Calculate(ctx, parisInput(), natal.Options{Engine: contracts.EngineSimplified})
		assert.True(t, natalerr.IsCode(err, natalerr.CodeEngineOverrideForbidden))
	})

	t.Run("internal override honors the feature flag", func(t *testing.T) {
		a, _ := newAssembler(t, &config.Config{
			NatalEngineDefault:           "swiss",
			NatalEngineSimplifiedEnabled: true,
			AppEnv:                       "staging",
		})
		result, err := a.Calculate(ctx, parisInput(), natal.Options{
			Engine: contracts.EngineSimplified, Internal: true,
		})
		require.NoError(t, err)
		assert.Equal(t, contracts.EngineSimplified, result.Engine)
	})

	t.Run("flag off forbids internal override", func(t *testing.T) {
		a, _ := newAssembler(t, &config.Config{
			NatalEngineDefault:           "simplified",
			NatalEngineSimplifiedEnabled: false,
			AppEnv:                       "test",
		})
		_, err := a.Calculate(ctx, parisInput(), natal.Options{
			Engine: contracts.EngineSimplified, Internal: true,
		})
		assert.True(t, natalerr.IsCode(err, natalerr.CodeEngineOverrideForbidden))
	})

	t.Run("production environment forbids internal override", func(t *testing.T) {
		a, _ := newAssembler(t, &config.Config{
			NatalEngineDefault:           "simplified",
			NatalEngineSimplifiedEnabled: true,
			AppEnv:                       "production",
		})
		_, err := a.Calculate(ctx, parisInput(), natal.Options{
			Engine: contracts.EngineSimplified, Internal: true,
		})
		assert.True(t, natalerr.IsCode(err, natalerr.CodeEngineOverrideForbidden))
	})

	t.Run("unknown engine", func(t *testing.T) {
		a, _ := newAssembler(t, nil)
		_, err := a.Calculate(ctx, parisInput(), natal.Options{Engine: contracts.Engine("vedic")})
		assert.True(t, natalerr.IsCode(err, natalerr.CodeEngineOptionUnsupported))
	})
}

func TestOptionValidation(t *testing.T) {
	a, _ := newAssembler(t, nil)
	ctx := context.Background()

	_, err := a.Calculate(ctx, parisInput(), natal.Options{Zodiac: contracts.Zodiac("draconic")})
	assert.True(t, natalerr.IsCode(err, natalerr.CodeInvalidZodiac))

	_, err = a.Calculate(ctx, parisInput(), natal.Options{Frame: contracts.Frame("heliocentric")})
	assert.True(t, natalerr.IsCode(err, natalerr.CodeInvalidFrame))

	_, err = a.Calculate(ctx, parisInput(), natal.Options{HouseSystem: contracts.HouseSystem("koch")})
	assert.True(t, natalerr.IsCode(err, natalerr.CodeUnsupportedHouseSystem))
}

func TestTimeoutHook(t *testing.T) {
	a, _ := newAssembler(t, nil)

	calls := 0
	_, err := a.Calculate(context.Background(), parisInput(), natal.Options{
		TimeoutCheck: func() error {
			calls++
			if calls > 2 {
				return errors.New("budget exhausted")
			}
			return nil
		},
	})
	require.Error(t, err)
	assert.True(t, natalerr.IsCode(err, natalerr.CodeNatalGenerationTimeout))

	var nerr *natalerr.Error
	require.ErrorAs(t, err, &nerr)
	assert.True(t, nerr.Retryable)
}

func TestContextCancellation(t *testing.T) {
	a, _ := newAssembler(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Calculate(ctx, parisInput(), natal.Options{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestTracePersistence(t *testing.T) {
	a, _ := newAssembler(t, nil)
	store := trace.NewMemoryStore()
	a.Traces = store
	ctx := context.Background()

	result, err := a.Calculate(ctx, parisInput(), natal.Options{UserID: "user-42"})
	require.NoError(t, err)

	persisted, err := store.GetLatest(ctx, "user-42")
	require.NoError(t, err)
	assert.Equal(t, "user-42", persisted.UserID)
	assert.Equal(t, result.ReferenceVersion, persisted.ReferenceVersion)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), persisted.InputHash)

	var stored contracts.NatalResult
	require.NoError(t, stored.UnmarshalJSON(persisted.ResultPayload))
	assert.Equal(t, result.PlanetPositions, stored.PlanetPositions)

	// Same input again: fresh chart id, same fingerprint, consistent.
	_, err = a.Calculate(ctx, parisInput(), natal.Options{UserID: "user-42"})
	require.NoError(t, err)
	second, err := store.GetLatest(ctx, "user-42")
	require.NoError(t, err)
	assert.NotEqual(t, persisted.ChartID, second.ChartID)
	assert.Equal(t, persisted.InputHash, second.InputHash)
	check := trace.CheckConsistency(persisted, second)
	assert.True(t, check.Consistent)
}

func TestTropicalIgnoresAyanamsaInFingerprint(t *testing.T) {
	a, _ := newAssembler(t, nil)
	store := trace.NewMemoryStore()
	a.Traces = store
	ctx := context.Background()

	bare, err := a.Calculate(ctx, parisInput(), natal.Options{UserID: "user-trop"})
	require.NoError(t, err)
	first, err := store.GetLatest(ctx, "user-trop")
	require.NoError(t, err)

	// A stray ayanamsa on a tropical run changes neither result nor hash.
	ayanamsa := contracts.AyanamsaLahiri
	decorated, err := a.Calculate(ctx, parisInput(), natal.Options{
		UserID: "user-trop", Ayanamsa: &ayanamsa,
	})
	require.NoError(t, err)
	second, err := store.GetLatest(ctx, "user-trop")
	require.NoError(t, err)

	assert.Nil(t, bare.Ayanamsa)
	assert.Nil(t, decorated.Ayanamsa)
	assert.Equal(t, first.InputHash, second.InputHash)
}

func TestNoTraceWithoutUserID(t *testing.T) {
	a, _ := newAssembler(t, nil)
	store := trace.NewMemoryStore()
	a.Traces = store

	_, err := a.Calculate(context.Background(), parisInput(), natal.Options{})
	require.NoError(t, err)
	_, err = store.GetLatest(context.Background(), "")
	assert.ErrorIs(t, err, trace.ErrNotFound)
}
