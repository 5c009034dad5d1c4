package engine

import (
	"context"
	"log/slog"

	"github.com/Orrery-Labs/natal/core/pkg/contracts"
	"github.com/Orrery-Labs/natal/core/pkg/natalerr"
	"github.com/Orrery-Labs/natal/core/pkg/observability"
)

// meanElement drives the simplified engine: mean longitude at J2000 plus
// mean daily motion. Deterministic but non-physical; dev and offline use
// only.
type meanElement struct {
	code string
	lon0 float64
	rate float64
}

var meanElements = []meanElement{
	{"sun", 280.460, 0.98564736},
	{"moon", 218.316, 13.17639648},
	{"mercury", 252.251, 4.09233445},
	{"venus", 181.980, 1.60213034},
	{"mars", 355.433, 0.52402068},
	{"jupiter", 34.351, 0.08308529},
	{"saturn", 50.077, 0.03344414},
	{"uranus", 314.055, 0.01172834},
	{"neptune", 304.348, 0.00598103},
	{"pluto", 238.958, 0.00396},
}

// Simplified is the offline engine. Tropical geocentric only.
type Simplified struct {
	Sink   observability.MetricsSink
	Logger *slog.Logger
}

// NewSimplified wires the simplified engine.
func NewSimplified(sink observability.MetricsSink, logger *slog.Logger) *Simplified {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simplified{
		Sink:   observability.OrNop(sink),
		Logger: logger.With("component", "engine", "engine", "simplified"),
	}
}

func (s *Simplified) Name() contracts.Engine { return contracts.EngineSimplified }

func (s *Simplified) CalculatePlanets(_ context.Context, jdUT float64, opts Options) ([]RawPlanet, error) {
	if err := s.checkRegime(opts); err != nil {
		return nil, err
	}

	days := jdUT - J2000
	planets := make([]RawPlanet, 0, len(meanElements))
	for _, el := range meanElements {
		planets = append(planets, RawPlanet{
			Code:           el.code,
			Longitude:      Normalize360(el.lon0 + el.rate*days),
			SpeedLongitude: el.rate,
			Retrograde:     false,
		})
	}

	s.Logger.Debug("planets calculated",
		"zodiac_effective", string(contracts.ZodiacTropical),
		"ayanamsa_effective", "n/a",
		"bodies", len(planets),
	)
	return planets, nil
}

func (s *Simplified) CalculateHouses(_ context.Context, jdUT, lat, lon float64, system contracts.HouseSystem, opts Options) (HouseAngles, error) {
	if !system.Valid() {
		return HouseAngles{}, natalerr.New(natalerr.CodeUnsupportedHouseSystem, "house system not supported").
			WithDetail("house_system", string(system))
	}
	if err := s.checkRegime(opts); err != nil {
		return HouseAngles{}, err
	}

	angles, err := computeHouses(jdUT, lat, lon, system)
	if err != nil {
		s.Sink.IncrCounter("swisseph_errors_total",
			1,
			observability.L("code", natalerr.CodeHousesCalcFailed),
			observability.L("house_system", string(system)),
		)
		return HouseAngles{}, err
	}
	return angles, nil
}

func (s *Simplified) checkRegime(opts Options) error {
	if opts.Zodiac == contracts.ZodiacSidereal {
		return natalerr.New(natalerr.CodeEngineOptionUnsupported, "simplified engine only supports the tropical zodiac").
			WithDetail("zodiac", string(opts.Zodiac))
	}
	if opts.Frame == contracts.FrameTopocentric {
		return natalerr.New(natalerr.CodeEngineOptionUnsupported, "simplified engine only supports the geocentric frame").
			WithDetail("frame", string(opts.Frame))
	}
	return nil
}
