package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/Orrery-Labs/natal/core/pkg/contracts"
	"github.com/Orrery-Labs/natal/core/pkg/ephemeris"
	"github.com/Orrery-Labs/natal/core/pkg/natalerr"
	"github.com/Orrery-Labs/natal/core/pkg/observability"
)

// swissBodies maps provider codes to backend bodies, in output order.
var swissBodies = []struct {
	code string
	body ephemeris.Body
}{
	{"sun", ephemeris.BodySun},
	{"moon", ephemeris.BodyMoon},
	{"mercury", ephemeris.BodyMercury},
	{"venus", ephemeris.BodyVenus},
	{"mars", ephemeris.BodyMars},
	{"jupiter", ephemeris.BodyJupiter},
	{"saturn", ephemeris.BodySaturn},
	{"uranus", ephemeris.BodyUranus},
	{"neptune", ephemeris.BodyNeptune},
	{"pluto", ephemeris.BodyPluto},
}

var siderealModes = map[contracts.Ayanamsa]ephemeris.SiderealMode{
	contracts.AyanamsaFaganBradley: ephemeris.SiderealFaganBradley,
	contracts.AyanamsaLahiri:       ephemeris.SiderealLahiri,
	contracts.AyanamsaRaman:        ephemeris.SiderealRaman,
	contracts.AyanamsaKrishnamurti: ephemeris.SiderealKrishnamurti,
}

// Swiss wraps the precision backend. Every backend touch goes through the
// guard; mode state never leaks across requests.
type Swiss struct {
	Guard  *ephemeris.Guard
	Sink   observability.MetricsSink
	Logger *slog.Logger
}

// NewSwiss wires the swiss engine.
func NewSwiss(guard *ephemeris.Guard, sink observability.MetricsSink, logger *slog.Logger) *Swiss {
	if logger == nil {
		logger = slog.Default()
	}
	return &Swiss{
		Guard:  guard,
		Sink:   observability.OrNop(sink),
		Logger: logger.With("component", "engine", "engine", "swiss"),
	}
}

func (s *Swiss) Name() contracts.Engine { return contracts.EngineSwiss }

func (s *Swiss) CalculatePlanets(ctx context.Context, jdUT float64, opts Options) ([]RawPlanet, error) {
	session, err := s.session(opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results := make([]ephemeris.CalcResult, len(swissBodies))
	err = s.Guard.Run(session, func(b ephemeris.Backend) error {
		for i, sb := range swissBodies {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := b.Calc(jdUT, sb.body)
			if err != nil {
				return err
			}
			results[i] = r
		}
		return nil
	})
	s.Sink.ObserveDuration("swisseph_planets_latency_ms",
		float64(time.Since(start).Microseconds())/1000.0,
		observability.L("zodiac", string(effectiveZodiac(opts))),
	)
	if err != nil {
		return nil, err
	}

	planets := make([]RawPlanet, 0, len(swissBodies))
	for i, sb := range swissBodies {
		planets = append(planets, RawPlanet{
			Code:           sb.code,
			Longitude:      Normalize360(results[i].Longitude),
			SpeedLongitude: results[i].SpeedLon,
			Retrograde:     results[i].SpeedLon < 0,
		})
	}

	s.Logger.Debug("planets calculated",
		"zodiac_effective", string(effectiveZodiac(opts)),
		"ayanamsa_effective", ayanamsaLabel(opts),
		"bodies", len(planets),
	)
	return planets, nil
}

func (s *Swiss) CalculateHouses(ctx context.Context, jdUT, lat, lon float64, system contracts.HouseSystem, opts Options) (HouseAngles, error) {
	if !system.Valid() {
		return HouseAngles{}, natalerr.New(natalerr.CodeUnsupportedHouseSystem, "house system not supported").
			WithDetail("house_system", string(system))
	}
	session, err := s.session(opts)
	if err != nil {
		return HouseAngles{}, err
	}
	if err := ctx.Err(); err != nil {
		return HouseAngles{}, err
	}

	start := time.Now()
	var raw ephemeris.HousesResult
	err = s.Guard.Run(session, func(b ephemeris.Backend) error {
		var herr error
		raw, herr = b.Houses(jdUT, lat, lon, system.BackendCode())
		return herr
	})
	s.Sink.ObserveDuration("swisseph_houses_latency_ms",
		float64(time.Since(start).Microseconds())/1000.0,
		observability.L("house_system", string(system)),
	)
	if err != nil {
		s.Sink.IncrCounter("swisseph_errors_total", 1,
			observability.L("code", natalerr.CodeHousesCalcFailed),
			observability.L("house_system", string(system)),
		)
		return HouseAngles{}, natalerr.New(natalerr.CodeHousesCalcFailed, "house computation failed").
			WithDetail("house_system", string(system)).
			WithDetail("reason", natalerr.Scrub(err.Error())).
			Wrap(err)
	}

	angles := HouseAngles{
		Ascendant:  Normalize360(raw.Ascendant),
		MC:         Normalize360(raw.MC),
		SystemName: system,
	}
	for i, c := range raw.Cusps {
		angles.Cusps[i] = Normalize360(c)
	}
	return angles, nil
}

// session validates the regime options and translates them into backend
// state.
func (s *Swiss) session(opts Options) (ephemeris.Session, error) {
	var session ephemeris.Session

	if opts.Zodiac == contracts.ZodiacSidereal {
		mode, ok := siderealModes[opts.Ayanamsa]
		if !ok {
			s.Sink.IncrCounter("swisseph_errors_total", 1,
				observability.L("code", natalerr.CodeInvalidAyanamsa))
			return session, natalerr.New(natalerr.CodeInvalidAyanamsa, "ayanamsa is not in the allow-list").
				WithDetail("ayanamsa", string(opts.Ayanamsa))
		}
		session.Sidereal = &mode
	}

	if opts.Frame == contracts.FrameTopocentric {
		session.Topocentric = &ephemeris.Observer{
			Lon:       opts.Lon,
			Lat:       opts.Lat,
			AltitudeM: opts.AltitudeM,
		}
	}
	return session, nil
}

func effectiveZodiac(opts Options) contracts.Zodiac {
	if opts.Zodiac == contracts.ZodiacSidereal {
		return contracts.ZodiacSidereal
	}
	return contracts.ZodiacTropical
}
