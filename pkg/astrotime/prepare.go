package astrotime

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Orrery-Labs/natal/core/pkg/contracts"
	"github.com/Orrery-Labs/natal/core/pkg/natalerr"
	"github.com/Orrery-Labs/natal/core/pkg/observability"
)

// JDUnixEpoch is the Julian Day of 1970-01-01T00:00:00 UT.
const JDUnixEpoch = 2440587.5

// Preparer turns BirthInput into BirthPrepared.
//
//nolint:govet // fieldalignment: struct layout is human-readable
type Preparer struct {
	TZ            TimezoneDatabase
	DeriveEnabled bool
	Sink          observability.MetricsSink
	Logger        *slog.Logger
}

// NewPreparer wires a preparer with defaults for nil collaborators.
func NewPreparer(tz TimezoneDatabase, deriveEnabled bool, sink observability.MetricsSink, logger *slog.Logger) *Preparer {
	if tz == nil {
		tz = StdDatabase{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Preparer{
		TZ:            tz,
		DeriveEnabled: deriveEnabled,
		Sink:          observability.OrNop(sink),
		Logger:        logger.With("component", "astrotime"),
	}
}

var timePattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2})(?:[.,](\d{1,9}))?)?$`)

// Prepare resolves the birth event. Identical inputs yield bit-identical
// outputs.
func (p *Preparer) Prepare(input contracts.BirthInput, ttEnabled bool) (contracts.BirthPrepared, error) {
	if err := validateInput(input); err != nil {
		return contracts.BirthPrepared{}, err
	}

	date, err := time.Parse("2006-01-02", input.BirthDate)
	if err != nil {
		return contracts.BirthPrepared{}, natalerr.New(natalerr.CodeInvalidBirthInput, "birth date must be an ISO calendar date").
			WithDetail("field", "birth_date")
	}

	hour, minute, sec, nanos, err := parseWallClock(input.BirthTime)
	if err != nil {
		return contracts.BirthPrepared{}, err
	}

	zoneName, source, err := p.resolveZoneName(input)
	if err != nil {
		return contracts.BirthPrepared{}, err
	}

	loc, err := p.TZ.Load(zoneName)
	if err != nil {
		p.Sink.IncrCounter("natal_preparation_timezone_errors_total", 1)
		return contracts.BirthPrepared{}, natalerr.New(natalerr.CodeInvalidTimezone, "timezone is not a valid IANA name").
			WithDetail("timezone", zoneName)
	}

	local, err := p.attachStrict(date.Year(), date.Month(), date.Day(), hour, minute, sec, nanos, zoneName, loc)
	if err != nil {
		return contracts.BirthPrepared{}, err
	}

	utc := local.In(time.UTC)
	epochSeconds := float64(utc.Unix()) + float64(utc.Nanosecond())/1e9
	jdUT := epochSeconds/86400.0 + JDUnixEpoch

	prepared := contracts.BirthPrepared{
		BirthDatetimeLocal: formatISO(local),
		BirthDatetimeUTC:   formatISO(utc),
		TimestampUTC:       utc.Unix(),
		JDUT:               jdUT,
		TimezoneIANA:       zoneName,
		TimezoneSource:     source,
		TimeScale:          contracts.TimeScaleUT,
	}

	if ttEnabled {
		deltaT := DeltaTSeconds(utc.Year(), int(utc.Month()))
		jdTT := jdUT + deltaT/86400.0
		prepared.TimeScale = contracts.TimeScaleTT
		prepared.DeltaTSec = &deltaT
		prepared.JDTT = &jdTT
	}

	return prepared, nil
}

func validateInput(input contracts.BirthInput) error {
	if strings.TrimSpace(input.BirthDate) == "" {
		return natalerr.New(natalerr.CodeInvalidBirthInput, "birth date is required").
			WithDetail("field", "birth_date")
	}
	if len(input.BirthPlace) > contracts.MaxBirthPlaceLength {
		return natalerr.New(natalerr.CodeInvalidBirthInput, "birth place exceeds maximum length").
			WithDetail("field", "birth_place")
	}
	if input.BirthLat != nil && (math.Abs(*input.BirthLat) > 90 || math.IsNaN(*input.BirthLat)) {
		return natalerr.New(natalerr.CodeInvalidBirthInput, "latitude out of range").
			WithDetail("field", "birth_lat")
	}
	if input.BirthLon != nil && (math.Abs(*input.BirthLon) > 180 || math.IsNaN(*input.BirthLon)) {
		return natalerr.New(natalerr.CodeInvalidBirthInput, "longitude out of range").
			WithDetail("field", "birth_lon")
	}
	return nil
}

// parseWallClock accepts H:MM, HH:MM, HH:MM:SS with optional fractional
// seconds. An absent time means local midnight.
func parseWallClock(raw string) (hour, minute, sec, nanos int, err error) {
	if raw == "" {
		return 0, 0, 0, 0, nil
	}
	m := timePattern.FindStringSubmatch(raw)
	if m == nil {
		return 0, 0, 0, 0, natalerr.New(natalerr.CodeInvalidBirthInput, "birth time format not recognized").
			WithDetail("field", "birth_time")
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		sec, _ = strconv.Atoi(m[3])
	}
	if m[4] != "" {
		frac := m[4] + strings.Repeat("0", 9-len(m[4]))
		nanos, _ = strconv.Atoi(frac)
	}
	if hour > 23 || minute > 59 || sec > 59 {
		return 0, 0, 0, 0, natalerr.New(natalerr.CodeInvalidBirthInput, "birth time out of range").
			WithDetail("field", "birth_time")
	}
	return hour, minute, sec, nanos, nil
}

func (p *Preparer) resolveZoneName(input contracts.BirthInput) (string, contracts.TimezoneSource, error) {
	if input.BirthTimezone != "" {
		return input.BirthTimezone, contracts.TimezoneUserProvided, nil
	}
	if p.DeriveEnabled {
		if !input.HasCoordinates() {
			return "", "", natalerr.New(natalerr.CodeMissingCoordinates, "timezone derivation requires coordinates")
		}
		zone, err := p.TZ.ZoneFor(*input.BirthLat, *input.BirthLon)
		if err != nil {
			p.Sink.IncrCounter("natal_preparation_timezone_errors_total", 1)
			return "", "", natalerr.New(natalerr.CodeInvalidTimezone, "timezone derivation failed").Wrap(err)
		}
		return zone, contracts.TimezoneDerived, nil
	}
	return "", "", natalerr.New(natalerr.CodeMissingTimezone, "timezone is required")
}

// attachStrict binds a wall clock to a zone. An ambiguous reading (DST
// fold) and a non-existent one (spring-forward gap) are both errors; the
// zone database decides, never a silent pick.
func (p *Preparer) attachStrict(year int, month time.Month, day, hour, minute, sec, nanos int, zoneName string, loc *time.Location) (time.Time, error) {
	wallUTC := time.Date(year, month, day, hour, minute, sec, nanos, time.UTC)
	probe := time.Date(year, month, day, hour, minute, sec, nanos, loc)

	// Offsets in effect around the wall reading. A transition inside the
	// window yields two distinct offsets and therefore two candidates.
	offsets := distinctOffsets(
		zoneOffset(probe.Add(-24*time.Hour)),
		zoneOffset(probe),
		zoneOffset(probe.Add(24*time.Hour)),
	)

	var candidates []time.Time
	for _, off := range offsets {
		cand := wallUTC.Add(-time.Duration(off) * time.Second)
		if sameWallClock(cand.In(loc), year, month, day, hour, minute, sec, nanos) {
			candidates = append(candidates, cand)
		}
	}

	switch len(candidates) {
	case 1:
		return candidates[0].In(loc), nil
	case 0:
		p.Sink.IncrCounter("time_ambiguity_total", 1, observability.L("type", "nonexistent"))
		return time.Time{}, natalerr.New(natalerr.CodeNonexistentLocalTime, "local time does not exist in this timezone").
			WithDetail("timezone", zoneName).
			WithDetail("local_datetime", fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d", year, month, day, hour, minute, sec))
	default:
		// Earlier instant first, so the pre-transition offset leads.
		sortByInstant(candidates)
		offsetsISO := make([]string, 0, len(candidates))
		for _, cand := range candidates {
			offsetsISO = append(offsetsISO, formatOffset(zoneOffset(cand.In(loc))))
		}
		p.Sink.IncrCounter("time_ambiguity_total", 1, observability.L("type", "ambiguous"))
		return time.Time{}, natalerr.New(natalerr.CodeAmbiguousLocalTime, "local time is ambiguous in this timezone").
			WithDetail("timezone", zoneName).
			WithDetail("candidate_offsets", offsetsISO)
	}
}

func zoneOffset(t time.Time) int {
	_, off := t.Zone()
	return off
}

func distinctOffsets(offsets ...int) []int {
	var out []int
	seen := make(map[int]bool)
	for _, off := range offsets {
		if !seen[off] {
			seen[off] = true
			out = append(out, off)
		}
	}
	return out
}

func sameWallClock(t time.Time, year int, month time.Month, day, hour, minute, sec, nanos int) bool {
	return t.Year() == year && t.Month() == month && t.Day() == day &&
		t.Hour() == hour && t.Minute() == minute && t.Second() == sec && t.Nanosecond() == nanos
}

func sortByInstant(ts []time.Time) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].Before(ts[j-1]); j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

// formatOffset renders a UTC offset as ±HH:MM.
func formatOffset(seconds int) string {
	sign := "+"
	if seconds < 0 {
		sign = "-"
		seconds = -seconds
	}
	return fmt.Sprintf("%s%02d:%02d", sign, seconds/3600, (seconds%3600)/60)
}

// formatISO renders an instant as ISO-8601 with a numeric offset,
// preserving fractional seconds when present.
func formatISO(t time.Time) string {
	if t.Nanosecond() != 0 {
		return t.Format("2006-01-02T15:04:05.999999999-07:00")
	}
	return t.Format("2006-01-02T15:04:05-07:00")
}
