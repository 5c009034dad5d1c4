package contracts

// Engine selects the positional backend.
type Engine string

const (
	EngineSimplified Engine = "simplified"
	EngineSwiss      Engine = "swiss"
)

// Valid reports whether the engine value is recognized.
func (e Engine) Valid() bool {
	return e == EngineSimplified || e == EngineSwiss
}

// Zodiac selects the zodiac reference.
type Zodiac string

const (
	ZodiacTropical Zodiac = "tropical"
	ZodiacSidereal Zodiac = "sidereal"
)

func (z Zodiac) Valid() bool {
	return z == ZodiacTropical || z == ZodiacSidereal
}

// Frame selects the observation frame.
type Frame string

const (
	FrameGeocentric  Frame = "geocentric"
	FrameTopocentric Frame = "topocentric"
)

func (f Frame) Valid() bool {
	return f == FrameGeocentric || f == FrameTopocentric
}

// HouseSystem identifies the house division rule.
type HouseSystem string

const (
	HousePlacidus  HouseSystem = "placidus"
	HouseWholeSign HouseSystem = "whole_sign"
	HouseEqual     HouseSystem = "equal"
)

func (h HouseSystem) Valid() bool {
	return h == HousePlacidus || h == HouseWholeSign || h == HouseEqual
}

// BackendCode is the single-letter code the ephemeris backend expects.
func (h HouseSystem) BackendCode() byte {
	switch h {
	case HouseWholeSign:
		return 'W'
	case HouseEqual:
		return 'E'
	default:
		return 'P'
	}
}

// TimeScale distinguishes Universal Time from Terrestrial Time.
type TimeScale string

const (
	TimeScaleUT TimeScale = "UT"
	TimeScaleTT TimeScale = "TT"
)

// TimezoneSource records how the effective timezone was obtained.
type TimezoneSource string

const (
	TimezoneUserProvided TimezoneSource = "user_provided"
	TimezoneDerived      TimezoneSource = "derived"
)

// AspectSchool names the orb policy set used for aspect selection.
type AspectSchool string

const (
	SchoolModern  AspectSchool = "modern"
	SchoolClassic AspectSchool = "classic"
	SchoolStrict  AspectSchool = "strict"
)

func (s AspectSchool) Valid() bool {
	return s == SchoolModern || s == SchoolClassic || s == SchoolStrict
}

// Ayanamsa identifies a sidereal zodiac anchor. Only values in the
// allow-list are accepted by the swiss provider.
type Ayanamsa string

const (
	AyanamsaLahiri       Ayanamsa = "lahiri"
	AyanamsaFaganBradley Ayanamsa = "fagan_bradley"
	AyanamsaKrishnamurti Ayanamsa = "krishnamurti"
	AyanamsaRaman        Ayanamsa = "raman"
)

// AllowedAyanamsas is the closed allow-list for sidereal mode.
var AllowedAyanamsas = map[Ayanamsa]bool{
	AyanamsaLahiri:       true,
	AyanamsaFaganBradley: true,
	AyanamsaKrishnamurti: true,
	AyanamsaRaman:        true,
}

// Major aspect codes. The calculator only ever emits these.
const (
	AspectConjunction = "conjunction"
	AspectSextile     = "sextile"
	AspectSquare      = "square"
	AspectTrine       = "trine"
	AspectOpposition  = "opposition"
)

// MajorAspects is the closed major set keyed by code.
var MajorAspects = map[string]bool{
	AspectConjunction: true,
	AspectSextile:     true,
	AspectSquare:      true,
	AspectTrine:       true,
	AspectOpposition:  true,
}

// Luminaries get widened orbs when the ruleset provides one.
var Luminaries = map[string]bool{
	"sun":  true,
	"moon": true,
}
