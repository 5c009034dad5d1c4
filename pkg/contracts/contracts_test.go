package contracts_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Orrery-Labs/natal/core/pkg/contracts"
)

func TestDecodeBirthInput_RejectsUnknownFields(t *testing.T) {
	_, err := contracts.DecodeBirthInput([]byte(`{"birth_date":"1990-06-15","moon_phase":"full"}`))
	require.Error(t, err)
}

func TestDecodeBirthInput_AcceptsKnownFields(t *testing.T) {
	input, err := contracts.DecodeBirthInput([]byte(`{
		"birth_date": "1990-06-15",
		"birth_time": "10:30",
		"birth_place": "Paris",
		"birth_timezone": "Europe/Paris",
		"birth_lat": 48.8566,
		"birth_lon": 2.3522,
		"place_resolved_id": "plc_1234"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "1990-06-15", input.BirthDate)
	assert.True(t, input.HasCoordinates())
	assert.Equal(t, 48.8566, *input.BirthLat)
}

func TestValidateBirthInputJSON(t *testing.T) {
	cases := map[string]struct {
		payload string
		wantErr bool
	}{
		"minimal":         {`{"birth_date":"1990-06-15","birth_place":"Paris"}`, false},
		"full":            {`{"birth_date":"1990-06-15","birth_time":"9:05","birth_place":"Paris","birth_timezone":"Europe/Paris","birth_lat":48.8566,"birth_lon":2.3522}`, false},
		"missing date":    {`{"birth_place":"Paris"}`, true},
		"bad date format": {`{"birth_date":"15/06/1990","birth_place":"Paris"}`, true},
		"bad time format": {`{"birth_date":"1990-06-15","birth_time":"noonish","birth_place":"Paris"}`, true},
		"unknown field":   {`{"birth_date":"1990-06-15","birth_place":"Paris","moon_phase":"full"}`, true},
		"latitude range":  {`{"birth_date":"1990-06-15","birth_place":"Paris","birth_lat":91.0}`, true},
		"longitude range": {`{"birth_date":"1990-06-15","birth_place":"Paris","birth_lon":-181.0}`, true},
		"empty place":     {`{"birth_date":"1990-06-15","birth_place":""}`, true},
		"not json":        {`{"birth_date"`, true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			err := contracts.ValidateBirthInputJSON([]byte(tc.payload))
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNatalResult_LegacyPayloadDefaults(t *testing.T) {
	var result contracts.NatalResult
	require.NoError(t, json.Unmarshal([]byte(`{
		"reference_version": "1.0.0",
		"ruleset_version": "1.0.0",
		"house_system": "placidus",
		"time_scale": "UT",
		"aspect_school": "modern"
	}`), &result))

	assert.Equal(t, contracts.EngineSimplified, result.Engine)
	assert.Equal(t, contracts.ZodiacTropical, result.Zodiac)
	assert.Equal(t, contracts.FrameGeocentric, result.Frame)
}

func TestNatalResult_ExplicitFieldsSurviveDecode(t *testing.T) {
	var result contracts.NatalResult
	require.NoError(t, json.Unmarshal([]byte(`{
		"engine": "swiss",
		"zodiac": "sidereal",
		"frame": "topocentric"
	}`), &result))

	assert.Equal(t, contracts.EngineSwiss, result.Engine)
	assert.Equal(t, contracts.ZodiacSidereal, result.Zodiac)
	assert.Equal(t, contracts.FrameTopocentric, result.Frame)
}

func TestAspectDef_LegacyOrbKeys(t *testing.T) {
	cases := map[string]struct {
		payload string
		want    map[string]float64
	}{
		"canonical key": {
			payload: `{"code":"square","angle":90,"default_orb_deg":6,"orb_pair_overrides":{"mars-sun":4}}`,
			want:    map[string]float64{"mars-sun": 4},
		},
		"orb_pairs alias": {
			payload: `{"code":"square","angle":90,"default_orb_deg":6,"orb_pairs":{"mars-sun":4}}`,
			want:    map[string]float64{"mars-sun": 4},
		},
		"orb_overrides alias": {
			payload: `{"code":"square","angle":90,"default_orb_deg":6,"orb_overrides":{"mars-sun":4}}`,
			want:    map[string]float64{"mars-sun": 4},
		},
		"canonical wins over alias": {
			payload: `{"code":"square","angle":90,"default_orb_deg":6,"orb_pair_overrides":{"mars-sun":4},"orb_pairs":{"mars-sun":9}}`,
			want:    map[string]float64{"mars-sun": 4},
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var def contracts.AspectDef
			require.NoError(t, json.Unmarshal([]byte(tc.payload), &def))
			assert.Equal(t, tc.want, def.OrbPairOverrides)
			assert.Equal(t, 90.0, def.Angle)
		})
	}
}

func TestSignForLongitude(t *testing.T) {
	ref := contracts.ReferenceData{Signs: []contracts.Sign{
		{Code: "aries"}, {Code: "taurus"}, {Code: "gemini"}, {Code: "cancer"},
		{Code: "leo"}, {Code: "virgo"}, {Code: "libra"}, {Code: "scorpio"},
		{Code: "sagittarius"}, {Code: "capricorn"}, {Code: "aquarius"}, {Code: "pisces"},
	}}

	assert.Equal(t, "aries", ref.SignForLongitude(0))
	assert.Equal(t, "aries", ref.SignForLongitude(29.999))
	assert.Equal(t, "taurus", ref.SignForLongitude(30))
	assert.Equal(t, "pisces", ref.SignForLongitude(359.999))
	assert.Equal(t, "cancer", ref.SignForLongitude(93))
}

func TestHouseSystem_BackendCode(t *testing.T) {
	assert.Equal(t, byte('P'), contracts.HousePlacidus.BackendCode())
	assert.Equal(t, byte('W'), contracts.HouseWholeSign.BackendCode())
	assert.Equal(t, byte('E'), contracts.HouseEqual.BackendCode())
}
