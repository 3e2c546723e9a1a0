package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateSettings(t *testing.T) {
	t.Run("v1: initial defaults", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{}, 0)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 1, s.ScanHour)
		assert.Equal(t, DefaultZone, s.Zone)
	})

	t.Run("v1 to v2: keep explicit zone", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{ScanHour: 3, Zone: ZoneSICI}, 1)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, ZoneSICI, s.Zone)
		assert.Equal(t, 3, s.ScanHour)
	})

	t.Run("current version is untouched", func(t *testing.T) {
		s, changed, err := MigrateSettings(Settings{}, CurrentSettingsVersion)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, Settings{}, s)
	})
}

func TestSettingsValidate(t *testing.T) {
	t.Run("unknown zone falls back", func(t *testing.T) {
		s, diags, err := Settings{ScanHour: 2, Zone: "ATLANTIS"}.Validate()
		require.NoError(t, err)
		assert.Equal(t, DefaultZone, s.Zone)
		require.Len(t, diags, 1)
		assert.Equal(t, DiagnosticUnknownZone, diags[0].Code)
	})

	t.Run("no zone is valid", func(t *testing.T) {
		s, diags, err := Settings{ScanHour: 2}.Validate()
		require.NoError(t, err)
		assert.Empty(t, diags)
		assert.Equal(t, ZoneNone, s.Zone)
	})

	t.Run("scan hour out of range", func(t *testing.T) {
		_, _, err := Settings{ScanHour: 24}.Validate()
		assert.Error(t, err)
	})

	t.Run("default weights", func(t *testing.T) {
		assert.Equal(t, DefaultF23Weights(), Settings{}.Weights())
		w := F23Weights{F2: 0.5, F3: 0.5}
		assert.Equal(t, w, Settings{F23Weights: w}.Weights())
	})
}

func TestParseZone(t *testing.T) {
	z, err := ParseZone("sici")
	require.NoError(t, err)
	assert.Equal(t, ZoneSICI, z)

	z, err = ParseZone("none")
	require.NoError(t, err)
	assert.Equal(t, ZoneNone, z)

	_, err = ParseZone("XYZ")
	assert.Error(t, err)

	z, diag := ZoneOrDefault("XYZ")
	assert.Equal(t, DefaultZone, z)
	require.NotNil(t, diag)

	z, diag = ZoneOrDefault("CNOR")
	assert.Equal(t, ZoneCNOR, z)
	assert.Nil(t, diag)

	for _, z := range Zones() {
		assert.True(t, z.Valid(), z)
		assert.NotEqual(t, string(z), z.Name())
	}
}

func TestBand(t *testing.T) {
	for _, b := range Bands {
		parsed, err := ParseBand(b.String())
		require.NoError(t, err)
		assert.Equal(t, b, parsed)
	}
	assert.False(t, BandF23.Measured())
	assert.True(t, BandF1.Measured())
	assert.False(t, Band(9).Valid())

	var s BandSeries
	s.Append(BandF2, 0.1)
	s.Append(BandF3, 0.2)
	assert.Equal(t, 2, s.Len(BandMono))
	assert.Equal(t, 1, s.Len(BandF2))
	assert.Equal(t, 0, s.Len(BandF23))
	s.Reset()
	assert.Equal(t, 0, s.Len(BandMono))
}
