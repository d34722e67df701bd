package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSchemaVersion(t *testing.T) {
	assert.Equal(t, "1.0", GetSchemaVersion())
}

func TestIsVersionSupported(t *testing.T) {
	tests := []struct {
		version   string
		supported bool
	}{
		{"1.0", true},
		{"1.0.0", true},
		{"1.0.3", true},
		{"2.0", false},
		{"99.0", false},
		{"garbage", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert.Equal(t, tt.supported, IsVersionSupported(tt.version))
		})
	}
}

func TestCheckCompatibility(t *testing.T) {
	s := NewDefaultSpec("Test")
	s.Assets = []string{"AAPL"}
	assert.NoError(t, CheckCompatibility(s))

	s.SchemaVersion = "99.0"
	assert.Error(t, CheckCompatibility(s))

	s.SchemaVersion = ""
	assert.Error(t, CheckCompatibility(s))

	assert.Error(t, CheckCompatibility(nil))
}

func TestMigrate_AlreadyCurrent(t *testing.T) {
	s := NewDefaultSpec("Test")
	err := Migrate(s)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, s.SchemaVersion)
}

func TestMigrate_Nil(t *testing.T) {
	err := Migrate(nil)
	assert.Error(t, err)
}

func TestMigrate_NewerVersionRejected(t *testing.T) {
	s := NewDefaultSpec("Test")
	s.SchemaVersion = "2.0"

	err := Migrate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}

func TestMigrate_InvalidVersion(t *testing.T) {
	s := NewDefaultSpec("Test")
	s.SchemaVersion = "not-a-version"

	err := Migrate(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid schema version")
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"1.0", "1.0", 0},
		{"1.0", "2.0", -1},
		{"2.0", "1.0", 1},
		{"1.0.0", "1.0.1", -1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			result, err := CompareVersions(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestCompareVersions_Invalid(t *testing.T) {
	_, err := CompareVersions("junk", "1.0")
	assert.Error(t, err)

	_, err = CompareVersions("1.0", "junk")
	assert.Error(t, err)
}

func TestGetVersionInfo(t *testing.T) {
	s := NewDefaultSpec("Test")

	info, err := GetVersionInfo(s)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, info.SchemaVersion)
	assert.True(t, info.IsCompatible)
	assert.False(t, info.RequiresMigration)
}

func TestGetVersionInfo_OlderVersion(t *testing.T) {
	s := NewDefaultSpec("Test")
	s.SchemaVersion = "0.9"

	info, err := GetVersionInfo(s)
	require.NoError(t, err)
	assert.True(t, info.RequiresMigration)
	assert.Equal(t, "0.9 -> 1.0", info.MigrationPath)
}
