package strategy

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// MigrationFunc migrates a spec from one schema version to the next
type MigrationFunc func(*Spec) error

// migrations maps source version to migration functions
var migrations = map[string]MigrationFunc{
	// Example: "0.9" -> "1.0" migration
	// "0.9": migrateFrom09To10,
}

// Migrate upgrades a spec to the current schema version
func Migrate(s *Spec) error {
	if s == nil {
		return fmt.Errorf("spec cannot be nil")
	}

	// Already at current version
	if s.SchemaVersion == SchemaVersion {
		return nil
	}

	current, err := parseVersion(s.SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid schema version: %s", s.SchemaVersion)
	}

	target, err := semver.NewVersion(SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid target schema version: %s", SchemaVersion)
	}

	if current.GreaterThan(target) {
		return fmt.Errorf("spec schema version %s is newer than supported version %s",
			s.SchemaVersion, SchemaVersion)
	}

	for version, migrate := range migrations {
		migrationVersion, err := semver.NewVersion(version)
		if err != nil {
			continue
		}
		if current.LessThan(migrationVersion) {
			if err := migrate(s); err != nil {
				return fmt.Errorf("migration from %s failed: %w", version, err)
			}
		}
	}

	s.SchemaVersion = SchemaVersion

	return nil
}

// CheckCompatibility checks if a spec can be migrated to the current version
func CheckCompatibility(s *Spec) error {
	if s == nil {
		return fmt.Errorf("spec cannot be nil")
	}

	if s.SchemaVersion == "" {
		return fmt.Errorf("missing schema version")
	}

	current, err := parseVersion(s.SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid schema version: %s", s.SchemaVersion)
	}

	target, err := semver.NewVersion(SchemaVersion)
	if err != nil {
		return fmt.Errorf("invalid target schema version: %s", SchemaVersion)
	}

	if current.GreaterThan(target) {
		return fmt.Errorf("spec requires schema version %s, but only %s is supported",
			s.SchemaVersion, SchemaVersion)
	}

	if current.LessThan(target) {
		// Direct migration is supported within the same major version.
		if current.Major() != target.Major() {
			return fmt.Errorf("no migration path from version %s to %s",
				s.SchemaVersion, SchemaVersion)
		}
	}

	return nil
}

// GetSchemaVersion returns the current schema version
func GetSchemaVersion() string {
	return SchemaVersion
}

// CompareVersions compares two version strings.
// Returns: -1 if a < b, 0 if a == b, 1 if a > b
func CompareVersions(a, b string) (int, error) {
	va, err := parseVersion(a)
	if err != nil {
		return 0, fmt.Errorf("invalid version: %s", a)
	}

	vb, err := parseVersion(b)
	if err != nil {
		return 0, fmt.Errorf("invalid version: %s", b)
	}

	return va.Compare(vb), nil
}

// IsVersionSupported checks if a schema version is supported
func IsVersionSupported(version string) bool {
	for _, v := range SupportedSchemaVersions {
		if v == version {
			return true
		}
	}

	// Also allow patch releases of a supported major.minor
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}

	for _, supported := range SupportedSchemaVersions {
		sv, err := semver.NewVersion(supported)
		if err != nil {
			continue
		}
		if v.Major() == sv.Major() && v.Minor() == sv.Minor() {
			return true
		}
	}

	return false
}

// parseVersion parses a version string, tolerating short forms like "1.0"
func parseVersion(version string) (*semver.Version, error) {
	v, err := semver.NewVersion(version)
	if err == nil {
		return v, nil
	}
	return semver.NewVersion(version + ".0")
}

// VersionInfo contains schema version information for a spec
type VersionInfo struct {
	SchemaVersion     string `json:"schema_version"`
	IsCompatible      bool   `json:"is_compatible"`
	RequiresMigration bool   `json:"requires_migration"`
	MigrationPath     string `json:"migration_path,omitempty"`
}

// GetVersionInfo returns version information for a spec
func GetVersionInfo(s *Spec) (*VersionInfo, error) {
	if s == nil {
		return nil, fmt.Errorf("spec cannot be nil")
	}

	info := &VersionInfo{
		SchemaVersion: s.SchemaVersion,
	}

	err := CheckCompatibility(s)
	info.IsCompatible = err == nil

	if s.SchemaVersion != SchemaVersion {
		cmp, err := CompareVersions(s.SchemaVersion, SchemaVersion)
		if err == nil && cmp < 0 {
			info.RequiresMigration = true
			info.MigrationPath = fmt.Sprintf("%s -> %s", s.SchemaVersion, SchemaVersion)
		}
	}

	return info, nil
}
