package config

import "testing"

// Without ldflags the linker-injected variables keep their development
// defaults; that is what a test binary sees.
func TestNewBuildInfoDefaults(t *testing.T) {
	info := NewBuildInfo()

	tests := []struct {
		field string
		got   string
		want  string
	}{
		{"Version", info.Version, "dev"},
		{"Commit", info.Commit, "none"},
		{"BuildTime", info.BuildTime, "unknown"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("NewBuildInfo().%s = %q, want %q", tt.field, tt.got, tt.want)
		}
	}
}

// BuildInfo is carried by value inside Config; assignment must copy cleanly.
func TestNewBuildInfoAssignsToConfig(t *testing.T) {
	cfg := Config{Build: NewBuildInfo()}
	if cfg.Build.Version != version || cfg.Build.Commit != commit || cfg.Build.BuildTime != buildTime {
		t.Errorf("Config.Build = %+v, want the package-level linker variables", cfg.Build)
	}
}
