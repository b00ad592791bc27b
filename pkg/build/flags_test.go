// SPDX-License-Identifier: MIT
package build

import (
	"strings"
	"testing"
)

func setFlags(t *testing.T, name, time, commit, version string) {
	t.Helper()
	origName, origTime, origCommit, origVersion, origInfo := buildName, buildTime, buildCommit, buildVersion, buildInfo
	t.Cleanup(func() {
		buildName, buildTime, buildCommit, buildVersion, buildInfo = origName, origTime, origCommit, origVersion, origInfo
	})
	buildName, buildTime, buildCommit, buildVersion = name, time, commit, version
	buildInfo = devInfo()
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		flags      [4]string
		wantErrMsg string
	}{
		{"Missing BuildName", [4]string{"", "2025-04-13", "abcdef123", "v1.0.0"}, "BuildName is required"},
		{"Missing BuildTime", [4]string{"trackscan", "", "abcdef123", "v1.0.0"}, "BuildTime is required"},
		{"Missing BuildCommit", [4]string{"trackscan", "2025-04-13", "", "v1.0.0"}, "BuildCommit is required"},
		{"Missing BuildVersion", [4]string{"trackscan", "2025-04-13", "abcdef123", ""}, "BuildVersion is required"},
		{"Success Case", [4]string{"trackscan", "2025-04-13", "abcdef123", "v1.0.0"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setFlags(t, tt.flags[0], tt.flags[1], tt.flags[2], tt.flags[3])
			err := Initialize()

			if tt.wantErrMsg != "" {
				if err == nil || err.Error() != tt.wantErrMsg {
					t.Errorf("Initialize() error = %v, want %v", err, tt.wantErrMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}
			want := Info{Name: "trackscan", Time: "2025-04-13", Commit: "abcdef123", Version: "v1.0.0"}
			if got := Get(); got != want {
				t.Errorf("Get() = %+v, want %+v", got, want)
			}
		})
	}
}

func TestDevelopmentDefaults(t *testing.T) {
	setFlags(t, "", "", "", "")
	err := Initialize()
	if err == nil || strings.Count(err.Error(), "is required") != 4 {
		t.Fatalf("Initialize() = %v, want all four flags reported", err)
	}
	if got := Get(); got.Version != "dev" || got.Name != "trackscan" {
		t.Errorf("Get() = %+v", got)
	}
	if s := Get().String(); !strings.Contains(s, "trackscan dev") {
		t.Errorf("String() = %q", s)
	}
}
