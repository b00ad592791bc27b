// SPDX-License-Identifier: MIT
//
// Package build exposes the version metadata linked into the binary:
//
//	go build -ldflags "-X trackscan/pkg/build.buildName=trackscan \
//	  -X trackscan/pkg/build.buildVersion=0.3.0 \
//	  -X trackscan/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	  -X trackscan/pkg/build.buildTime=$(date -u +%FT%TZ)"
//
// Development builds run without these flags and report "dev".
package build

import (
	"errors"
	"fmt"
)

// Info is the build metadata reported by --version and the health endpoint.
type Info struct {
	Name    string `json:"name"`
	Time    string `json:"time"`
	Commit  string `json:"commit"`
	Version string `json:"version"`
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// Set by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = devInfo()
)

func devInfo() Info {
	return Info{Name: "trackscan", Time: "unknown", Commit: "unknown", Version: "dev"}
}

// Initialize copies the linker-provided values. It reports every missing
// flag; the development defaults stay in place for those.
func Initialize() error {
	var errs []error
	set := func(dst *string, v, flag string) {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", flag))
			return
		}
		*dst = v
	}
	set(&buildInfo.Name, buildName, "BuildName")
	set(&buildInfo.Time, buildTime, "BuildTime")
	set(&buildInfo.Commit, buildCommit, "BuildCommit")
	set(&buildInfo.Version, buildVersion, "BuildVersion")
	return errors.Join(errs...)
}

// Get returns the current build information.
func Get() Info {
	return buildInfo
}
