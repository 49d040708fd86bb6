// Copyright 2026 the kretalogin contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package pversion reports which code a kretalogin binary was built from.
package pversion

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/coreos/go-semver/semver"
)

// readBuildInfo is meant to be overwritten by tests.
//
//nolint:gochecknoglobals // these are swapped during unit tests.
var readBuildInfo = debug.ReadBuildInfo

// gitVersion is set using a linker flag
// -ldflags "-X 'go.kretalogin.dev/internal/pversion.gitVersion=v9.8.7'"
// (or set for unit tests).
//
//nolint:gochecknoglobals // these are swapped during unit tests.
var gitVersion string

// Info describes a build.
type Info struct {
	Major        string `json:"major"`
	Minor        string `json:"minor"`
	Patch        string `json:"patch"`
	GitVersion   string `json:"gitVersion"`
	GitCommit    string `json:"gitCommit,omitempty"`
	GitTreeState string `json:"gitTreeState"`
	BuildDate    string `json:"buildDate,omitempty"`
	GoVersion    string `json:"goVersion"`
	Compiler     string `json:"compiler"`
	Platform     string `json:"platform"`
}

// String returns the git version, which is the most useful single line description of a build.
func (i Info) String() string {
	return i.GitVersion
}

// Get returns the overall codebase version, combining the linker provided version with
// the VCS information that the Go toolchain embeds at build time.
func Get() Info {
	info := Info{
		Major:        "0",
		Minor:        "0",
		Patch:        "0",
		GitVersion:   "v0.0.0",
		GitTreeState: "dirty",
		GoVersion:    runtime.Version(),
		Compiler:     runtime.Compiler,
		Platform:     fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}

	gitVersionSemver, err := semver.NewVersion(strings.TrimPrefix(gitVersion, "v"))
	if err == nil && gitVersionSemver != nil {
		info.GitVersion = gitVersion
		info.Major = fmt.Sprintf("%d", gitVersionSemver.Major)
		info.Minor = fmt.Sprintf("%d", gitVersionSemver.Minor)
		info.Patch = fmt.Sprintf("%d", gitVersionSemver.Patch)
	}

	if debugBuildInfo, ok := readBuildInfo(); ok {
		for _, buildSetting := range debugBuildInfo.Settings {
			switch buildSetting.Key {
			case "vcs.revision":
				info.GitCommit = buildSetting.Value
			case "vcs.time":
				info.BuildDate = buildSetting.Value
			case "vcs.modified":
				if buildSetting.Value == "false" {
					info.GitTreeState = "clean"
				}
			}
		}
	}

	if info.GitVersion == "v0.0.0" && info.GitCommit != "" {
		info.GitVersion += fmt.Sprintf("-%s-%s", shorten(info.GitCommit, 8), info.GitTreeState)
	}

	return info
}

func shorten(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
