package version

import (
	"runtime/debug"
	"testing"
)

func TestFromBuildInfo(t *testing.T) {
	info := Info{}
	fromBuildInfo(&info, &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	})
	if info.Version != "v0.3.1" || info.BuildTime != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected info %+v", info)
	}
	if got := info.String(); got != "v0.3.1 (0123456789ab-dirty)" {
		t.Fatalf("String() = %q", got)
	}
}

func TestLdflagsWin(t *testing.T) {
	info := Info{Version: "1.0.0", Commit: "abc"}
	fromBuildInfo(&info, &debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "zzz"}},
	})
	if info.Version != "1.0.0" || info.Commit != "abc" {
		t.Fatalf("ldflags values overwritten: %+v", info)
	}
	if got := info.String(); got != "1.0.0 (abc)" {
		t.Fatalf("String() = %q", got)
	}
}
