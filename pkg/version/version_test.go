package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()

	for _, want := range []string{"inputright version", "dev", "unknown", runtime.Version()} {
		if !strings.Contains(info, want) {
			t.Errorf("version info %q should contain %q", info, want)
		}
	}
}

func TestCustomValues(t *testing.T) {
	originalVersion, originalCommit, originalBuildTime := Version, GitCommit, BuildTime
	defer func() {
		Version, GitCommit, BuildTime = originalVersion, originalCommit, originalBuildTime
	}()

	Version = "v1.0.0"
	GitCommit = "abc123"
	BuildTime = "2024-01-01T00:00:00Z"

	info := GetVersionInfo()
	for _, want := range []string{"v1.0.0", "abc123", "2024-01-01T00:00:00Z"} {
		if !strings.Contains(info, want) {
			t.Errorf("version info %q should contain %q", info, want)
		}
	}

	if got := UserAgent(); got != "inputright/v1.0.0" {
		t.Errorf("UserAgent() = %q", got)
	}
}
