package adapter

import (
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/mod/semver"
)

// execCommand is overridable in tests.
var execCommand = exec.Command

// CheckMinVersion runs "<binary> --version", extracts the first
// "vX.Y.Z"-shaped token from its output, and compares it against minVersion
// (also "vX.Y.Z"). It returns a clear ExternalTool-flavored error instead
// of the bare "binary not found" that IsAvailable alone would give,
// distinguishing "missing" from "present but too old".
func CheckMinVersion(binary, minVersion string) error {
	if !semver.IsValid(minVersion) {
		return fmt.Errorf("adapter: invalid minimum version %q", minVersion)
	}
	out, err := execCommand(binary, "--version").Output()
	if err != nil {
		return fmt.Errorf("adapter: %s not found on PATH: %w", binary, err)
	}

	version := extractSemver(string(out))
	if version == "" {
		return fmt.Errorf("adapter: could not parse version from %q", binary)
	}
	if semver.Compare(version, minVersion) < 0 {
		return fmt.Errorf("adapter: %s version %s is older than required %s", binary, version, minVersion)
	}
	return nil
}

func extractSemver(s string) string {
	for _, field := range strings.Fields(s) {
		field = strings.TrimPrefix(field, "version")
		field = strings.Trim(field, ",")
		candidate := field
		if !strings.HasPrefix(candidate, "v") {
			candidate = "v" + candidate
		}
		if semver.IsValid(candidate) {
			return candidate
		}
	}
	return ""
}
