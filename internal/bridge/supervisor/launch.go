package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// resolveLaunch decides the subprocess command to run, trying an ordered
// list of candidates before falling back to a package-runner invocation
// (spec §4.3 "Launch resolution"), the way bhandras-delight's launcher
// resolution tries several candidate paths before giving up. viaPackageRunner
// reports whether the fallback was used, so spawn knows to apply the
// offline-preferred environment hint to that invocation only.
func resolveLaunch(binaryPath, packageName, projectRoot string) (command string, args []string, viaPackageRunner bool, err error) {
	candidates := []string{}
	if binaryPath != "" {
		candidates = append(candidates, binaryPath)
	}
	candidates = append(candidates,
		filepath.Join(projectRoot, "node_modules", ".bin", "gemini"),
		"gemini",
	)

	for _, c := range candidates {
		if resolved, ok := lookup(c); ok {
			return resolved, nil, false, nil
		}
	}

	if packageName == "" {
		packageName = "@google/gemini-cli"
	}
	return "npx", []string{"--yes", packageName}, true, nil
}

// lookup reports whether candidate resolves to an executable, either as an
// absolute/relative path or via PATH lookup.
func lookup(candidate string) (string, bool) {
	if candidate == "" {
		return "", false
	}
	if strings.ContainsRune(candidate, os.PathSeparator) {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		return "", false
	}
	if resolved, err := exec.LookPath(candidate); err == nil {
		return resolved, true
	}
	return "", false
}

// versionProbe runs "<command> --version" and returns its trimmed combined
// output, for a one-line startup log (spec §4.3 "Log the resolved command
// and a one-line version probe").
func versionProbe(ctx context.Context, command string, args []string) string {
	probeArgs := append(append([]string{}, args...), "--version")
	cmd := exec.CommandContext(ctx, command, probeArgs...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Sprintf("(version probe failed: %v)", err)
	}
	return strings.TrimSpace(string(out))
}

// packageRunnerEnv appends an "offline-preferred" hint for the package
// runner fallback, so a package already cached locally is reused instead of
// refetched on every restart (spec §4.3 "Launch resolution").
func packageRunnerEnv(base []string) []string {
	return append(append([]string{}, base...), "NPM_CONFIG_PREFER_OFFLINE=true")
}
