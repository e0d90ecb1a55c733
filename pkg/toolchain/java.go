package toolchain

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/tracekit/ci-harness/pkg/errors"
)

// javaVersionPattern matches the quoted version in `java -version` output,
// e.g. `openjdk version "17.0.9"` or `java version "1.8.0_392"`.
var javaVersionPattern = regexp.MustCompile(`version "(\d+)(?:\.(\d+))?`)

// Java represents a resolved Java runtime.
type Java struct {
	Path string
	// Major is the feature version (8, 11, 17, ...).
	Major int
}

// FindJava locates a Java runtime, preferring $JAVA_HOME over PATH.
// The trace server is a Java application; the harness only verifies a
// runtime is available, it does not install one.
func FindJava(ctx context.Context) (*Java, error) {
	var candidates []string
	if home := os.Getenv("JAVA_HOME"); home != "" {
		candidates = append(candidates, filepath.Join(home, "bin", "java"))
	}
	if path, err := lookPath("java"); err == nil {
		candidates = append(candidates, path)
	}

	if len(candidates) == 0 {
		return nil, errors.ProvisionError("no java runtime found (JAVA_HOME unset, java not in PATH)", nil)
	}

	var lastErr error
	for _, path := range candidates {
		major, err := javaMajorVersion(ctx, path)
		if err != nil {
			lastErr = err
			continue
		}
		return &Java{Path: path, Major: major}, nil
	}
	return nil, errors.ProvisionError("failed to probe java runtime", lastErr)
}

// EnsureJava verifies a Java runtime of at least minVersion is available.
// minVersion 0 accepts any runtime.
func EnsureJava(ctx context.Context, minVersion int) (*Java, error) {
	java, err := FindJava(ctx)
	if err != nil {
		return nil, err
	}
	if minVersion > 0 && java.Major < minVersion {
		return nil, errors.ProvisionError(
			fmt.Sprintf("java %d found at %s, need >= %d", java.Major, java.Path, minVersion), nil)
	}
	return java, nil
}

// javaMajorVersion runs `java -version` and extracts the feature version.
func javaMajorVersion(ctx context.Context, path string) (int, error) {
	cmd := exec.CommandContext(ctx, path, "-version")
	// java prints its version banner to stderr.
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("java -version failed: %w", err)
	}
	return parseJavaVersion(string(out))
}

// parseJavaVersion extracts the feature version from version banner text.
// Legacy "1.8" style banners report 8.
func parseJavaVersion(banner string) (int, error) {
	groups := javaVersionPattern.FindStringSubmatch(banner)
	if groups == nil {
		return 0, fmt.Errorf("unrecognized java version output: %q", tail(banner, 200))
	}
	major, err := strconv.Atoi(groups[1])
	if err != nil {
		return 0, err
	}
	if major == 1 && groups[2] != "" {
		return strconv.Atoi(groups[2])
	}
	return major, nil
}
