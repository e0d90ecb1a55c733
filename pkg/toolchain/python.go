// Package toolchain provisions the language runtimes a job needs:
// a Python interpreter with a per-job virtualenv, and a Java runtime
// for the trace server.
package toolchain

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/tracekit/ci-harness/pkg/errors"
)

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// Python represents a resolved Python interpreter.
type Python struct {
	// Path is the interpreter binary.
	Path string
	// Version is the "major.minor" version it reported.
	Version string
}

// FindPython resolves an interpreter for the requested "major.minor"
// version. It probes the versioned binary name first, then the generic
// ones, verifying each candidate's reported version.
func FindPython(ctx context.Context, version string) (*Python, error) {
	candidates := []string{"python" + version, "python3", "python"}

	var probed []string
	for _, name := range candidates {
		path, err := lookPath(name)
		if err != nil {
			continue
		}
		probed = append(probed, path)

		got, err := interpreterVersion(ctx, path)
		if err != nil {
			continue
		}
		if got == version {
			return &Python{Path: path, Version: got}, nil
		}
	}

	return nil, errors.ProvisionError(
		fmt.Sprintf("no python %s interpreter found (probed %s)", version, strings.Join(probed, ", ")), nil)
}

// interpreterVersion asks an interpreter for its "major.minor" version.
func interpreterVersion(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, path, "-c", `import sys; print("%d.%d" % sys.version_info[:2])`)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", path, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// VirtualEnv is a per-job Python virtual environment.
type VirtualEnv struct {
	Dir    string
	logger *slog.Logger
}

// CreateVenv creates a virtual environment under dir using the given
// interpreter.
func CreateVenv(ctx context.Context, py *Python, dir string, logger *slog.Logger) (*VirtualEnv, error) {
	cmd := exec.CommandContext(ctx, py.Path, "-m", "venv", dir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, errors.ProvisionError(
			fmt.Sprintf("venv creation failed: %s", strings.TrimSpace(string(out))), err)
	}
	logger.Debug("virtualenv created", "dir", dir, "python", py.Path)
	return &VirtualEnv{Dir: dir, logger: logger}, nil
}

// Python returns the interpreter inside the virtualenv.
func (v *VirtualEnv) Python() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(v.Dir, "Scripts", "python.exe")
	}
	return filepath.Join(v.Dir, "bin", "python")
}

// BinDir returns the virtualenv's executable directory, for PATH injection.
func (v *VirtualEnv) BinDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(v.Dir, "Scripts")
	}
	return filepath.Join(v.Dir, "bin")
}

// pip runs "python -m pip" inside the virtualenv.
func (v *VirtualEnv) pip(ctx context.Context, args ...string) error {
	full := append([]string{"-m", "pip"}, args...)
	cmd := exec.CommandContext(ctx, v.Python(), full...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.ProvisionError(
			fmt.Sprintf("pip %s failed: %s", strings.Join(args, " "), tail(string(out), 2048)), err)
	}
	v.logger.Debug("pip finished", "args", strings.Join(args, " "))
	return nil
}

// InstallSpec describes what to install into a virtualenv.
type InstallSpec struct {
	// Requirements files; missing files are skipped with a log entry.
	Requirements []string
	// Packages are explicit pip package specs.
	Packages []string
	// UpgradePip upgrades pip itself before installing.
	UpgradePip bool
}

// Install installs the requested dependencies into the virtualenv.
func (v *VirtualEnv) Install(ctx context.Context, spec InstallSpec) error {
	if spec.UpgradePip {
		if err := v.pip(ctx, "install", "--upgrade", "pip"); err != nil {
			return err
		}
	}

	for _, req := range spec.Requirements {
		if _, err := os.Stat(req); err != nil {
			// Install-if-present: a project without a requirements file
			// is not an error.
			v.logger.Info("requirements file not found, skipping", "file", req)
			continue
		}
		if err := v.pip(ctx, "install", "-r", req); err != nil {
			return err
		}
	}

	if len(spec.Packages) > 0 {
		args := append([]string{"install"}, spec.Packages...)
		if err := v.pip(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

// tail returns the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(s[len(s)-n:])
}
