package devenv

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"gktracker/lib/configutil"
)

const statePrefix = "<dev_state>"

// StateDirEnv overrides the location of the dev state directory.
const StateDirEnv = "GKTRACKER_STATE_DIR"

var modName = regexp.MustCompile(`(?m)^module\s+(\S+)\s*$`)

func isWorkspaceRoot(dir string) bool {
	mod, err := os.ReadFile(filepath.Join(dir, "go.mod"))
	if err != nil {
		return false
	}
	matches := modName.FindSubmatch(mod)
	return len(matches) >= 2 && string(matches[1]) == "gktracker"
}

// GetWorkspaceRoot walks up from the working directory until it finds the
// go.mod of this module, the result is computed once per process.
var GetWorkspaceRoot = sync.OnceValues(func() (string, error) {
	dir, err := filepath.Abs(".")
	if err != nil {
		return "", err
	}
	for {
		if isWorkspaceRoot(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
})

// StateDir is <workspace root>/dev/.state unless StateDirEnv is set.
func StateDir() (string, error) {
	if dir := os.Getenv(StateDirEnv); dir != "" {
		return dir, nil
	}
	root, err := GetWorkspaceRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "dev", ".state"), nil
}

// GetStateConfig reads a config file (see configutil.ReadConfig) from the
// state directory.
func GetStateConfig[T any](name string) (T, error) {
	dir, err := StateDir()
	if err != nil {
		var out T
		return out, err
	}
	return configutil.ReadConfig[T](filepath.Join(dir, name))
}

// ResolvePath maps paths starting with <dev_state> into the state directory,
// creating it. Every other path is returned untouched.
func ResolvePath(path string) (string, error) {
	if !strings.HasPrefix(path, statePrefix) {
		return path, nil
	}

	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return "", err
	}

	subpath := strings.TrimLeft(strings.TrimPrefix(path, statePrefix), `/\`)
	return filepath.Join(dir, subpath), nil
}
