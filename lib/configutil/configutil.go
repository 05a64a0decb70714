package configutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"github.com/titanous/json5"
)

// ErrInvalidConfig is wrapped by every configuration error, missing required
// values included. It is never retried.
var ErrInvalidConfig = errors.New("configuration error")

// Invalid creates an error wrapping ErrInvalidConfig.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func splitExt(f string) (string, string) {
	for i := len(f) - 1; i >= 0; i-- {
		if f[i] == '.' {
			return f[0:i], f[i+1:]
		}
	}
	return f, ""
}

// localName returns the path of the local override for a config file,
// "dir/app.json5" becomes "dir/app.local.json5".
func localName(name string) string {
	prefixname, ext := splitExt(filepath.Base(name))
	return filepath.Join(
		filepath.Dir(name),
		fmt.Sprintf("%s.local.%s", prefixname, ext),
	)
}

// reads a configuration file, `name` should come with a file extension,
// it will automatically be lopped off to produce the other extensions.
// this function will merge the following files, where higher number is more prioritized.
// 1. <name>.<ext>
// 2. <name>.local.<ext>
func ReadConfig[T any](name string) (T, error) {
	var out T
	allNotFound := true

	defaultFile, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(defaultFile) > 0 {
		err = json5.Unmarshal(defaultFile, &out)
		if err != nil {
			return out, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, name, err)
		}
		allNotFound = false
	}

	localFilepath := localName(name)
	localFile, err := os.ReadFile(localFilepath)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(localFile) > 0 {
		var override T
		err = json5.Unmarshal(localFile, &override)
		if err != nil {
			return out, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, localFilepath, err)
		}
		err = mergo.Merge(&out, override, mergo.WithOverride)
		if err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", localFilepath)
		allNotFound = false
	}

	if allNotFound {
		return out, os.ErrNotExist
	}

	return out, nil
}

// ReadConfig but it recursively goes up the filesystem until the root
// to find a configuration file matching the name.
func ReadRecursively[T any](name string) (T, error) {
	var defaultOut T

	root, err := filepath.Abs("/")
	if err != nil {
		return defaultOut, err
	}
	current, err := os.Getwd()
	if err != nil {
		return defaultOut, err
	}

	for current != root {
		config, err := ReadConfig[T](filepath.Join(current, name))
		if os.IsNotExist(err) {
			current = filepath.Dir(current)
			continue
		}
		if err != nil {
			return defaultOut, err
		}

		return config, nil
	}

	return defaultOut, os.ErrNotExist
}

// Load decodes the config at `name` and its local override (see ReadConfig)
// over a copy of `defaults`, then applies environment overrides (see
// ApplyEnv). Keys present in a file win over the defaults even when they hold
// a zero value, absent keys keep their default. A missing config file is not
// an error, the defaults are used instead.
func Load[T any](name string, defaults T) (T, error) {
	out, err := clone(defaults)
	if err != nil {
		return out, err
	}

	found := false
	for _, path := range []string{name, localName(name)} {
		ok, err := decodeOver(path, &out)
		if err != nil {
			return out, err
		}
		if ok && path != name {
			slog.Info("merging config with local overrides", "local", path)
		}
		found = found || ok
	}
	if !found {
		slog.Warn("config file not found, using defaults", "name", name)
	}

	err = ApplyEnv(&out)
	if err != nil {
		return out, err
	}
	return out, nil
}

// clone deep copies a config value so decoding into it never writes through
// to slices or maps shared with the caller's defaults.
func clone[T any](v T) (T, error) {
	var out T
	data, err := json.Marshal(v)
	if err != nil {
		return out, fmt.Errorf("copy defaults: %w", err)
	}
	err = json.Unmarshal(data, &out)
	if err != nil {
		return out, fmt.Errorf("copy defaults: %w", err)
	}
	return out, nil
}

func decodeOver[T any](path string, out *T) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	err = json5.Unmarshal(data, out)
	if err != nil {
		return false, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	return true, nil
}

// ApplyEnv overwrites fields tagged with `env:"NAME"` when the variable NAME
// is set, fields whose variables are unset are left untouched.
func ApplyEnv[T any](out *T) error {
	err := env.Parse(out)
	if err != nil {
		return fmt.Errorf("%w: environment: %v", ErrInvalidConfig, err)
	}
	return nil
}
