package restyutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"time"

	devenv "gktracker/dev/env"
	"gktracker/lib/fsutil"
)

// FilesystemOutput writes every dumped message to <dir>/<started>/<id>.http,
// each process gets its own subdirectory so earlier dumps are kept.
type FilesystemOutput struct {
	directory string
}

func NewFilesystemOutput(dir string) (FilesystemOutput, error) {
	dir, err := devenv.ResolvePath(dir)
	if err != nil {
		return FilesystemOutput{}, err
	}
	dir = filepath.Join(dir, time.Now().UTC().Format("20060102T150405Z"))
	err = os.MkdirAll(dir, 0o755)
	if err != nil {
		return FilesystemOutput{}, err
	}
	return FilesystemOutput{directory: dir}, nil
}

func (o FilesystemOutput) Dir() string {
	return o.directory
}

func (o FilesystemOutput) Write(id string, contents string) {
	err := fsutil.WriteBytes(filepath.Join(o.directory, id+".http"), []byte(contents))
	if err != nil {
		slog.Warn("failed to write http dump", "id", id, "err", err)
	}
}
