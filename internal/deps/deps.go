package deps

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// CommWidth is the longest process name the kernel records in
// /proc/<pid>/comm and /proc/<pid>/stat.
const CommWidth = 15

// Binary reports how a configured job executable resolves on this host.
type Binary struct {
	Command string
	// Path is the absolute location found on PATH or on disk.
	Path string
	// Comm is the name running instances carry in the process table.
	Comm      string
	Available bool
	Detail    string
}

// ResolveBinary looks up command the way exec.Command will when a job is
// launched. Commands containing a path separator must exist and be
// executable; bare names are searched on PATH.
func ResolveBinary(command string) Binary {
	command = strings.TrimSpace(command)
	b := Binary{Command: command}
	if command == "" {
		b.Detail = "command not configured"
		return b
	}
	b.Comm = CommName(command)

	if strings.ContainsRune(command, filepath.Separator) {
		info, err := os.Stat(command)
		switch {
		case errors.Is(err, os.ErrNotExist):
			b.Detail = fmt.Sprintf("%s does not exist", command)
			return b
		case err != nil:
			b.Detail = fmt.Sprintf("stat %s: %v", command, err)
			return b
		case info.IsDir():
			b.Detail = fmt.Sprintf("%s is a directory", command)
			return b
		}
		if err := unix.Access(command, unix.X_OK); err != nil {
			b.Detail = fmt.Sprintf("%s is not executable", command)
			return b
		}
	}

	resolved, err := exec.LookPath(command)
	if err != nil {
		b.Detail = fmt.Sprintf("binary %q not found", command)
		return b
	}
	if abs, err := filepath.Abs(resolved); err == nil {
		resolved = abs
	}
	b.Path = resolved
	b.Available = true
	return b
}

// CommName returns the process-table name of the executable at command.
func CommName(command string) string {
	name := filepath.Base(strings.TrimSpace(command))
	if len(name) > CommWidth {
		name = name[:CommWidth]
	}
	return name
}
