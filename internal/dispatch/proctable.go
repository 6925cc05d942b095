package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"studypair/internal/deps"
)

// ProcessTable counts running processes whose name matches the job binary.
// Any process with that name counts, including ones this batch did not
// start.
type ProcessTable struct {
	*launcher
	procRoot string
	name     string
}

// NewProcessTable constructs a process-table supervisor.
func NewProcessTable(command Command, opts ...Option) (*ProcessTable, error) {
	l, err := newLauncher(command, opts...)
	if err != nil {
		return nil, err
	}
	return &ProcessTable{launcher: l, procRoot: "/proc", name: deps.CommName(l.command.Binary)}, nil
}

// CountRunning scans the process table for live processes named like the
// job binary. Zombies are ignored.
func (p *ProcessTable) CountRunning(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(p.procRoot)
	if err != nil {
		return 0, fmt.Errorf("read process table: %w", err)
	}
	count := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if _, err := strconv.Atoi(entry.Name()); err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(p.procRoot, entry.Name(), "stat"))
		if err != nil {
			// Processes exit between the listing and the read.
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
				continue
			}
			return 0, fmt.Errorf("read process stat: %w", err)
		}
		name, state, ok := parseStat(data)
		if !ok || state == 'Z' || state == 'X' {
			continue
		}
		if name == p.name {
			count++
		}
	}
	return count, nil
}

// parseStat extracts the command name and state from /proc/<pid>/stat. The
// name is parenthesised and may itself contain spaces or parentheses.
func parseStat(data []byte) (string, byte, bool) {
	open := bytes.IndexByte(data, '(')
	closing := bytes.LastIndexByte(data, ')')
	if open < 0 || closing < open || closing+2 >= len(data) {
		return "", 0, false
	}
	return string(data[open+1 : closing]), data[closing+2], true
}
