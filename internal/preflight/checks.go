package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"studypair/internal/deps"
	"studypair/internal/history"
	"studypair/internal/rules"
)

const procRoot = "/proc"

// CheckJobBinary verifies that the configured job executable resolves.
func CheckJobBinary(binary string) Result {
	const name = "Job binary"
	b := deps.ResolveBinary(binary)
	if !b.Available {
		return Result{Name: name, Detail: b.Detail}
	}
	return Result{Name: name, Passed: true, Detail: b.Path}
}

// CheckRuleFile verifies that the rule file exists and parses. An unusable
// rule file empties the batch instead of failing it, so the result is
// optional.
func CheckRuleFile(path string) Result {
	const name = "Rule file"
	set, err := rules.Load(path)
	if err != nil {
		return Result{Name: name, Optional: true, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Optional: true, Detail: fmt.Sprintf("%s (primary %s, secondary %s)", path, set.Primary, set.Secondary)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckHistoryLedger verifies that the ledger opens with the current schema.
// A ledger that does not exist yet passes when its directory is writable.
func CheckHistoryLedger(_ context.Context, path string) Result {
	const name = "History ledger"
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "path not configured"}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		dir := filepath.Dir(path)
		if err := unix.Access(dir, unix.W_OK); err != nil && !os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: directory not writable: %v)", dir, err)}
		}
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (created on first run)", path)}
	}
	store, err := history.Open(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer store.Close()
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckProcessTable verifies that the process table can be scanned and
// reports how many processes already bear the job's name.
func CheckProcessTable(root, binary string) Result {
	const name = "Process table"
	entries, err := os.ReadDir(root)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", root, err)}
	}
	comm := deps.CommName(binary)
	running := 0
	for _, entry := range entries {
		if _, err := strconv.Atoi(entry.Name()); err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, entry.Name(), "comm"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(data)) == comm {
			running++
		}
	}
	if running > 0 {
		return Result{Name: name, Passed: true, Optional: true,
			Detail: fmt.Sprintf("%d %s process(es) already running count against the limit", running, comm)}
	}
	return Result{Name: name, Passed: true, Optional: true, Detail: "readable"}
}
