package dispatch

import (
	"fmt"

	"studypair/internal/matching"
	"studypair/internal/services"
)

// Fault operations.
const (
	OpLaunch = "launch"
	OpProbe  = "probe"
	OpPanic  = "panic"
)

// LaunchFault is the fatal error that ends a dispatch run.
type LaunchFault struct {
	Op string
	// Index is the position of the in-flight pair, or -1 when the fault
	// happened after every pair was admitted.
	Index int
	Pair  matching.Pair
	Err   error
}

func (f *LaunchFault) Error() string {
	if f.Index < 0 {
		return fmt.Sprintf("dispatch %s failed: %v", f.Op, f.Err)
	}
	return fmt.Sprintf("dispatch %s failed at pair %d (study %s): %v", f.Op, f.Index, f.Pair.StudyUID, f.Err)
}

// Unwrap exposes the external-tool marker and the underlying error.
func (f *LaunchFault) Unwrap() []error {
	return []error{services.ErrExternalTool, f.Err}
}
