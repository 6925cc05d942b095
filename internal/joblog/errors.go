package joblog

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

const blockSeparator = "----------------------------------------------------------------"

// Fault describes one failure written to the error log.
type Fault struct {
	Message string
	Err     error
	// Cause is the underlying error, when distinct from Err.
	Cause error
	// Stack is the captured goroutine stack; the sink captures its own when
	// empty.
	Stack []byte
}

// ErrorSink appends free-text fault blocks.
type ErrorSink struct {
	out   *appender
	now   func() time.Time
	newID func() string
	usage func() string
}

// NewErrorSink returns a sink appending to path. An empty path yields a
// sink that discards faults.
func NewErrorSink(path string, opts Options) *ErrorSink {
	return &ErrorSink{
		out:   newAppender(path, opts, "error_log"),
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
		usage: resourceSnapshot,
	}
}

// Path returns the destination file.
func (s *ErrorSink) Path() string {
	if s == nil || s.out == nil {
		return ""
	}
	return s.out.path
}

// Report appends one fault block and returns its identifier.
func (s *ErrorSink) Report(f Fault) (string, error) {
	if s == nil {
		return "", nil
	}
	id := s.newID()
	if len(f.Stack) == 0 {
		f.Stack = debug.Stack()
	}
	block := s.format(id, f)
	return id, s.out.write(func(file *os.File) error {
		_, err := file.WriteString(block)
		return err
	})
}

func (s *ErrorSink) format(id string, f Fault) string {
	var b strings.Builder
	fmt.Fprintf(&b, "timestamp: %s\n", s.now().UTC().Format(time.RFC3339Nano))
	message := strings.TrimSpace(f.Message)
	if message == "" && f.Err != nil {
		message = f.Err.Error()
	}
	fmt.Fprintf(&b, "message: %s\n", message)
	fmt.Fprintf(&b, "identifier: %s\n", id)
	if f.Err != nil {
		fmt.Fprintf(&b, "report: %+v\n", f.Err)
		fmt.Fprintf(&b, "error type: %T\n", f.Err)
	}
	b.WriteString("stack:\n")
	for _, line := range strings.Split(strings.TrimRight(string(f.Stack), "\n"), "\n") {
		b.WriteString("    ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if f.Cause != nil {
		fmt.Fprintf(&b, "cause: %v\n", f.Cause)
	}
	fmt.Fprintf(&b, "resources: %s\n", s.usage())
	b.WriteString(blockSeparator)
	b.WriteByte('\n')
	return b.String()
}

func resourceSnapshot() string {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	parts := []string{
		"goroutines=" + humanize.Comma(int64(runtime.NumGoroutine())),
		"heap=" + humanize.IBytes(mem.HeapAlloc),
	}
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err == nil {
		parts = append(parts,
			"user="+time.Duration(ru.Utime.Nano()).Round(time.Millisecond).String(),
			"sys="+time.Duration(ru.Stime.Nano()).Round(time.Millisecond).String(),
			// Linux reports max RSS in KiB.
			"maxrss="+humanize.IBytes(uint64(ru.Maxrss)*1024),
		)
	}
	var children unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_CHILDREN, &children); err == nil {
		parts = append(parts, "children_user="+time.Duration(children.Utime.Nano()).Round(time.Millisecond).String())
	}
	return strings.Join(parts, " ")
}
