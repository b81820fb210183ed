package monitoring

import "time"

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	// CapturePanic reports a value obtained from recover().
	CapturePanic(recovered any, tags map[string]string)
	Flush(timeout time.Duration)
}

// NopMonitor discards everything.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) CapturePanic(any, map[string]string)       {}
func (NopMonitor) Flush(time.Duration)                       {}

var current Monitor = NopMonitor{}

// Init sets the global monitor implementation.
func Init(m Monitor) {
	if m != nil {
		current = m
	}
}

// Current returns the global monitor.
func Current() Monitor { return current }

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	if err != nil {
		current.CaptureException(err, tags)
	}
}

// Guard runs fn and reports a panic escaping from it before re-raising it.
func Guard(tags map[string]string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			current.CapturePanic(r, tags)
			current.Flush(2 * time.Second)
			panic(r)
		}
	}()
	fn()
}

// Flush flushes buffered events.
func Flush(d time.Duration) {
	current.Flush(d)
}
