package notify

import (
	"log"
	"sync"
)

// Console writes notifications to the process log. It is the terminal
// counterpart of the original toast layer: transient, fire-and-forget,
// never retried.
type Console struct{}

// NewConsole creates a console notifier.
func NewConsole() *Console {
	return &Console{}
}

func (c *Console) Info(format string, args ...interface{}) {
	log.Printf("[info] "+format, args...)
}

func (c *Console) Warn(format string, args ...interface{}) {
	log.Printf("[warn] "+format, args...)
}

func (c *Console) Error(format string, args ...interface{}) {
	log.Printf("[error] "+format, args...)
}

// Recorder captures notifications for assertions. Used by the test
// suites of every workflow component; kept here the way dummy service
// implementations live beside their real counterparts.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// Entry is one recorded notification.
type Entry struct {
	Level  string
	Format string
	Args   []interface{}
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(level, format string, args []interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Format: format, Args: args})
}

func (r *Recorder) Info(format string, args ...interface{})  { r.record("info", format, args) }
func (r *Recorder) Warn(format string, args ...interface{})  { r.record("warn", format, args) }
func (r *Recorder) Error(format string, args ...interface{}) { r.record("error", format, args) }

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// CountLevel returns how many notifications of a level were recorded.
func (r *Recorder) CountLevel(level string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Level == level {
			n++
		}
	}
	return n
}
