package state

import (
	"fmt"
	"sync"
)

// DefaultMaxOutputLines caps the dashboard output log. Oldest lines
// are evicted first once the cap is exceeded.
const DefaultMaxOutputLines = 1000

// Event is a status update produced by a background worker. The
// dashboard is the sink that accumulates events into renderable
// fields; workers have no other channel to the UI.
type Event interface{}

// OutputLine is one line of worker or device output.
type OutputLine struct {
	Text string
}

// Progress reports task completion for the running command.
type Progress struct {
	Percent     float64
	Stage       string
	CurrentFile string
}

// Failed ends the running command with a reason. Exactly one output
// line is appended for it.
type Failed struct {
	Reason string
}

// Completed ends the running command successfully.
type Completed struct{}

// ProcessKiller force-terminates every tracked child process. Satisfied
// by procman.Registry.
type ProcessKiller interface {
	KillAll()
}

// Dashboard is the shared record between background workers and the
// renderer. All fields mutate only under the single lock; the lock is
// held per field update or line append, never across blocking I/O.
type Dashboard struct {
	mu sync.Mutex

	running         bool
	statusText      string
	progressPercent float64
	progressStage   string
	currentFile     string
	outputLines     []string
	maxLines        int

	killer ProcessKiller
}

// Snapshot is a consistent copy of the dashboard taken under lock,
// handed to the renderer once per redraw tick.
type Snapshot struct {
	Running         bool
	StatusText      string
	ProgressPercent float64
	ProgressStage   string
	CurrentFile     string
	OutputLines     []string
}

// New returns a dashboard with the given output cap. A killer may be
// nil; CancelCommand then only flips state.
func New(maxLines int, killer ProcessKiller) *Dashboard {
	if maxLines <= 0 {
		maxLines = DefaultMaxOutputLines
	}
	return &Dashboard{
		statusText: "Ready",
		maxLines:   maxLines,
		killer:     killer,
	}
}

// SetStatusText replaces the human-readable status line.
func (d *Dashboard) SetStatusText(text string) {
	d.mu.Lock()
	d.statusText = text
	d.mu.Unlock()
}

// SetProgress updates percent, stage and current file together.
// Percent is clamped to [0,100].
func (d *Dashboard) SetProgress(percent float64, stage, currentFile string) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	d.mu.Lock()
	d.progressPercent = percent
	d.progressStage = stage
	d.currentFile = currentFile
	d.mu.Unlock()
}

// SetCurrentFile updates only the file shown in the progress strip.
func (d *Dashboard) SetCurrentFile(file string) {
	d.mu.Lock()
	d.currentFile = file
	d.mu.Unlock()
}

// AddOutputLine appends a line to the output log, evicting the oldest
// lines once the cap is exceeded.
func (d *Dashboard) AddOutputLine(line string) {
	d.mu.Lock()
	d.outputLines = append(d.outputLines, line)
	if excess := len(d.outputLines) - d.maxLines; excess > 0 {
		d.outputLines = append(d.outputLines[:0], d.outputLines[excess:]...)
	}
	d.mu.Unlock()
}

// SetRunning flips the foreground-command flag.
func (d *Dashboard) SetRunning(running bool) {
	d.mu.Lock()
	d.running = running
	d.mu.Unlock()
}

// Running reports whether a foreground command owns the slot.
func (d *Dashboard) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// StartCommand claims the foreground slot: resets progress, marks
// running and echoes the invocation. Returns false without mutating
// anything if another command already holds the slot. Only the
// dispatcher calls this.
func (d *Dashboard) StartCommand(name string) bool {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return false
	}
	d.running = true
	d.progressPercent = 0
	d.progressStage = "Initializing"
	d.currentFile = ""
	d.statusText = "Running: " + name
	d.appendLocked("> " + name)
	d.mu.Unlock()
	return true
}

// CancelCommand force-kills tracked processes, releases the foreground
// slot and appends an explicit cancellation notice, distinguishable
// from a natural failure.
func (d *Dashboard) CancelCommand() {
	if d.killer != nil {
		d.killer.KillAll()
	}
	d.mu.Lock()
	d.running = false
	d.statusText = "Cancelled"
	d.appendLocked("Cancelled by user")
	d.mu.Unlock()
}

// Apply folds a worker event into the dashboard.
func (d *Dashboard) Apply(ev Event) {
	switch ev := ev.(type) {
	case OutputLine:
		d.AddOutputLine(ev.Text)
	case Progress:
		d.SetProgress(ev.Percent, ev.Stage, ev.CurrentFile)
	case Failed:
		d.mu.Lock()
		d.running = false
		d.statusText = "Error: " + ev.Reason
		d.appendLocked("Error: " + ev.Reason)
		d.mu.Unlock()
	case Completed:
		d.mu.Lock()
		d.running = false
		d.statusText = "Done"
		d.mu.Unlock()
	default:
		d.AddOutputLine(fmt.Sprintf("unhandled event %T", ev))
	}
}

// Snapshot copies the whole record under lock for one redraw.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	lines := make([]string, len(d.outputLines))
	copy(lines, d.outputLines)
	return Snapshot{
		Running:         d.running,
		StatusText:      d.statusText,
		ProgressPercent: d.progressPercent,
		ProgressStage:   d.progressStage,
		CurrentFile:     d.currentFile,
		OutputLines:     lines,
	}
}

func (d *Dashboard) appendLocked(line string) {
	d.outputLines = append(d.outputLines, line)
	if excess := len(d.outputLines) - d.maxLines; excess > 0 {
		d.outputLines = append(d.outputLines[:0], d.outputLines[excess:]...)
	}
}
