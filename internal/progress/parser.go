// Package progress turns raw arduino-cli output into stage and percent
// estimates for the dashboard progress bar.
package progress

import (
	"regexp"
	"strconv"
	"strings"
)

// Stage is one phase of a compile or upload run. Ranks are ordered so
// transitions can be kept monotonic even when a marker goes missing.
type Stage int

const (
	StageInitializing Stage = iota
	StageDetectingLibraries
	StageCompiling
	StageLinking
	StageGenerating
	StageUploading
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageInitializing:
		return "Initializing"
	case StageDetectingLibraries:
		return "Detecting libraries"
	case StageCompiling:
		return "Compiling"
	case StageLinking:
		return "Linking"
	case StageGenerating:
		return "Generating image"
	case StageUploading:
		return "Uploading"
	case StageComplete:
		return "Complete"
	}
	return "Unknown"
}

var (
	ansiEscape   = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)
	compilingRe  = regexp.MustCompile(`(?i)compiling\s+([^\s]+\.(?:cpp|c|ino|S))`)
	sourceFileRe = regexp.MustCompile(`([^\s/\\]+\.(?:cpp|c|ino|S))\b`)
	compiledRe   = regexp.MustCompile(`(?i)\.(?:cpp|c|ino|S)\.o\b|gcc-ar|using previously compiled file`)
	percentRe    = regexp.MustCompile(`\((\d+)\s*%\)`)
)

// StripANSI removes terminal escape sequences from one output line.
func StripANSI(line string) string {
	return ansiEscape.ReplaceAllString(line, "")
}

// span is the slice of the 0-100 bar a stage occupies.
type span struct {
	start, end float64
}

// Update is the tracker's view after consuming one line.
type Update struct {
	Percent     int
	Stage       string
	CurrentFile string
}

// Tracker consumes output lines one at a time and maintains a
// monotonic overall percentage. Compile and upload runs weight their
// stages differently, so each gets its own constructor.
type Tracker struct {
	stage       Stage
	spans       map[Stage]span
	currentFile string

	filesSeen     map[string]struct{}
	filesCompiled map[string]struct{}

	stageProgress float64
	maxPercent    float64
}

// NewCompileTracker weights the bar for a verbose compile run, where
// most wall time is spent on per-file compilation.
func NewCompileTracker() *Tracker {
	return newTracker(map[Stage]span{
		StageInitializing:       {0, 5},
		StageDetectingLibraries: {5, 15},
		StageCompiling:          {15, 65},
		StageLinking:            {65, 90},
		StageGenerating:         {90, 100},
		StageComplete:           {100, 100},
	})
}

// NewUploadTracker weights the bar for an upload run, where esptool's
// own "(NN %)" write progress dominates.
func NewUploadTracker() *Tracker {
	return newTracker(map[Stage]span{
		StageInitializing: {0, 10},
		StageUploading:    {10, 98},
		StageComplete:     {100, 100},
	})
}

func newTracker(spans map[Stage]span) *Tracker {
	return &Tracker{
		stage:         StageInitializing,
		spans:         spans,
		filesSeen:     make(map[string]struct{}),
		filesCompiled: make(map[string]struct{}),
	}
}

// Stage reports the current stage.
func (t *Tracker) Stage() Stage { return t.stage }

// CurrentFile reports the file most recently seen compiling, or "".
func (t *Tracker) CurrentFile() string { return t.currentFile }

// Observe consumes one raw output line. It reports the updated
// estimate and whether anything visible changed.
func (t *Tracker) Observe(raw string) (Update, bool) {
	line := strings.TrimSpace(StripANSI(raw))
	if line == "" {
		return t.update(), false
	}
	lower := strings.ToLower(line)

	changed := t.observeMarker(lower)
	changed = t.observeFile(line, lower) || changed
	changed = t.observePercent(lower) || changed

	before := t.maxPercent
	t.recompute()
	if t.maxPercent != before {
		changed = true
	}
	return t.update(), changed
}

// observeMarker advances the stage when a known transition marker
// appears. Transitions only move forward.
func (t *Tracker) observeMarker(lower string) bool {
	next := t.stage
	switch {
	case strings.Contains(lower, "detecting libraries"),
		strings.Contains(lower, "detecting library"):
		next = StageDetectingLibraries
	case strings.Contains(lower, "generating function prototypes"),
		strings.Contains(lower, "generating prototypes"):
		next = StageCompiling
	case strings.Contains(lower, "linking everything together"),
		strings.Contains(lower, "linking") && strings.Contains(lower, ".elf"),
		strings.Contains(lower, "gcc-ar") && t.stage < StageLinking && strings.Contains(lower, "archive"):
		next = StageLinking
	case strings.Contains(lower, "elf2image") && !strings.Contains(lower, "bootloader"):
		next = StageGenerating
	case strings.Contains(lower, "writing at"), strings.Contains(lower, "compressed ") && strings.Contains(lower, "bytes to"):
		next = StageUploading
	case strings.Contains(lower, "hard resetting"), strings.Contains(lower, "leaving..."):
		next = StageComplete
	}
	if _, ok := t.spans[next]; !ok || next <= t.stage {
		return false
	}
	t.stage = next
	t.stageProgress = 0
	if next >= StageLinking {
		t.currentFile = ""
	}
	return true
}

// observeFile tracks which source file is compiling and how many of
// the files seen so far have finished, giving intra-stage progress.
func (t *Tracker) observeFile(line, lower string) bool {
	if _, ok := t.spans[StageCompiling]; !ok {
		return false
	}
	if m := compilingRe.FindStringSubmatch(line); m != nil {
		if t.stage < StageCompiling {
			t.stage = StageCompiling
		}
		t.currentFile = m[1]
		t.filesSeen[line] = struct{}{}
		return true
	}
	if isCompileCommand(lower) {
		if t.stage < StageCompiling {
			t.stage = StageCompiling
		}
		if m := sourceFileRe.FindStringSubmatch(line); m != nil {
			t.currentFile = m[1]
		}
		t.filesSeen[line] = struct{}{}
		return true
	}
	if t.stage == StageCompiling && compiledRe.MatchString(lower) {
		t.filesCompiled[line] = struct{}{}
		return true
	}
	return false
}

func isCompileCommand(lower string) bool {
	return (strings.Contains(lower, "-g++") || strings.Contains(lower, "-gcc")) &&
		strings.Contains(lower, " -c ")
}

// observePercent picks up esptool's "(NN %)" write progress. esptool
// writes several flash segments, so a big drop means a new segment
// rather than regression.
func (t *Tracker) observePercent(lower string) bool {
	m := percentRe.FindStringSubmatch(lower)
	if m == nil {
		return false
	}
	p, err := strconv.Atoi(m[1])
	if err != nil {
		return false
	}
	v := float64(p)
	if v < t.stageProgress && t.stageProgress > 90 {
		t.stageProgress = v
	} else if v > t.stageProgress {
		t.stageProgress = min(v, 100)
	}
	if _, ok := t.spans[StageUploading]; ok && t.stage < StageUploading {
		t.stage = StageUploading
	}
	return true
}

// recompute folds stage plus intra-stage progress into one percent,
// never letting the bar move backwards.
func (t *Tracker) recompute() {
	sp, ok := t.spans[t.stage]
	if !ok {
		// A stage this run does not weight; hold position.
		return
	}
	frac := 0.0
	switch t.stage {
	case StageCompiling:
		if n := len(t.filesSeen); n > 0 {
			frac = float64(len(t.filesCompiled)) / float64(n)
		}
	case StageUploading:
		frac = t.stageProgress / 100
	}
	if frac > 1 {
		frac = 1
	}
	p := sp.start + frac*(sp.end-sp.start)
	if p > t.maxPercent {
		t.maxPercent = p
	}
}

func (t *Tracker) update() Update {
	return Update{
		Percent:     int(t.maxPercent),
		Stage:       t.stage.String(),
		CurrentFile: t.currentFile,
	}
}
