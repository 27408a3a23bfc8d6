package state

import (
	"fmt"
	"strings"
	"testing"
)

func TestAddOutputLineCap(t *testing.T) {
	d := New(1000, nil)

	for i := 1; i <= 1500; i++ {
		d.AddOutputLine(fmt.Sprintf("line %d", i))
	}

	snap := d.Snapshot()
	if len(snap.OutputLines) != 1000 {
		t.Fatalf("expected 1000 lines, got %d", len(snap.OutputLines))
	}
	if snap.OutputLines[0] != "line 501" {
		t.Errorf("expected oldest surviving line 'line 501', got '%s'", snap.OutputLines[0])
	}
	if snap.OutputLines[999] != "line 1500" {
		t.Errorf("expected newest line 'line 1500', got '%s'", snap.OutputLines[999])
	}
	// The surviving log must be an in-order suffix of the input.
	for i, line := range snap.OutputLines {
		want := fmt.Sprintf("line %d", 501+i)
		if line != want {
			t.Fatalf("position %d: expected '%s', got '%s'", i, want, line)
		}
	}
}

func TestAddOutputLineUnderCap(t *testing.T) {
	d := New(10, nil)
	d.AddOutputLine("a")
	d.AddOutputLine("b")

	snap := d.Snapshot()
	if len(snap.OutputLines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(snap.OutputLines))
	}
	if snap.OutputLines[0] != "a" || snap.OutputLines[1] != "b" {
		t.Errorf("order not preserved: %v", snap.OutputLines)
	}
}

func TestStartCommandClaimsSlot(t *testing.T) {
	d := New(0, nil)

	if !d.StartCommand("Compile") {
		t.Fatal("first StartCommand should succeed")
	}
	if !d.Running() {
		t.Error("expected running after StartCommand")
	}
	snap := d.Snapshot()
	if snap.ProgressPercent != 0 {
		t.Errorf("expected progress reset to 0, got %v", snap.ProgressPercent)
	}
	if snap.StatusText != "Running: Compile" {
		t.Errorf("unexpected status '%s'", snap.StatusText)
	}
	if len(snap.OutputLines) == 0 || snap.OutputLines[len(snap.OutputLines)-1] != "> Compile" {
		t.Errorf("expected invocation echo, got %v", snap.OutputLines)
	}

	if d.StartCommand("Upload") {
		t.Error("second StartCommand should be refused while running")
	}
}

type fakeKiller struct {
	called int
}

func (f *fakeKiller) KillAll() { f.called++ }

func TestCancelCommand(t *testing.T) {
	k := &fakeKiller{}
	d := New(0, k)
	d.StartCommand("Upload")

	d.CancelCommand()

	if k.called != 1 {
		t.Errorf("expected one KillAll call, got %d", k.called)
	}
	if d.Running() {
		t.Error("expected not running after cancel")
	}
	snap := d.Snapshot()
	last := snap.OutputLines[len(snap.OutputLines)-1]
	if last != "Cancelled by user" {
		t.Errorf("expected cancellation notice, got '%s'", last)
	}
}

func TestApplyEvents(t *testing.T) {
	d := New(0, nil)
	d.StartCommand("Compile")

	d.Apply(OutputLine{Text: "compiling main.cpp"})
	d.Apply(Progress{Percent: 42.5, Stage: "Compiling", CurrentFile: "main.cpp"})

	snap := d.Snapshot()
	if snap.ProgressPercent != 42.5 || snap.ProgressStage != "Compiling" || snap.CurrentFile != "main.cpp" {
		t.Errorf("progress not applied: %+v", snap)
	}

	d.Apply(Completed{})
	if d.Running() {
		t.Error("expected not running after Completed")
	}

	d.StartCommand("Upload")
	d.Apply(Failed{Reason: "exit status 1"})
	snap = d.Snapshot()
	if snap.Running {
		t.Error("expected not running after Failed")
	}
	last := snap.OutputLines[len(snap.OutputLines)-1]
	if !strings.Contains(last, "exit status 1") {
		t.Errorf("expected failure line, got '%s'", last)
	}
	failLines := 0
	for _, l := range snap.OutputLines {
		if strings.Contains(l, "exit status 1") {
			failLines++
		}
	}
	if failLines != 1 {
		t.Errorf("expected exactly one failure line, got %d", failLines)
	}
}

func TestSetProgressClamps(t *testing.T) {
	d := New(0, nil)
	d.SetProgress(150, "Linking", "")
	if got := d.Snapshot().ProgressPercent; got != 100 {
		t.Errorf("expected clamp to 100, got %v", got)
	}
	d.SetProgress(-5, "Linking", "")
	if got := d.Snapshot().ProgressPercent; got != 0 {
		t.Errorf("expected clamp to 0, got %v", got)
	}
}

