package procman

import "testing"

func TestRegisterUnregister(t *testing.T) {
	r := NewRegistry()

	r.Register(4242)
	if !r.Contains(4242) {
		t.Fatal("expected PID tracked after Register")
	}
	if r.Count() != 1 {
		t.Errorf("expected count 1, got %d", r.Count())
	}

	r.Unregister(4242)
	if r.Contains(4242) {
		t.Error("expected PID gone after Unregister")
	}
	if r.Count() != 0 {
		t.Errorf("expected count 0, got %d", r.Count())
	}
}

func TestUnregisterAbsentPID(t *testing.T) {
	r := NewRegistry()
	r.Register(100)

	r.Unregister(200)

	if r.Count() != 1 || !r.Contains(100) {
		t.Error("unregister of absent PID must not change the set")
	}
}

func TestRegisterNoDuplicates(t *testing.T) {
	r := NewRegistry()
	r.Register(7)
	r.Register(7)
	if r.Count() != 1 {
		t.Errorf("expected 1 tracked PID, got %d", r.Count())
	}
}

func TestRegisterIgnoresInvalidPID(t *testing.T) {
	r := NewRegistry()
	r.Register(0)
	r.Register(-1)
	if r.Count() != 0 {
		t.Errorf("expected no entries, got %d", r.Count())
	}
}

func TestKillAllClearsSet(t *testing.T) {
	r := NewRegistry()
	// PIDs that almost certainly do not exist; the termination attempts
	// fail, which KillAll ignores.
	r.Register(1 << 21)
	r.Register(1<<21 + 1)

	r.KillAll()

	if r.Count() != 0 {
		t.Errorf("expected empty set after KillAll, got %d entries", r.Count())
	}
}

func TestKillAllEmpty(t *testing.T) {
	r := NewRegistry()
	r.KillAll()
	if r.Count() != 0 {
		t.Error("KillAll on empty registry must be a no-op")
	}
}
