package monitor

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"devdeck/internal/state"
)

// eventLog collects emitted events across goroutines.
type eventLog struct {
	mu     sync.Mutex
	events []state.Event
}

func (l *eventLog) emit(ev state.Event) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) all() []state.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]state.Event, len(l.events))
	copy(out, l.events)
	return out
}

func (l *eventLog) lines() []string {
	var out []string
	for _, ev := range l.all() {
		if line, ok := ev.(state.OutputLine); ok {
			out = append(out, line.Text)
		}
	}
	return out
}

func (l *eventLog) failures() []state.Failed {
	var out []state.Failed
	for _, ev := range l.all() {
		if f, ok := ev.(state.Failed); ok {
			out = append(out, f)
		}
	}
	return out
}

func (l *eventLog) completed() bool {
	for _, ev := range l.all() {
		if _, ok := ev.(state.Completed); ok {
			return true
		}
	}
	return false
}

type readStep struct {
	data []byte
	err  error
}

// fakePort scripts reads; once the script is exhausted every read is
// a timeout (0, nil).
type fakePort struct {
	mu       sync.Mutex
	script   []readStep
	writeErr error
	writes   []string
	closed   bool
}

func (p *fakePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.script) == 0 {
		return 0, nil
	}
	step := p.script[0]
	p.script = p.script[1:]
	if step.err != nil {
		return 0, step.err
	}
	n := copy(buf, step.data)
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	p.writes = append(p.writes, string(b))
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func stubPort(t *testing.T, port io.ReadWriteCloser, openErr error) {
	t.Helper()
	orig := openPort
	openPort = func(string, int, time.Duration) (io.ReadWriteCloser, error) {
		if openErr != nil {
			return nil, openErr
		}
		return port, nil
	}
	t.Cleanup(func() { openPort = orig })
}

func fastSerialConfig() SerialConfig {
	return SerialConfig{
		Port:         "/dev/ttyUSB0",
		Baud:         115200,
		ReadTimeout:  5 * time.Millisecond,
		PollInterval: time.Millisecond,
	}
}

func TestSerialOpenFailure(t *testing.T) {
	stubPort(t, nil, errors.New("no such device"))
	log := &eventLog{}

	NewSerialSession().Run(fastSerialConfig(), log.emit)

	failures := log.failures()
	if len(failures) != 1 {
		t.Fatalf("expected exactly one Failed event, got %d", len(failures))
	}
	if !strings.Contains(failures[0].Reason, "no such device") {
		t.Errorf("failure reason should carry the open error, got %q", failures[0].Reason)
	}
	if len(log.lines()) != 0 {
		t.Errorf("no output lines expected before Streaming, got %v", log.lines())
	}
	if log.completed() {
		t.Error("a failed open must not report Completed")
	}
}

func TestSerialCancelStopsLoop(t *testing.T) {
	port := &fakePort{}
	stubPort(t, port, nil)
	log := &eventLog{}
	session := NewSerialSession()

	done := make(chan struct{})
	go func() {
		session.Run(fastSerialConfig(), log.emit)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	session.Cancel()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("loop did not stop within one polling interval of cancellation")
	}

	lines := log.lines()
	if len(lines) == 0 || lines[len(lines)-1] != "Serial monitor closed" {
		t.Errorf("expected closing line last, got %v", lines)
	}
	if !log.completed() {
		t.Error("expected Completed after cancellation")
	}
	port.mu.Lock()
	closed := port.closed
	port.mu.Unlock()
	if !closed {
		t.Error("port must be closed on exit")
	}
}

func TestSerialLineSplitting(t *testing.T) {
	port := &fakePort{script: []readStep{
		{data: []byte("temp=21.4\r\nhum=")},
		{data: []byte("48\npartial")},
	}}
	stubPort(t, port, nil)
	log := &eventLog{}
	session := NewSerialSession()

	done := make(chan struct{})
	go func() {
		session.Run(fastSerialConfig(), log.emit)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	session.Cancel()
	<-done

	lines := log.lines()
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"temp=21.4", "hum=48", "partial"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected %q in output, got %v", want, lines)
		}
	}
	// Ordering within the source is preserved.
	if strings.Index(joined, "temp=21.4") > strings.Index(joined, "hum=48") {
		t.Errorf("lines out of order: %v", lines)
	}
}

func TestSerialWriteFailureIsSoft(t *testing.T) {
	port := &fakePort{
		writeErr: errors.New("device busy"),
		script: []readStep{
			{data: []byte("still alive\n")},
		},
	}
	stubPort(t, port, nil)
	log := &eventLog{}
	session := NewSerialSession()
	session.Send("reboot")

	done := make(chan struct{})
	go func() {
		session.Run(fastSerialConfig(), log.emit)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	session.Cancel()
	<-done

	lines := log.lines()
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "Write error") {
		t.Errorf("expected write error report, got %v", lines)
	}
	if !strings.Contains(joined, "still alive") {
		t.Errorf("read side must continue after write failure, got %v", lines)
	}
	if len(log.failures()) != 0 {
		t.Errorf("write failure must not be fatal, got %v", log.failures())
	}
}

func TestSerialSendWritesNewlineTerminated(t *testing.T) {
	port := &fakePort{}
	stubPort(t, port, nil)
	log := &eventLog{}
	session := NewSerialSession()
	session.Send("led on")

	done := make(chan struct{})
	go func() {
		session.Run(fastSerialConfig(), log.emit)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	session.Cancel()
	<-done

	port.mu.Lock()
	writes := append([]string(nil), port.writes...)
	port.mu.Unlock()
	if len(writes) != 1 || writes[0] != "led on\n" {
		t.Errorf("expected newline-terminated payload, got %v", writes)
	}
}

func TestSerialFatalReadError(t *testing.T) {
	port := &fakePort{script: []readStep{
		{data: []byte("one line\n")},
		{err: errors.New("input/output error")},
	}}
	stubPort(t, port, nil)
	log := &eventLog{}

	NewSerialSession().Run(fastSerialConfig(), log.emit)

	failures := log.failures()
	if len(failures) != 1 {
		t.Fatalf("expected one Failed event, got %d", len(failures))
	}
	if !strings.Contains(failures[0].Reason, "input/output error") {
		t.Errorf("failure should carry read error, got %q", failures[0].Reason)
	}
	if log.completed() {
		t.Error("fatal error must not report Completed")
	}
	lines := log.lines()
	if joined := strings.Join(lines, "\n"); !strings.Contains(joined, "one line") {
		t.Errorf("data before the error must still be forwarded, got %v", lines)
	}
}
