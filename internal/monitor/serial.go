// Package monitor implements the live serial and MQTT monitor
// sessions. Each session is single-shot: it runs from connect to
// close or failure, and a new monitor command starts a fresh one.
package monitor

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"devdeck/internal/state"
)

const (
	defaultReadTimeout  = 100 * time.Millisecond
	defaultPollInterval = 10 * time.Millisecond

	// Command queue depth. The producer is the user's keyboard, so
	// this never fills in practice; sends past it are dropped rather
	// than blocking the UI.
	commandQueueSize = 64
)

// openPort is stubbed in tests.
var openPort = func(name string, baud int, readTimeout time.Duration) (io.ReadWriteCloser, error) {
	port, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, err
	}
	return port, nil
}

// SerialConfig are the connection parameters for one serial session.
type SerialConfig struct {
	Port         string
	Baud         int
	ReadTimeout  time.Duration
	PollInterval time.Duration
}

func (c *SerialConfig) fillDefaults() {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
}

// SerialSession owns one serial monitor run: a one-way cancellation
// flag and the inbound command queue. The loop goroutine is the sole
// consumer; the UI holds the sending half.
type SerialSession struct {
	cancelled atomic.Bool
	commands  chan string
}

// NewSerialSession returns a session ready to run.
func NewSerialSession() *SerialSession {
	return &SerialSession{commands: make(chan string, commandQueueSize)}
}

// Cancel sets the cancellation flag. It is one-way; the loop observes
// it within one polling interval.
func (s *SerialSession) Cancel() {
	s.cancelled.Store(true)
}

// Send queues a payload to be written to the device, newline
// terminated. Never blocks.
func (s *SerialSession) Send(payload string) {
	select {
	case s.commands <- payload:
	default:
	}
}

// Run connects and streams until cancellation or a fatal transport
// error. Emit receives every observable event; Run never retries or
// reconnects.
func (s *SerialSession) Run(cfg SerialConfig, emit func(state.Event)) {
	cfg.fillDefaults()

	port, err := openPort(cfg.Port, cfg.Baud, cfg.ReadTimeout)
	if err != nil {
		emit(state.Failed{Reason: fmt.Sprintf("open %s: %v", cfg.Port, err)})
		return
	}
	defer port.Close()

	emit(state.OutputLine{Text: fmt.Sprintf("Connected to %s at %d baud", cfg.Port, cfg.Baud)})
	emit(state.Progress{Percent: 0, Stage: "Monitoring"})

	buf := make([]byte, 1024)
	var lineBuf []byte

	for !s.cancelled.Load() {
		// At most one outbound command per iteration. A write failure
		// is soft: the read side stays primary.
		select {
		case payload := <-s.commands:
			if _, err := io.WriteString(port, payload+"\n"); err != nil {
				emit(state.OutputLine{Text: fmt.Sprintf("Write error: %v", err)})
			} else {
				emit(state.OutputLine{Text: "> " + payload})
			}
		default:
		}

		n, err := port.Read(buf)
		if err != nil {
			emit(state.Failed{Reason: fmt.Sprintf("serial read: %v", err)})
			return
		}
		if n == 0 {
			// Read timeout; not an error.
			time.Sleep(cfg.PollInterval)
			continue
		}

		for _, b := range buf[:n] {
			if b == '\n' || b == '\r' {
				if len(lineBuf) > 0 {
					emit(state.OutputLine{Text: string(lineBuf)})
					lineBuf = lineBuf[:0]
				}
				continue
			}
			lineBuf = append(lineBuf, b)
		}

		time.Sleep(cfg.PollInterval)
	}

	if len(lineBuf) > 0 {
		emit(state.OutputLine{Text: string(lineBuf)})
	}
	emit(state.OutputLine{Text: "Serial monitor closed"})
	emit(state.Completed{})
}
