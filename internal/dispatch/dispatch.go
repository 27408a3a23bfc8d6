// Package dispatch routes dashboard commands to background workers.
package dispatch

import (
	"bufio"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"devdeck/internal/config"
	"devdeck/internal/monitor"
	"devdeck/internal/procman"
	"devdeck/internal/progress"
	"devdeck/internal/state"
)

// arduinoCLI is stubbed in tests.
var arduinoCLI = "arduino-cli"

// Command is one dashboard action. The concrete type decides the
// worker; the name is what the status line shows.
type Command interface {
	Name() string
}

type Compile struct{}

func (Compile) Name() string { return "Compile" }

type Upload struct{}

func (Upload) Name() string { return "Upload" }

type MonitorSerial struct{}

func (MonitorSerial) Name() string { return "Monitor (Serial)" }

type MonitorMQTT struct{}

func (MonitorMQTT) Name() string { return "Monitor (MQTT)" }

// Unknown covers menu entries with no worker behind them yet.
type Unknown struct {
	Label string
}

func (u Unknown) Name() string { return u.Label }

// Dispatcher owns at most one running worker at a time. The slot is
// claimed synchronously on the caller's goroutine; everything after
// that happens on exactly one background goroutine per command.
type Dispatcher struct {
	dash    *state.Dashboard
	reg     *procman.Registry
	profile config.Profile

	mu        sync.Mutex
	serial    *monitor.SerialSession
	mqtt      *monitor.MQTTSession
	cancelled atomic.Bool
}

// New wires a dispatcher to the dashboard, the process registry and
// the loaded device profile.
func New(dash *state.Dashboard, reg *procman.Registry, profile config.Profile) *Dispatcher {
	return &Dispatcher{dash: dash, reg: reg, profile: profile}
}

// Dispatch claims the command slot and starts the matching worker.
// It reports false when another command is still running.
func (d *Dispatcher) Dispatch(cmd Command) bool {
	if !d.dash.StartCommand(cmd.Name()) {
		return false
	}
	d.cancelled.Store(false)
	switch cmd.(type) {
	case Compile:
		go d.runCompile()
	case Upload:
		go d.runUpload()
	case MonitorSerial:
		go d.runSerial()
	case MonitorMQTT:
		go d.runMQTT()
	default:
		d.dash.AddOutputLine("Command execution not yet implemented")
		d.dash.SetRunning(false)
		d.dash.SetStatusText("Ready")
	}
	return true
}

// CancelActive stops whatever is running: monitor sessions observe
// their flag, spawned toolchain processes get killed through the
// registry.
func (d *Dispatcher) CancelActive() {
	d.cancelled.Store(true)
	d.mu.Lock()
	if d.serial != nil {
		d.serial.Cancel()
		d.serial = nil
	}
	if d.mqtt != nil {
		d.mqtt.Cancel()
		d.mqtt = nil
	}
	d.mu.Unlock()
	d.dash.CancelCommand()
}

// Send routes a typed line from the send box to the active monitor.
func (d *Dispatcher) Send(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	d.mu.Lock()
	serial, mqttSession := d.serial, d.mqtt
	d.mu.Unlock()

	switch {
	case serial != nil:
		serial.Send(text)
	case mqttSession != nil:
		topic := d.profile.MQTT.CommandTopic
		if topic == "" {
			topic = "devices/" + d.profile.Name + "/command"
		}
		mqttSession.Send(monitor.Publish{Topic: topic, Payload: text})
	default:
		d.dash.AddOutputLine("No active monitor to send to")
	}
}

func (d *Dispatcher) buildPath() string {
	return filepath.Join(d.profile.SketchDir, "build")
}

func (d *Dispatcher) sketchPath() string {
	if d.profile.Sketch == "" {
		return d.profile.SketchDir
	}
	return filepath.Join(d.profile.SketchDir, d.profile.Sketch)
}

func (d *Dispatcher) runCompile() {
	d.runToolchain(progress.NewCompileTracker(), procman.Command{
		Program: arduinoCLI,
		Args: []string{
			"compile",
			"--fqbn", d.profile.FQBN,
			"--build-path", d.buildPath(),
			"--verbose",
			d.sketchPath(),
		},
	})
}

func (d *Dispatcher) runUpload() {
	d.runToolchain(progress.NewUploadTracker(), procman.Command{
		Program: arduinoCLI,
		Args: []string{
			"upload",
			"-p", d.profile.Port,
			"--fqbn", d.profile.FQBN,
			"--input-dir", d.buildPath(),
			"--verbose",
			d.sketchPath(),
		},
	})
}

// runToolchain spawns one arduino-cli invocation, streams its stdout
// through the progress tracker and reports the final event.
func (d *Dispatcher) runToolchain(tracker *progress.Tracker, spec procman.Command) {
	proc, err := procman.Spawn(spec, d.reg)
	if err != nil {
		d.dash.Apply(state.Failed{Reason: fmt.Sprintf("spawn %s: %v", spec.Program, err)})
		return
	}
	proc.ForwardStderr(d.dash, d.profile.Log)

	scanner := bufio.NewScanner(proc.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(progress.StripANSI(scanner.Text()))
		if line == "" {
			continue
		}
		d.dash.AddOutputLine(line)
		if u, changed := tracker.Observe(line); changed {
			d.dash.Apply(state.Progress{
				Percent:     float64(u.Percent),
				Stage:       u.Stage,
				CurrentFile: u.CurrentFile,
			})
		}
	}

	code, err := proc.Wait()
	// A killed child reports a nonzero exit; that is the cancel the
	// user asked for, not a failure, so the "Cancelled" status stands.
	if d.cancelled.Load() {
		return
	}
	switch {
	case err != nil:
		d.dash.Apply(state.Failed{Reason: err.Error()})
	case code != 0:
		d.dash.Apply(state.Failed{Reason: fmt.Sprintf("exit status %d", code)})
	default:
		d.dash.Apply(state.Progress{Percent: 100, Stage: progress.StageComplete.String()})
		d.dash.Apply(state.Completed{})
	}
}

func (d *Dispatcher) runSerial() {
	session := monitor.NewSerialSession()
	d.mu.Lock()
	d.serial = session
	d.mu.Unlock()

	session.Run(monitor.SerialConfig{
		Port: d.profile.Port,
		Baud: d.profile.Baud,
	}, d.dash.Apply)

	d.mu.Lock()
	if d.serial == session {
		d.serial = nil
	}
	d.mu.Unlock()
}

func (d *Dispatcher) runMQTT() {
	session := monitor.NewMQTTSession()
	d.mu.Lock()
	d.mqtt = session
	d.mu.Unlock()

	session.Run(monitor.MQTTConfig{
		Host:     d.profile.MQTT.Host,
		Port:     d.profile.MQTT.Port,
		ClientID: d.profile.MQTT.ClientID,
		Username: d.profile.MQTT.Username,
		Password: d.profile.MQTT.Password,
	}, d.dash.Apply)

	d.mu.Lock()
	if d.mqtt == session {
		d.mqtt = nil
	}
	d.mu.Unlock()
}
