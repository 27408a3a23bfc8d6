package monitor

import (
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"devdeck/internal/state"
)

const defaultPollTimeout = 50 * time.Millisecond

// newMQTTClient is stubbed in tests; mqtt.Client is an interface.
var newMQTTClient = func(opts *mqtt.ClientOptions) mqtt.Client {
	return mqtt.NewClient(opts)
}

// MQTTConfig are the connection parameters for one broker session.
type MQTTConfig struct {
	Host        string
	Port        int
	ClientID    string
	Username    string
	Password    string
	KeepAlive   time.Duration
	PollTimeout time.Duration
}

func (c *MQTTConfig) fillDefaults() {
	if c.KeepAlive <= 0 {
		c.KeepAlive = 30 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = defaultPollTimeout
	}
}

// Publish is one outbound message queued by the UI.
type Publish struct {
	Topic   string
	Payload string
}

// MQTTSession owns one broker monitor run, mirroring SerialSession:
// a one-way cancellation flag plus an inbound publish queue.
type MQTTSession struct {
	cancelled atomic.Bool
	commands  chan Publish
}

// NewMQTTSession returns a session ready to run.
func NewMQTTSession() *MQTTSession {
	return &MQTTSession{commands: make(chan Publish, commandQueueSize)}
}

// Cancel sets the cancellation flag; the loop observes it within one
// poll timeout.
func (s *MQTTSession) Cancel() {
	s.cancelled.Store(true)
}

// Send queues a publish request. Never blocks.
func (s *MQTTSession) Send(p Publish) {
	select {
	case s.commands <- p:
	default:
	}
}

// Run connects, subscribes to the full wildcard topic and streams
// until cancellation or a fatal connection error. No reconnect is
// attempted; a fresh monitor command starts a new session.
func (s *MQTTSession) Run(cfg MQTTConfig, emit func(state.Event)) {
	cfg.fillDefaults()

	// Inbound lines may be dropped under load; the fatal connection
	// error gets its own channel so a full line queue cannot swallow
	// it.
	lines := make(chan string, commandQueueSize)
	errs := make(chan error, 1)
	postLine := func(line string) {
		select {
		case lines <- line:
		default:
		}
	}
	postErr := func(err error) {
		select {
		case errs <- err:
		default:
		}
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetKeepAlive(cfg.KeepAlive).
		SetAutoReconnect(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			postErr(err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := newMQTTClient(opts)

	emit(state.OutputLine{Text: fmt.Sprintf("Connecting to %s:%d...", cfg.Host, cfg.Port)})
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		emit(state.Failed{Reason: fmt.Sprintf("connect %s:%d: %v", cfg.Host, cfg.Port, token.Error())})
		return
	}

	// Wildcard subscription right after connect; the monitor shows all
	// device chatter. A subscribe failure is fatal, no retry.
	onMessage := func(_ mqtt.Client, msg mqtt.Message) {
		postLine(fmt.Sprintf("[%s] %s", msg.Topic(), msg.Payload()))
	}
	if token := client.Subscribe("#", 0, onMessage); token.Wait() && token.Error() != nil {
		emit(state.Failed{Reason: fmt.Sprintf("subscribe: %v", token.Error())})
		client.Disconnect(250)
		return
	}

	emit(state.OutputLine{Text: "Subscribed to all topics"})
	emit(state.Progress{Percent: 0, Stage: "Monitoring"})

	fatal := func(err error) {
		emit(state.Failed{Reason: fmt.Sprintf("connection lost: %v", err)})
		client.Disconnect(250)
	}

	timer := time.NewTimer(cfg.PollTimeout)
	defer timer.Stop()

	for !s.cancelled.Load() {
		// The error channel is checked first every iteration so a
		// backlog of queued lines cannot delay the exit.
		select {
		case err := <-errs:
			fatal(err)
			return
		default:
		}

		// At most one outbound publish per iteration, best-effort QoS,
		// no retain. A publish failure is soft.
		select {
		case p := <-s.commands:
			if token := client.Publish(p.Topic, 0, false, p.Payload); token.Wait() && token.Error() != nil {
				emit(state.OutputLine{Text: fmt.Sprintf("Publish error: %v", token.Error())})
			} else {
				emit(state.OutputLine{Text: fmt.Sprintf("> %s: %s", p.Topic, p.Payload)})
			}
		default:
		}

		// One bounded poll for an inbound event.
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(cfg.PollTimeout)
		select {
		case err := <-errs:
			fatal(err)
			return
		case line := <-lines:
			emit(state.OutputLine{Text: line})
		case <-timer.C:
			// Poll timeout; not an error.
		}
	}

	client.Disconnect(250)
	emit(state.OutputLine{Text: "MQTT monitor closed"})
	emit(state.Completed{})
}
