package mqttpub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/joshp123/agrobot/internal/gateway"
	"github.com/joshp123/agrobot/internal/logging"
	"github.com/joshp123/agrobot/internal/mirror"
)

const (
	defaultRobotSegment = "robot"
	publishTimeout      = 5 * time.Second
	commandTimeout      = 30 * time.Second
)

type Config struct {
	Broker      string
	TopicPrefix string
	ClientID    string
	Username    string
	Password    string
	Logger      logr.Logger
	Now         func() time.Time
}

// Controller is the part of the mirror the publisher drives.
type Controller interface {
	View() mirror.View
	Subscribe(fn func(mirror.View)) (cancel func())
	SendCommand(ctx context.Context, command string) (gateway.CommandResult, error)
}

// client is the subset of mqtt.Client in use.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
	Disconnect(quiesce uint)
}

type commandMessage struct {
	Command string `json:"command"`
}

// Publisher mirrors controller snapshots, retained, onto MQTT and accepts commands from
// <prefix>/<robot>/command.
type Publisher struct {
	client client
	ctrl   Controller
	prefix string
	log    logr.Logger
	now    func() time.Time

	views  chan mirror.View
	done   chan struct{}
	wg     sync.WaitGroup
	cancel func()

	mu   sync.Mutex
	last []byte
}

// Connect dials the broker and starts publishing.
func Connect(cfg Config, ctrl Controller) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "agrobot-" + uuid.NewString()[:8]
	}

	var current atomic.Pointer[Publisher]
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.OnConnect = func(_ mqtt.Client) {
		if p := current.Load(); p != nil {
			p.resume()
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		cfg.Logger.Error(err, "mqtt connection lost")
	}

	c := mqtt.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	p := New(c, cfg, ctrl)
	if err := p.Start(); err != nil {
		c.Disconnect(250)
		return nil, err
	}
	current.Store(p)
	cfg.Logger.Info("mqtt connected", "broker", cfg.Broker, "client_id", clientID)
	return p, nil
}

func New(c client, cfg Config, ctrl Controller) *Publisher {
	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = "agrobot"
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Publisher{
		client: c,
		ctrl:   ctrl,
		prefix: prefix,
		log:    cfg.Logger,
		now:    now,
		views:  make(chan mirror.View, 1),
		done:   make(chan struct{}),
	}
}

// Start subscribes to the command topic and to controller views.
func (p *Publisher) Start() error {
	if token := p.client.Subscribe(p.commandFilter(), 1, p.handleCommand); token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", p.commandFilter(), token.Error())
	}
	p.wg.Add(1)
	go p.run()
	p.cancel = p.ctrl.Subscribe(p.enqueue)
	p.enqueue(p.ctrl.View())
	return nil
}

func (p *Publisher) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	close(p.done)
	p.wg.Wait()
	_ = p.client.Unsubscribe(p.commandFilter()).WaitTimeout(publishTimeout)
	p.client.Disconnect(250)
}

// resume re-publishes the retained state after a reconnect.
func (p *Publisher) resume() {
	p.mu.Lock()
	p.last = nil
	p.mu.Unlock()
	if token := p.client.Subscribe(p.commandFilter(), 1, p.handleCommand); !token.WaitTimeout(publishTimeout) || token.Error() != nil {
		p.log.Error(token.Error(), "mqtt resubscribe failed", "topic", p.commandFilter())
	}
	p.enqueue(p.ctrl.View())
}

// enqueue keeps only the newest pending view; it never blocks the caller.
func (p *Publisher) enqueue(view mirror.View) {
	for {
		select {
		case p.views <- view:
			return
		default:
		}
		select {
		case <-p.views:
		default:
		}
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case view := <-p.views:
			if err := p.publish(view); err != nil {
				p.log.Error(err, "mqtt publish failed")
			}
		}
	}
}

func (p *Publisher) publish(view mirror.View) error {
	payload, err := json.Marshal(view.Snapshot(p.now()))
	if err != nil {
		return err
	}

	p.mu.Lock()
	if bytes.Equal(payload, p.last) {
		p.mu.Unlock()
		return nil
	}
	p.last = payload
	p.mu.Unlock()

	topic := p.StateTopic(view.State.ID)
	token := p.client.Publish(topic, 1, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.log.V(1).Info("state published", "topic", topic, "generation", view.Generation)
	return nil
}

func (p *Publisher) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	command := parseCommand(msg.Payload())
	p.log.Info("mqtt command received", "topic", msg.Topic(), "command", command)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if _, err := p.ctrl.SendCommand(ctx, command); err != nil {
			logging.ErrorIfNotCanceled(p.log, err, "mqtt command failed", "command", command)
		}
	}()
}

// parseCommand accepts either a bare command or {"command": "..."}.
func parseCommand(payload []byte) string {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var msg commandMessage
		if err := json.Unmarshal(trimmed, &msg); err == nil {
			return msg.Command
		}
	}
	return strings.Trim(string(trimmed), `"`)
}

// StateTopic is <prefix>/<robot id>/state, with "robot" before the id is known.
func (p *Publisher) StateTopic(id string) string {
	return p.prefix + "/" + robotSegment(id) + "/state"
}

func (p *Publisher) commandFilter() string {
	return p.prefix + "/+/command"
}

func robotSegment(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return defaultRobotSegment
	}
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(id)
}
