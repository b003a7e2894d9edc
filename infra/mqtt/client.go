package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/chargewatch/core/model"
	coremqtt "github.com/kilianp07/chargewatch/core/mqtt"
	"github.com/kilianp07/chargewatch/infra/logger"
)

// Config defines the connection parameters shared by every charger broker
// connection. Credentials stored on a charger override Username/Password.
type Config struct {
	ClientIDPrefix   string      `json:"client_id_prefix"`
	Username         string      `json:"username"`
	Password         string      `json:"password"`
	QoS              byte        `json:"qos"`
	KeepAliveSeconds int         `json:"keep_alive_seconds"`
	UseTLS           bool        `json:"use_tls"`
	ClientCert       string      `json:"client_cert"`
	ClientKey        string      `json:"client_key"`
	CABundle         string      `json:"ca_bundle"`
	TLSConfig        *tls.Config `json:"-"`
}

// SetDefaults applies fallback values for optional fields.
func (c *Config) SetDefaults() {
	if c.ClientIDPrefix == "" {
		c.ClientIDPrefix = "chargewatch"
	}
	if c.KeepAliveSeconds == 0 {
		c.KeepAliveSeconds = 30
	}
}

// Validate checks the configured values.
func (c Config) Validate() error {
	if c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2")
	}
	if c.UseTLS && c.TLSConfig == nil && (c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "") {
		return fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	return nil
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// PahoSubscriber implements core mqtt.Subscriber for one charger broker
// using Eclipse Paho. Subscriptions are restored after automatic reconnects.
type PahoSubscriber struct {
	cli     pahoClient
	qos     byte
	charger int64
	logger  logger.Logger

	mu   sync.Mutex
	subs map[string]paho.MessageHandler
}

// NewDialer returns a core Dialer opening a PahoSubscriber per charger.
func NewDialer(cfg Config) coremqtt.Dialer {
	return func(ctx context.Context, c model.Charger) (coremqtt.Subscriber, error) {
		return NewPahoSubscriber(ctx, cfg, c)
	}
}

// NewPahoSubscriber connects to the broker of the charger. ctx bounds the
// initial connection attempt.
func NewPahoSubscriber(ctx context.Context, cfg Config, c model.Charger) (*PahoSubscriber, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg, c)
	if err != nil {
		return nil, err
	}
	log := logger.New("mqtt_client")
	ps := &PahoSubscriber{
		qos:     cfg.QoS,
		charger: c.ID,
		logger:  log,
		subs:    make(map[string]paho.MessageHandler),
	}

	opts.OnConnect = func(pc paho.Client) {
		log.Infof("MQTT connected to charger %d", c.ID)
		ps.resubscribe(pc)
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection to charger %d lost: %v", c.ID, err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker of charger %d", c.ID)
	}
	cli := newMQTTClient(opts)
	if err := wait(ctx, cli.Connect()); err != nil {
		cli.Disconnect(0)
		return nil, fmt.Errorf("%w: %v", coremqtt.ErrNotConnected, err)
	}
	ps.cli = cli
	return ps, nil
}

// NewClientOptions builds mqtt client options for a charger broker.
func NewClientOptions(cfg Config, c model.Charger) (*paho.ClientOptions, error) {
	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	broker := fmt.Sprintf("%s://%s", scheme, c.BrokerAddr())
	clientID := cfg.ClientIDPrefix + "-" + strconv.FormatInt(c.ID, 10) + "-" + uuid.NewString()[:8]
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.AutoReconnect = true
	opts.CleanSession = true
	opts.SetOrderMatters(true)
	if cfg.KeepAliveSeconds > 0 {
		opts.SetKeepAlive(time.Duration(cfg.KeepAliveSeconds) * time.Second)
	}
	user, pass := cfg.Username, cfg.Password
	if c.MQTTUser != "" {
		user, pass = c.MQTTUser, c.MQTTPassword
	}
	if user != "" {
		opts.SetUsername(user)
	}
	if pass != "" {
		opts.SetPassword(pass)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// Subscribe registers h for the topic filter. The subscription is replayed
// on every reconnect.
func (p *PahoSubscriber) Subscribe(ctx context.Context, topic string, h coremqtt.Handler) error {
	cb := func(_ paho.Client, m paho.Message) {
		h(coremqtt.Message{Topic: m.Topic(), Payload: m.Payload(), Received: time.Now()})
	}
	if err := wait(ctx, p.cli.Subscribe(topic, p.qos, cb)); err != nil {
		return fmt.Errorf("%w %s: %v", coremqtt.ErrSubscribe, topic, err)
	}
	p.mu.Lock()
	p.subs[topic] = cb
	p.mu.Unlock()
	p.logger.Infof("charger %d subscribed to %s", p.charger, topic)
	return nil
}

// Unsubscribe drops the topic filter.
func (p *PahoSubscriber) Unsubscribe(topic string) error {
	p.mu.Lock()
	delete(p.subs, topic)
	p.mu.Unlock()
	if !p.cli.IsConnected() {
		return nil
	}
	tok := p.cli.Unsubscribe(topic)
	if !tok.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("unsubscribe %s: timeout", topic)
	}
	return tok.Error()
}

// IsConnected reports whether the broker connection is up.
func (p *PahoSubscriber) IsConnected() bool { return p.cli.IsConnected() }

// Disconnect gracefully closes the MQTT connection.
func (p *PahoSubscriber) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}

func (p *PahoSubscriber) resubscribe(c paho.Client) {
	p.mu.Lock()
	subs := make(map[string]paho.MessageHandler, len(p.subs))
	for t, cb := range p.subs {
		subs[t] = cb
	}
	p.mu.Unlock()
	for topic, cb := range subs {
		if token := c.Subscribe(topic, p.qos, cb); token.Wait() && token.Error() != nil {
			p.logger.Errorf("resubscribe %s on charger %d: %v", topic, p.charger, token.Error())
		}
	}
}

func wait(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
