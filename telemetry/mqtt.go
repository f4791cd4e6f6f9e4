package telemetry

import (
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MQTTOptions configures the broker connection.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	Timeout  time.Duration
}

// Publisher is the part of mqtt.Client the sink uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// ConnectMQTT connects a paho client with automatic reconnection.
//
// Arguments:
//   - opts: The broker options.
//   - logger: Logger for connection events.
//
// Returns:
//   - mqtt.Client: The connected client.
//   - error: An error if the connection times out or is refused.
func ConnectMQTT(opts MQTTOptions, logger logrus.FieldLogger) (mqtt.Client, error) {
	broker := opts.Broker
	if !strings.Contains(broker, "://") {
		broker = fmt.Sprintf("tcp://%s", broker)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(broker)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectRetryInterval(2 * time.Second)
	clientOpts.SetMaxReconnectInterval(30 * time.Second)
	clientOpts.OnConnect = func(mqtt.Client) {
		logger.WithField("broker", broker).Info("mqtt connection established")
	}
	clientOpts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.WithError(err).WithField("broker", broker).Warn("mqtt connection lost, will auto-reconnect")
	}

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, errors.Errorf("mqtt connection to %s timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "mqtt connection to %s", broker)
	}
	return client, nil
}

// MQTTSink publishes every report as a retained message on
// <topic>/<category>, so subscribers always see the latest line.
type MQTTSink struct {
	client  Publisher
	topic   string
	qos     byte
	timeout time.Duration
	logger  logrus.FieldLogger

	mu        sync.Mutex
	published uint64
	failures  uint64
}

// NewMQTTSink creates a sink publishing below topic.
func NewMQTTSink(client Publisher, opts MQTTOptions, logger logrus.FieldLogger) *MQTTSink {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MQTTSink{
		client:  client,
		topic:   strings.TrimSuffix(opts.Topic, "/"),
		qos:     opts.QoS,
		timeout: timeout,
		logger:  logger,
	}
}

// Topic returns the topic a category is published on.
func (s *MQTTSink) Topic(category Category) string {
	return s.topic + "/" + string(category)
}

// Report publishes without blocking the caller; the delivery is confirmed on
// a separate goroutine.
func (s *MQTTSink) Report(category Category, text string) {
	topic := s.Topic(category)
	token := s.client.Publish(topic, s.qos, true, text)
	go s.confirm(topic, token)
}

func (s *MQTTSink) confirm(topic string, token mqtt.Token) {
	var err error
	if !token.WaitTimeout(s.timeout) {
		err = errors.New("publish timeout")
	} else {
		err = token.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.failures++
		s.logger.WithError(err).WithField("topic", topic).Warn("telemetry publish failed")
		return
	}
	s.published++
}

// Stats returns the number of confirmed and failed publishes.
func (s *MQTTSink) Stats() (published, failed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published, s.failures
}
