package store

import (
	"encoding/json"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/chzchzchz/sniffrx/sniffer"
)

type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
}

var ErrPublishTimeout = errors.New("mqtt publish timed out")

const publishTimeout = 10 * time.Second

// MQTTSink publishes each message as JSON.
type MQTTSink struct {
	client mqtt.Client
	topic  string
	// timeout bounds the wait for a publish acknowledgement.
	timeout time.Duration
}

type mqttMessage struct {
	sniffer.Message
	// Bits shadows the raw bits with their '0'/'1' rendering.
	Bits string    `json:"bits"`
	Hex  string    `json:"hex"`
	Time time.Time `json:"time"`
}

func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(c mqtt.Client, err error) {
		log.Printf("[mqtt] connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrap(token.Error(), "failed to connect to MQTT broker")
	}
	log.Printf("[mqtt] connected to %s, publishing to %s", cfg.Broker, cfg.Topic)
	return newMQTTSink(client, cfg.Topic), nil
}

func newMQTTSink(client mqtt.Client, topic string) *MQTTSink {
	return &MQTTSink{client: client, topic: topic, timeout: publishTimeout}
}

func (s *MQTTSink) WriteMessage(m sniffer.Message) error {
	payload, err := json.Marshal(mqttMessage{
		Message: m,
		Bits:    sniffer.Bits.Format(m),
		Hex:     sniffer.Hex.Format(m),
		Time:    time.Now(),
	})
	if err != nil {
		return errors.Wrap(err, "encode message")
	}
	token := s.client.Publish(s.topic, 1, false, payload)
	if !token.WaitTimeout(s.timeout) {
		return errors.Wrapf(ErrPublishTimeout, "message at sample %d", m.Start)
	}
	if err := token.Error(); err != nil {
		return errors.Wrap(err, "failed to publish message")
	}
	return nil
}

func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	log.Printf("[mqtt] disconnected")
	return nil
}
