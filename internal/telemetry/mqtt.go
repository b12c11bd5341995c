package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"petfeeder/config"
	"petfeeder/internal/sensor"
)

const publishTimeout = 2 * time.Second

// publishClient is the part of mqtt.Client the publisher needs.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher publishes JSON messages under <prefix>/<device>/<name>.
type MQTTPublisher struct {
	client publishClient
	prefix string
}

// NewMQTTPublisher wraps a connected client.
func NewMQTTPublisher(client publishClient, prefix string) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: prefix}
}

// ConnectMQTT dials the broker, retrying with exponential backoff. The
// connection is closed when ctx is done.
func ConnectMQTT(ctx context.Context, cfg *config.MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second
	maxRetries := 5

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Printf("Failed to connect to MQTT broker: %v", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("could not establish MQTT connection after retries: %w", err)
	}

	log.Printf("Connected to MQTT broker at %s", cfg.Broker)

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
		log.Println("MQTT connection is closed")
	}()

	return client, nil
}

// WriteReadings implements Sink.
func (p *MQTTPublisher) WriteReadings(ctx context.Context, deviceID string, r sensor.Readings) error {
	return p.publish(p.topic(deviceID, "readings"), r)
}

// WriteEvent implements Sink.
func (p *MQTTPublisher) WriteEvent(ctx context.Context, deviceID, name string, payload any) error {
	return p.publish(p.topic(deviceID, name), payload)
}

func (p *MQTTPublisher) topic(deviceID, name string) string {
	if deviceID == "" {
		deviceID = "unknown"
	}
	return fmt.Sprintf("%s/%s/%s", p.prefix, deviceID, name)
}

func (p *MQTTPublisher) publish(topic string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", topic, err)
	}

	token := p.client.Publish(topic, 0, false, body)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}
