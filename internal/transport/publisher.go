package transport

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// MQTTPublisher is the server side of the realtime channel: it pushes
// envelopes onto per-user and broadcast topics for connected clients.
type MQTTPublisher struct {
	client      mqtt.Client
	topicPrefix string
}

// NewMQTTPublisher connects to the broker and returns a ready publisher.
func NewMQTTPublisher(brokerURL, clientID, topicPrefix string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetCleanSession(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect failed: %w", err)
	}
	return &MQTTPublisher{client: client, topicPrefix: topicPrefix}, nil
}

// PublishToUser pushes an event onto a user's event topic.
func (p *MQTTPublisher) PublishToUser(userID, event string, payload EventPayload) {
	p.publish(UserTopic(p.topicPrefix, userID), event, payload)
}

// Broadcast pushes an event onto the pool-wide broadcast topic.
func (p *MQTTPublisher) Broadcast(event string, payload EventPayload) {
	p.publish(BroadcastTopic(p.topicPrefix), event, payload)
}

func (p *MQTTPublisher) publish(topic, event string, payload EventPayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).WithField("event", event).Error("Failed to marshal event payload")
		return
	}
	frame, err := json.Marshal(Envelope{Event: event, Payload: data})
	if err != nil {
		log.WithError(err).WithField("event", event).Error("Failed to marshal envelope")
		return
	}
	token := p.client.Publish(topic, 1, false, frame)
	token.Wait()
	if err := token.Error(); err != nil {
		log.WithError(err).WithField("topic", topic).Warn("Realtime publish failed")
	}
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
