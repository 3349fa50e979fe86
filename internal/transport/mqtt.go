package transport

import (
	"encoding/json"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Envelope is the wire frame on the MQTT channel: an event name plus its
// JSON payload.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Topic layout under the configured prefix. Per-user events arrive on
// users/<id>/events, pool-wide pushes on broadcast/events, and client
// emissions go out on ingress/<event>.
func UserTopic(prefix, userID string) string {
	return fmt.Sprintf("%s/users/%s/events", prefix, userID)
}

func BroadcastTopic(prefix string) string {
	return fmt.Sprintf("%s/broadcast/events", prefix)
}

func IngressTopic(prefix, event string) string {
	return fmt.Sprintf("%s/ingress/%s", prefix, event)
}

// MQTTChannel implements Channel over an MQTT broker.
type MQTTChannel struct {
	client      mqtt.Client
	topicPrefix string

	mu       sync.RWMutex
	handlers map[string][]Handler
	userID   string
}

// NewMQTTChannel connects to the broker and returns a ready channel.
func NewMQTTChannel(brokerURL, clientID, topicPrefix string) (*MQTTChannel, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetCleanSession(true)

	ch := &MQTTChannel{
		topicPrefix: topicPrefix,
		handlers:    make(map[string][]Handler),
	}
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		// Resubscribe after reconnects so events keep flowing for the
		// registered user.
		ch.mu.RLock()
		userID := ch.userID
		ch.mu.RUnlock()
		if userID != "" {
			ch.subscribe(UserTopic(ch.topicPrefix, userID))
		}
		ch.subscribe(BroadcastTopic(ch.topicPrefix))
	})

	ch.client = mqtt.NewClient(opts)
	token := ch.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect failed: %w", err)
	}
	return ch, nil
}

// Register binds the channel to a logical user and subscribes to that
// user's event topic.
func (ch *MQTTChannel) Register(userID string) error {
	ch.mu.Lock()
	ch.userID = userID
	ch.mu.Unlock()

	if err := ch.subscribe(UserTopic(ch.topicPrefix, userID)); err != nil {
		return err
	}
	return ch.subscribe(BroadcastTopic(ch.topicPrefix))
}

func (ch *MQTTChannel) subscribe(topic string) error {
	token := ch.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		ch.dispatch(msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s failed: %w", topic, err)
	}
	return nil
}

func (ch *MQTTChannel) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.WithError(err).Warn("Dropping malformed realtime frame")
		return
	}
	var payload EventPayload
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			log.WithError(err).WithField("event", env.Event).Warn("Dropping undecodable event payload")
			return
		}
	}

	ch.mu.RLock()
	handlers := append([]Handler(nil), ch.handlers[env.Event]...)
	ch.mu.RUnlock()
	for _, h := range handlers {
		h(env.Event, payload)
	}
}

// On registers a handler for an event name. Multiple handlers per event are
// allowed and run in registration order.
func (ch *MQTTChannel) On(event string, handler Handler) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.handlers[event] = append(ch.handlers[event], handler)
}

// Emit publishes an event toward the server.
func (ch *MQTTChannel) Emit(event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal emit payload: %w", err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Payload: data})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	token := ch.client.Publish(IngressTopic(ch.topicPrefix, event), 1, false, frame)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish failed: %w", err)
	}
	return nil
}

// Close drops all handlers and disconnects from the broker.
func (ch *MQTTChannel) Close() {
	ch.mu.Lock()
	ch.handlers = make(map[string][]Handler)
	ch.userID = ""
	ch.mu.Unlock()
	ch.client.Disconnect(250)
}
