package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openwrench/servicelink/internal/config"
	"github.com/openwrench/servicelink/internal/transport"
)

func TestBuildPublisherFallsBack(t *testing.T) {
	t.Setenv("MQTT_BROKER_URL", "tcp://127.0.0.1:1")
	cfg := config.Load()

	publisher := buildPublisher(cfg)

	assert.IsType(t, noopPublisher{}, publisher)
}

func TestNoopPublisherIsSafe(t *testing.T) {
	var p noopPublisher
	assert.NotPanics(t, func() {
		p.PublishToUser("u1", transport.EventJobUpdate, transport.EventPayload{JobID: "j1"})
		p.Broadcast(transport.EventJobUpdate, transport.EventPayload{JobID: "j1"})
	})
}
