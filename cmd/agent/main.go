// Command agent runs a headless technician client against the marketplace
// backend: it logs in, syncs the job pool over MQTT with polling fallback,
// and logs every notification it would surface. Useful for soaking the
// realtime path without a UI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/openwrench/servicelink/internal/api"
	"github.com/openwrench/servicelink/internal/cache"
	"github.com/openwrench/servicelink/internal/config"
	"github.com/openwrench/servicelink/internal/session"
	"github.com/openwrench/servicelink/internal/store"
	"github.com/openwrench/servicelink/internal/sync"
	"github.com/openwrench/servicelink/internal/transport"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	cfg := config.Load()

	username := os.Getenv("AGENT_USERNAME")
	password := os.Getenv("AGENT_PASSWORD")

	c := cache.New()
	rest := transport.NewClient(cfg.APIBaseURL)
	client := api.New(rest, c)
	sess := session.NewManager(cfg.TokenPath, c)
	rest.SetTokenSource(sess.Token)
	rest.SetUnauthorizedHandler(sess.ForceLogout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !sess.Active() {
		if username == "" || password == "" {
			log.Fatal("AGENT_USERNAME and AGENT_PASSWORD are required without a saved session")
		}
		resp, err := client.Login(ctx, username, password)
		if err != nil {
			log.WithError(err).Fatal("Login failed")
		}
		if err := sess.Begin(resp.Token); err != nil {
			log.WithError(err).Fatal("Failed to start session")
		}
	}
	claims := sess.Claims()
	log.WithFields(log.Fields{"user": claims.UserID, "approved": claims.Approved}).Info("Agent session started")

	var channel transport.Channel
	mqttChannel, err := transport.NewMQTTChannel(cfg.BrokerURL, "servicelink-agent-"+claims.UserID, cfg.TopicPrefix)
	if err != nil {
		log.WithError(err).Warn("MQTT broker unreachable, polling only")
	} else {
		channel = mqttChannel
		defer mqttChannel.Close()
	}

	technician := store.NewTechnicianStore(client, c, channel, *claims, func(kind sync.EventKind, payload transport.EventPayload) {
		log.WithFields(log.Fields{
			"kind":   kind,
			"job":    payload.JobID,
			"status": payload.Status,
		}).Info("Notification")
	})
	if err := technician.Init(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start technician store")
	}
	defer technician.Close()

	sess.OnLogout(func() {
		log.Warn("Session ended by server, shutting down")
		stop()
	})

	<-ctx.Done()
	log.Info("Agent stopping")
}
