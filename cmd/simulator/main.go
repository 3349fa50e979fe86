// Command simulator runs the marketplace backend the client stores talk to:
// the REST API, the MQTT event fan-out, and the MongoDB persistence behind
// them. It exists so the client side can be exercised end to end without
// the production deployment.
package main

import (
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/openwrench/servicelink/internal/auth"
	"github.com/openwrench/servicelink/internal/config"
	"github.com/openwrench/servicelink/internal/db"
	"github.com/openwrench/servicelink/internal/handlers"
	"github.com/openwrench/servicelink/internal/middleware"
	"github.com/openwrench/servicelink/internal/transport"
)

// noopPublisher keeps the API usable when no broker is reachable. Clients
// fall back to polling.
type noopPublisher struct{}

func (noopPublisher) PublishToUser(string, string, transport.EventPayload) {}
func (noopPublisher) Broadcast(string, transport.EventPayload)             {}

func buildPublisher(cfg *config.Config) handlers.Publisher {
	publisher, err := transport.NewMQTTPublisher(cfg.BrokerURL, "servicelink-simulator", cfg.TopicPrefix)
	if err != nil {
		log.WithError(err).Warn("MQTT broker unreachable, realtime events disabled")
		return noopPublisher{}
	}
	return publisher
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	cfg := config.Load()

	client, err := db.ConnectMongo()
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	database := client.Database("servicelink")
	jobs := &db.MongoJobCollection{Collection: database.Collection("jobs")}
	users := &db.MongoUserCollection{Collection: database.Collection("users")}

	authService, err := auth.NewService()
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize auth service")
	}

	publisher := buildPublisher(cfg)

	router := handlers.NewRouter(
		handlers.NewAuthHandler(authService, users),
		handlers.NewJobsHandler(jobs, users, publisher),
		handlers.NewPartsHandler(jobs, publisher),
		handlers.NewUploadHandler(cfg.UploadDir),
		middleware.NewAuthMiddleware(authService),
		cfg.UploadDir,
	)

	log.WithFields(log.Fields{
		"addr":   cfg.HTTPAddr,
		"broker": cfg.BrokerURL,
	}).Info("Marketplace simulator listening")
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, router))
}
