package main

import (
	"context"
	"os"

	"cloud.google.com/go/pubsub"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/kelseyhightower/envconfig"
	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/TallBlondMan/rocketchat2matrix/common/events/publisher"
	"github.com/TallBlondMan/rocketchat2matrix/matrix"
	"github.com/TallBlondMan/rocketchat2matrix/migration"
	"github.com/TallBlondMan/rocketchat2matrix/migration/service"
	"github.com/TallBlondMan/rocketchat2matrix/migration/sqlite"
	"github.com/TallBlondMan/rocketchat2matrix/notifier"
)

func main() {
	config := &migration.Config{}
	envconfig.MustProcess("migration", config)

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("rocketchat2matrix starts.")

	err = config.Validate()
	if err != nil {
		fatal(log, "Invalid configuration", err)
	}

	ctx := ctxzap.ToContext(context.Background(), log)

	store, err := sqlite.NewMappingStore(config.DatabasePath)
	if err != nil {
		fatal(log, "Couldn't initialize mapping store", err)
	}
	defer store.Close()

	client, err := matrix.NewClient(config.HomeserverUrl, config.AdminAccessToken, config.ServerName, config.RequestsPerSecond)
	if err != nil {
		fatal(log, "Couldn't create homeserver client", err)
	}

	userID, err := client.Whoami(ctx)
	if err != nil {
		fatal(log, "Couldn't authenticate against the homeserver", err)
	}
	log.Info("Authenticated against the homeserver", zap.String("user_id", userID))

	var sender notifier.Sender
	if config.NotificationsTopic != "" {
		opts := []option.ClientOption{}
		if config.GoogleApplicationCredentials != "" {
			opts = append(opts, option.WithCredentialsFile(config.GoogleApplicationCredentials))
		}

		pubsubCli, err := pubsub.NewClient(ctx, config.ProjectName, opts...)
		if err != nil {
			fatal(log, "Couldn't create pubsub client", err)
		}

		runID, err := uuid.NewV4()
		if err != nil {
			fatal(log, "Couldn't generate run id", err)
		}

		pub := publisher.
			NewPublisher(pubsubCli).
			Use(publisher.WithRunID(runID.String()))
		sender = notifier.NewSender(pub, config.NotificationsTopic)
	}

	s := service.NewService(store, client, sender, config)

	err = s.Run(ctx)
	if err != nil {
		fatal(log, "Encountered an error during the migration", err)
	}

	log.Info("Done.")
}

func fatal(log *zap.Logger, msg string, err error) {
	if apiErr, ok := matrix.AsAPIError(err); ok {
		log.Error(msg,
			zap.String("method", apiErr.Method),
			zap.String("path", apiErr.Path),
			zap.Int("status", apiErr.StatusCode),
			zap.String("response", apiErr.Body),
			zap.Error(err),
		)
	} else {
		log.Error(msg, zap.Error(err))
	}

	log.Sync()
	os.Exit(1)
}
