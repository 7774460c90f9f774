package service

import (
	"context"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/TallBlondMan/rocketchat2matrix/migration"
	"github.com/TallBlondMan/rocketchat2matrix/notifier"
)

// notifyMigrated publishes one event per migrated user plus a final
// summary. A failed per-user publish is logged and skipped, the events
// are informational; a failed summary publish is fatal so operators
// notice the downstream pipeline is broken.
func (s *Service) notifyMigrated(ctx context.Context) error {
	log := ctxzap.Extract(ctx)

	if s.sender == nil {
		log.Info("Notifications are disabled, skipping")
		return nil
	}

	users, err := s.store.GetAllByType(ctx, migration.MappingTypeUser)
	if err != nil {
		return errors.Wrap(err, "couldn't list user mappings")
	}
	rooms, err := s.store.GetAllByType(ctx, migration.MappingTypeRoom)
	if err != nil {
		return errors.Wrap(err, "couldn't list room mappings")
	}
	messages, err := s.store.GetAllByType(ctx, migration.MappingTypeMessage)
	if err != nil {
		return errors.Wrap(err, "couldn't list message mappings")
	}

	migrated := 0
	for _, user := range users {
		if user.TargetID == "" {
			continue
		}
		migrated++

		err = s.sender.SendUserMigrated(ctx, notifier.UserMigratedEvent{
			SourceID: user.SourceID,
			UserID:   user.TargetID,
		})
		if err != nil {
			log.Warn("Couldn't notify about migrated user",
				zap.String("user_id", user.TargetID), zap.Error(err))
		}
	}

	err = s.sender.SendMigrationCompleted(ctx, notifier.MigrationCompletedEvent{
		Users:    migrated,
		Rooms:    len(rooms),
		Messages: len(messages),
	})

	return errors.Wrap(err, "couldn't publish migration summary")
}
