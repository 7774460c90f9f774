// Package service orchestrates the migration: sequential entity imports
// in dependency order, the post-import fixups, the membership
// reconciliation pass and the final notification step.
package service

import (
	"context"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/TallBlondMan/rocketchat2matrix/matrix"
	"github.com/TallBlondMan/rocketchat2matrix/migration"
	"github.com/TallBlondMan/rocketchat2matrix/notifier"
)

type Service struct {
	store      migration.MappingStore
	homeserver migration.Homeserver
	sender     notifier.Sender
	config     *migration.Config
}

// NewService wires the orchestrator. sender may be nil, which disables
// the notification step.
func NewService(store migration.MappingStore, homeserver migration.Homeserver, sender notifier.Sender, config *migration.Config) *Service {
	return &Service{
		store:      store,
		homeserver: homeserver,
		sender:     sender,
		config:     config,
	}
}

// Run executes one full migration pass. Any returned error is fatal for
// the run; the membership reconciliation demotes its own failures to
// logged-and-skipped and never contributes to the error.
func (s *Service) Run(ctx context.Context) error {
	log := ctxzap.Extract(ctx)

	log.Info("Parsing users")
	err := s.importEntity(ctx, migration.EntityUsers)
	if err != nil {
		return errors.Wrap(err, "couldn't import users")
	}

	log.Info("Parsing rooms")
	err = s.importEntity(ctx, migration.EntityRooms)
	if err != nil {
		return errors.Wrap(err, "couldn't import rooms")
	}

	if s.config.SkipMessages {
		log.Info("Skipping messages")
	} else {
		log.Info("Parsing messages")
		err = s.importEntity(ctx, migration.EntityMessages)
		if err != nil {
			return errors.Wrap(err, "couldn't import messages")
		}
	}

	log.Info("Setting direct chats to be displayed as such for each user")
	err = s.fixupDirectChats(ctx)
	if err != nil {
		return errors.Wrap(err, "couldn't set direct chats")
	}

	log.Info("Setting pinned messages in rooms")
	err = s.fixupPinnedMessages(ctx)
	if err != nil {
		return errors.Wrap(err, "couldn't set pinned messages")
	}

	log.Info("Checking room memberships")
	s.reconcileMemberships(ctx)

	// Runs last, so no user is contacted while the migration is still
	// in flight.
	log.Info("Notifying about migrated accounts")
	err = s.notifyMigrated(ctx)
	if err != nil {
		return errors.Wrap(err, "couldn't notify about migrated accounts")
	}

	return nil
}

// filteredMembers resolves member source ids to their user mappings,
// silently dropping members that were never migrated and the optionally
// excluded one.
func (s *Service) filteredMembers(ctx context.Context, memberSourceIDs []string, excludedSourceID string) ([]*migration.Mapping, error) {
	members := make([]*migration.Mapping, 0, len(memberSourceIDs))
	for _, sourceID := range memberSourceIDs {
		if sourceID == excludedSourceID {
			continue
		}

		mapping, err := s.store.Get(ctx, migration.MappingTypeUser, sourceID)
		if err != nil {
			if errors.Cause(err) == migration.ErrNotFound {
				continue
			}
			return nil, errors.Wrapf(err, "couldn't resolve member %s", sourceID)
		}
		if mapping.TargetID == "" {
			continue
		}

		members = append(members, mapping)
	}

	return members, nil
}

// logUnitError logs an error of one isolated unit of work, with the
// request details when the homeserver rejected a call.
func logUnitError(ctx context.Context, msg string, err error, fields ...zap.Field) {
	log := ctxzap.Extract(ctx)

	if apiErr, ok := matrix.AsAPIError(err); ok {
		fields = append(fields,
			zap.String("method", apiErr.Method),
			zap.String("path", apiErr.Path),
			zap.Int("status", apiErr.StatusCode),
			zap.String("response", apiErr.Body),
		)
	}

	log.Error(msg, append(fields, zap.Error(err))...)
}
