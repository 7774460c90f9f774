package service

import (
	"context"
	"fmt"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/TallBlondMan/rocketchat2matrix/common/customerrors"
	"github.com/TallBlondMan/rocketchat2matrix/migration"
	"github.com/TallBlondMan/rocketchat2matrix/rocketchat"
)

// handleMessage migrates one message record, sent as the original
// author. Messages referencing rooms or users the store doesn't know are
// fatal ordering errors in the input.
func (s *Service) handleMessage(ctx context.Context, message *rocketchat.Message) error {
	log := ctxzap.Extract(ctx)

	if message.IsSystemMessage() {
		log.Debug("Skipping system message", zap.String("source_id", message.ID), zap.String("type", message.SystemType))
		return nil
	}

	room, err := s.store.Get(ctx, migration.MappingTypeRoom, message.RoomID)
	if err != nil {
		if errors.Cause(err) == migration.ErrNotFound {
			return customerrors.NewFatal(errors.Errorf("message %s references room %s with no mapping, rooms have to be imported first", message.ID, message.RoomID))
		}
		return errors.Wrapf(err, "couldn't resolve room of message %s", message.ID)
	}

	sender, err := s.store.Get(ctx, migration.MappingTypeUser, message.User.ID)
	if err != nil {
		if errors.Cause(err) == migration.ErrNotFound {
			return customerrors.NewFatal(errors.Errorf("message %s references user %s with no mapping, users have to be imported first", message.ID, message.User.ID))
		}
		return errors.Wrapf(err, "couldn't resolve sender of message %s", message.ID)
	}

	mapping, err := s.store.Get(ctx, migration.MappingTypeMessage, message.ID)
	if err != nil && errors.Cause(err) != migration.ErrNotFound {
		return errors.Wrapf(err, "couldn't look up mapping for message %s", message.ID)
	}

	if mapping == nil || mapping.TargetID == "" {
		// The transaction id is derived from the source id, so retrying
		// an interrupted run cannot duplicate the event.
		eventID, err := s.homeserver.SendMessage(ctx, room.TargetID, message.Text, fmt.Sprintf("migration-%s", message.ID), sender.AccessToken)
		if err != nil {
			return errors.Wrapf(err, "couldn't send message %s", message.ID)
		}

		err = s.store.Put(ctx, &migration.Mapping{
			Type:     migration.MappingTypeMessage,
			SourceID: message.ID,
			TargetID: eventID,
		})
		if err != nil {
			return errors.Wrapf(err, "couldn't save mapping for message %s", message.ID)
		}
	} else {
		log.Debug("Message already migrated", zap.String("source_id", message.ID), zap.String("event_id", mapping.TargetID))
	}

	if message.Pinned {
		err = s.store.SavePinnedMessage(ctx, message.RoomID, message.ID)
		if err != nil {
			return errors.Wrapf(err, "couldn't record pinned message %s", message.ID)
		}
	}

	return nil
}
