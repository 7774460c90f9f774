package service

import (
	"context"
	"net/http"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/TallBlondMan/rocketchat2matrix/common/customerrors"
	"github.com/TallBlondMan/rocketchat2matrix/matrix"
	"github.com/TallBlondMan/rocketchat2matrix/migration"
	"github.com/TallBlondMan/rocketchat2matrix/rocketchat"
)

// handleRoom migrates one room record. The room is created as its owner,
// members are invited and joined afterwards. A room referencing a user
// the store doesn't know is a fatal ordering error in the input.
func (s *Service) handleRoom(ctx context.Context, room *rocketchat.Room) error {
	log := ctxzap.Extract(ctx)

	// Membership rows feed the fixups and the reconciliation, they are
	// recorded regardless of whether the room still needs creating.
	for _, memberSourceID := range room.UserIDs {
		err := s.store.SaveMembership(ctx, room.ID, memberSourceID)
		if err != nil {
			return errors.Wrapf(err, "couldn't save membership for room %s", room.ID)
		}
	}
	if room.IsDirect() {
		err := s.store.SaveDirectChat(ctx, room.ID)
		if err != nil {
			return errors.Wrapf(err, "couldn't mark room %s as direct chat", room.ID)
		}
	}

	creator, err := s.store.Get(ctx, migration.MappingTypeUser, room.CreatorID())
	if err != nil {
		if errors.Cause(err) == migration.ErrNotFound {
			return customerrors.NewFatal(errors.Errorf("room %s references user %s with no mapping, users have to be imported first", room.ID, room.CreatorID()))
		}
		return errors.Wrapf(err, "couldn't resolve creator of room %s", room.ID)
	}

	mapping, err := s.store.Get(ctx, migration.MappingTypeRoom, room.ID)
	if err != nil && errors.Cause(err) != migration.ErrNotFound {
		return errors.Wrapf(err, "couldn't look up mapping for room %s", room.ID)
	}

	if mapping == nil || mapping.TargetID == "" {
		roomID, err := s.homeserver.CreateRoom(ctx, migration.CreateRoomRequest{
			Name:     room.Name,
			Topic:    room.Topic,
			Preset:   presetForRoomType(room.Type),
			IsDirect: room.IsDirect(),
		}, creator.AccessToken)
		if err != nil {
			return errors.Wrapf(err, "couldn't create room %s", room.ID)
		}

		mapping = &migration.Mapping{
			Type:     migration.MappingTypeRoom,
			SourceID: room.ID,
			TargetID: roomID,
		}
		err = s.store.Put(ctx, mapping)
		if err != nil {
			return errors.Wrapf(err, "couldn't save mapping for room %s", room.ID)
		}

		log.Info("Created room", zap.String("source_id", room.ID), zap.String("room_id", roomID))
	} else {
		log.Debug("Room already migrated", zap.String("source_id", room.ID), zap.String("room_id", mapping.TargetID))
	}

	// Safe to repeat: inviting an already joined member is tolerated,
	// joining an already joined room succeeds.
	members, err := s.filteredMembers(ctx, room.UserIDs, room.CreatorID())
	if err != nil {
		return errors.Wrapf(err, "couldn't resolve members of room %s", room.ID)
	}
	for _, member := range members {
		err = s.homeserver.InviteUser(ctx, mapping.TargetID, member.TargetID, creator.AccessToken)
		if err != nil && !isAlreadyInRoom(err) {
			return errors.Wrapf(err, "couldn't invite %s to room %s", member.TargetID, mapping.TargetID)
		}

		err = s.homeserver.JoinRoom(ctx, mapping.TargetID, member.AccessToken)
		if err != nil {
			return errors.Wrapf(err, "couldn't join %s to room %s", member.TargetID, mapping.TargetID)
		}
	}

	return nil
}

func presetForRoomType(roomType string) string {
	switch roomType {
	case rocketchat.RoomTypeChannel:
		return "public_chat"
	case rocketchat.RoomTypeDirect:
		return "trusted_private_chat"
	default:
		return "private_chat"
	}
}

// Synapse rejects invites for members that already joined with a 403
// whose error message names the condition. Other 403s are genuine
// permission failures and must not be swallowed.
func isAlreadyInRoom(err error) bool {
	apiErr, ok := matrix.AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusForbidden && strings.Contains(apiErr.Body, "already in the room")
}
