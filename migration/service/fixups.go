package service

import (
	"context"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/TallBlondMan/rocketchat2matrix/migration"
)

// fixupDirectChats sets every direct chat member's m.direct account data
// so migrated one-on-one rooms show up as direct chats. The account data
// is accumulated per user across all their direct chats first, a single
// write per user then replaces it wholesale, which keeps the step safe
// to repeat.
func (s *Service) fixupDirectChats(ctx context.Context) error {
	log := ctxzap.Extract(ctx)

	roomSourceIDs, err := s.store.GetDirectChats(ctx)
	if err != nil {
		return errors.Wrap(err, "couldn't list direct chats")
	}

	// member user id -> peer user id -> room ids
	directChats := map[string]map[string][]string{}
	tokens := map[string]string{}

	for _, roomSourceID := range roomSourceIDs {
		room, err := s.store.Get(ctx, migration.MappingTypeRoom, roomSourceID)
		if err != nil {
			if errors.Cause(err) == migration.ErrNotFound {
				log.Warn("Direct chat was not migrated, skipping", zap.String("source_id", roomSourceID))
				continue
			}
			return errors.Wrapf(err, "couldn't resolve direct chat %s", roomSourceID)
		}

		memberSourceIDs, err := s.store.GetMemberships(ctx, roomSourceID)
		if err != nil {
			return errors.Wrapf(err, "couldn't list members of direct chat %s", roomSourceID)
		}
		members, err := s.filteredMembers(ctx, memberSourceIDs, "")
		if err != nil {
			return errors.Wrapf(err, "couldn't resolve members of direct chat %s", roomSourceID)
		}

		for _, member := range members {
			chats, ok := directChats[member.TargetID]
			if !ok {
				chats = map[string][]string{}
				directChats[member.TargetID] = chats
				tokens[member.TargetID] = member.AccessToken
			}

			for _, peer := range members {
				if peer.TargetID == member.TargetID {
					continue
				}
				chats[peer.TargetID] = append(chats[peer.TargetID], room.TargetID)
			}
		}
	}

	for userID, chats := range directChats {
		err = s.homeserver.SetAccountData(ctx, userID, "m.direct", chats, tokens[userID])
		if err != nil {
			return errors.Wrapf(err, "couldn't set direct chats of %s", userID)
		}
	}

	return nil
}

// fixupPinnedMessages sets the pinned-events state of every room that had
// pinned messages in the export. Pins whose room or message never got
// migrated are cosmetic only and skipped with a warning.
func (s *Service) fixupPinnedMessages(ctx context.Context) error {
	log := ctxzap.Extract(ctx)

	pins, err := s.store.GetPinnedMessages(ctx)
	if err != nil {
		return errors.Wrap(err, "couldn't list pinned messages")
	}

	eventsByRoom := map[string][]string{}
	order := []string{}

	for _, pin := range pins {
		message, err := s.store.Get(ctx, migration.MappingTypeMessage, pin.MessageSourceID)
		if err != nil {
			if errors.Cause(err) == migration.ErrNotFound {
				log.Warn("Pinned message was not migrated, skipping", zap.String("source_id", pin.MessageSourceID))
				continue
			}
			return errors.Wrapf(err, "couldn't resolve pinned message %s", pin.MessageSourceID)
		}

		if _, ok := eventsByRoom[pin.RoomSourceID]; !ok {
			order = append(order, pin.RoomSourceID)
		}
		eventsByRoom[pin.RoomSourceID] = append(eventsByRoom[pin.RoomSourceID], message.TargetID)
	}

	for _, roomSourceID := range order {
		room, err := s.store.Get(ctx, migration.MappingTypeRoom, roomSourceID)
		if err != nil {
			if errors.Cause(err) == migration.ErrNotFound {
				log.Warn("Room with pinned messages was not migrated, skipping", zap.String("source_id", roomSourceID))
				continue
			}
			return errors.Wrapf(err, "couldn't resolve room %s", roomSourceID)
		}

		// Setting room state needs a member with enough power, the room
		// creator qualifies.
		creator, err := s.roomCreator(ctx, roomSourceID)
		if err != nil {
			return errors.Wrapf(err, "couldn't resolve creator of room %s", roomSourceID)
		}
		if creator == nil {
			log.Warn("No migrated member to pin messages with, skipping", zap.String("source_id", roomSourceID))
			continue
		}

		content := struct {
			Pinned []string `json:"pinned"`
		}{
			Pinned: eventsByRoom[roomSourceID],
		}

		err = s.homeserver.SetRoomState(ctx, room.TargetID, "m.room.pinned_events", "", content, creator.AccessToken)
		if err != nil {
			return errors.Wrapf(err, "couldn't pin messages in room %s", room.TargetID)
		}
	}

	return nil
}

// roomCreator returns the first migrated member of the room, which is the
// creator for rooms this tool created. Returns nil without error when no
// member resolved.
func (s *Service) roomCreator(ctx context.Context, roomSourceID string) (*migration.Mapping, error) {
	memberSourceIDs, err := s.store.GetMemberships(ctx, roomSourceID)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't list members of room %s", roomSourceID)
	}

	members, err := s.filteredMembers(ctx, memberSourceIDs, "")
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	return members[0], nil
}
