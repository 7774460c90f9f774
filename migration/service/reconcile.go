package service

import (
	"context"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TallBlondMan/rocketchat2matrix/migration"
)

// reconcileMemberships removes all excess room members on the homeserver
// which are neither part of the source room nor an admin. Room creation
// has membership side effects (the admin actor being auto-joined among
// them), so after a bulk import the live membership can diverge from the
// source.
//
// The pass is stateless and convergent: re-running it is a no-op once
// the memberships match. Every unit of work, one room or one member
// within a room, fails in isolation; errors are logged and never abort
// sibling units or affect the exit code.
func (s *Service) reconcileMemberships(ctx context.Context) {
	log := ctxzap.Extract(ctx)

	roomMappings, err := s.store.GetAllByType(ctx, migration.MappingTypeRoom)
	if err != nil {
		log.Warn("Couldn't list rooms for membership reconciliation", zap.Error(err))
		return
	}

	group := &errgroup.Group{}
	group.SetLimit(s.config.RoomWorkers)

	for _, roomMapping := range roomMappings {
		roomMapping := roomMapping
		group.Go(func() error {
			s.reconcileRoom(ctx, roomMapping)
			return nil
		})
	}

	group.Wait()
}

func (s *Service) reconcileRoom(ctx context.Context, room *migration.Mapping) {
	log := ctxzap.Extract(ctx)
	log.Info("Checking memberships",
		zap.String("source_id", room.SourceID),
		zap.String("room_id", room.TargetID),
	)

	memberSourceIDs, err := s.store.GetMemberships(ctx, room.SourceID)
	if err != nil {
		logUnitError(ctx, "Error while processing room", err, zap.String("room_id", room.TargetID))
		return
	}

	// Members without a mapping never made it to the homeserver; they
	// are simply absent from the retention set.
	memberMappings, err := s.filteredMembers(ctx, memberSourceIDs, "")
	if err != nil {
		logUnitError(ctx, "Error while processing room", err, zap.String("room_id", room.TargetID))
		return
	}
	shouldRemain := make(map[string]bool, len(memberMappings))
	for _, mapping := range memberMappings {
		shouldRemain[mapping.TargetID] = true
	}

	// Always the live membership, never a cached snapshot.
	actualMembers, err := s.homeserver.JoinedMembers(ctx, room.TargetID)
	if err != nil {
		logUnitError(ctx, "Error while processing room", err, zap.String("room_id", room.TargetID))
		return
	}

	group := &errgroup.Group{}
	group.SetLimit(s.config.MemberWorkers)

	for _, actualMember := range actualMembers {
		if shouldRemain[actualMember] || strings.Contains(actualMember, s.config.AdminUsername) {
			continue
		}

		actualMember := actualMember
		group.Go(func() error {
			s.removeMember(ctx, room, actualMember)
			return nil
		})
	}

	group.Wait()
}

// removeMember makes the member leave the room using their own access
// token.
func (s *Service) removeMember(ctx context.Context, room *migration.Mapping, memberID string) {
	log := ctxzap.Extract(ctx)
	log.Warn("Member should not be in room, removing",
		zap.String("member_id", memberID),
		zap.String("room_id", room.TargetID),
	)

	mapping, err := s.store.GetByTargetID(ctx, memberID)
	if err != nil {
		logUnitError(ctx, "Error while processing member",
			errors.Wrapf(err, "couldn't find mapping for member %s", memberID),
			zap.String("member_id", memberID), zap.String("room_id", room.TargetID))
		return
	}
	if mapping.AccessToken == "" {
		logUnitError(ctx, "Error while processing member",
			errors.Errorf("no access token for member %s, this is a bug", memberID),
			zap.String("member_id", memberID), zap.String("room_id", room.TargetID))
		return
	}

	err = s.homeserver.LeaveRoom(ctx, room.TargetID, mapping.AccessToken)
	if err != nil {
		logUnitError(ctx, "Error while processing member", err,
			zap.String("member_id", memberID), zap.String("room_id", room.TargetID))
		return
	}
}
