package service

import (
	"context"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/TallBlondMan/rocketchat2matrix/migration"
	"github.com/TallBlondMan/rocketchat2matrix/rocketchat"
)

// handleUser migrates one user record. The mapping lookup runs before
// any network call, so replaying an export never creates duplicates.
func (s *Service) handleUser(ctx context.Context, user *rocketchat.User) error {
	log := ctxzap.Extract(ctx)

	if s.isExcludedUser(user) {
		log.Debug("Skipping excluded user", zap.String("username", user.Username))
		return nil
	}

	mapping, err := s.store.Get(ctx, migration.MappingTypeUser, user.ID)
	if err != nil && errors.Cause(err) != migration.ErrNotFound {
		return errors.Wrapf(err, "couldn't look up mapping for user %s", user.ID)
	}

	if mapping == nil || mapping.TargetID == "" {
		userID, err := s.homeserver.CreateUser(ctx, user.Username, user.DisplayName())
		if err != nil {
			return errors.Wrapf(err, "couldn't create user %s", user.Username)
		}

		accessToken, err := s.homeserver.LoginUser(ctx, userID)
		if err != nil {
			return errors.Wrapf(err, "couldn't obtain access token for %s", userID)
		}

		mapping = &migration.Mapping{
			Type:        migration.MappingTypeUser,
			SourceID:    user.ID,
			TargetID:    userID,
			AccessToken: accessToken,
		}
		err = s.store.Put(ctx, mapping)
		if err != nil {
			return errors.Wrapf(err, "couldn't save mapping for user %s", user.ID)
		}

		log.Info("Created user", zap.String("source_id", user.ID), zap.String("user_id", userID))
	} else {
		log.Debug("User already migrated", zap.String("source_id", user.ID), zap.String("user_id", mapping.TargetID))
	}

	// Safe to repeat, also runs for already migrated users.
	err = s.homeserver.SetDisplayName(ctx, mapping.TargetID, user.DisplayName(), mapping.AccessToken)

	return errors.Wrapf(err, "couldn't set display name of %s", mapping.TargetID)
}

func (s *Service) isExcludedUser(user *rocketchat.User) bool {
	for _, role := range user.Roles {
		for _, excluded := range s.config.ExcludedUserRoles {
			if role == excluded {
				return true
			}
		}
	}
	return false
}
