// Package notifier publishes events about finished migrations. Mailing
// users directly from the migration would reach them while rooms and
// history are still half-imported, so downstream consumers subscribe to
// these events instead and act once the run completed.
package notifier

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/TallBlondMan/rocketchat2matrix/common/events/publisher"
)

type UserMigratedEvent struct {
	SourceID string `json:"source_id"`
	UserID   string `json:"user_id"`
}

type MigrationCompletedEvent struct {
	Users    int `json:"users"`
	Rooms    int `json:"rooms"`
	Messages int `json:"messages"`
}

type Sender interface {
	SendUserMigrated(ctx context.Context, event UserMigratedEvent) error
	SendMigrationCompleted(ctx context.Context, event MigrationCompletedEvent) error
}

type eventSender struct {
	topic     string
	publisher *publisher.Publisher
}

func NewSender(publisher *publisher.Publisher, topic string) Sender {
	return &eventSender{
		topic:     topic,
		publisher: publisher,
	}
}

func (s *eventSender) SendUserMigrated(ctx context.Context, event UserMigratedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "couldn't marshal user migrated event")
	}

	err = s.publisher.PublishEvent(ctx, s.topic,
		map[string]string{
			"event_type": "user_migrated",
		},
		string(data),
	)

	return errors.Wrap(err, "couldn't publish user migrated event")
}

func (s *eventSender) SendMigrationCompleted(ctx context.Context, event MigrationCompletedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "couldn't marshal migration completed event")
	}

	err = s.publisher.PublishEvent(ctx, s.topic,
		map[string]string{
			"event_type": "migration_completed",
		},
		string(data),
	)

	return errors.Wrap(err, "couldn't publish migration completed event")
}
