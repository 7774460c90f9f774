// Package sqlite implements the mapping store on an embedded SQLite
// database. The database file is the resumption checkpoint of the
// migration and has to survive process restarts, so every write goes
// through immediately and the connection runs in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/pkg/errors"

	"github.com/TallBlondMan/rocketchat2matrix/migration"
)

const schema = `
CREATE TABLE IF NOT EXISTS mappings (
	type         INTEGER NOT NULL,
	source_id    TEXT NOT NULL,
	target_id    TEXT NOT NULL DEFAULT '',
	access_token TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (type, source_id)
);
CREATE INDEX IF NOT EXISTS idx_mappings_target_id ON mappings (target_id);
CREATE TABLE IF NOT EXISTS memberships (
	room_source_id   TEXT NOT NULL,
	member_source_id TEXT NOT NULL,
	PRIMARY KEY (room_source_id, member_source_id)
);
CREATE TABLE IF NOT EXISTS direct_chats (
	room_source_id TEXT NOT NULL PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS pinned_messages (
	room_source_id    TEXT NOT NULL,
	message_source_id TEXT NOT NULL,
	PRIMARY KEY (room_source_id, message_source_id)
);
`

type mappingStore struct {
	db *sql.DB
}

func NewMappingStore(path string) (migration.MappingStore, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't open mapping database")
	}

	_, err = db.Exec(schema)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "couldn't initialize mapping database schema")
	}

	return &mappingStore{
		db: db,
	}, nil
}

func (s *mappingStore) Get(ctx context.Context, mappingType migration.MappingType, sourceID string) (*migration.Mapping, error) {
	mapping := &migration.Mapping{
		Type:     mappingType,
		SourceID: sourceID,
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT target_id, access_token FROM mappings WHERE type = ? AND source_id = ?`,
		int(mappingType), sourceID,
	).Scan(&mapping.TargetID, &mapping.AccessToken)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, migration.ErrNotFound
		}
		return nil, errors.Wrapf(err, "couldn't get %s mapping for %s", mappingType, sourceID)
	}

	return mapping, nil
}

func (s *mappingStore) GetByTargetID(ctx context.Context, targetID string) (*migration.Mapping, error) {
	mapping := &migration.Mapping{
		TargetID: targetID,
	}

	var mappingType int
	err := s.db.QueryRowContext(ctx,
		`SELECT type, source_id, access_token FROM mappings WHERE target_id = ? AND target_id != ''`,
		targetID,
	).Scan(&mappingType, &mapping.SourceID, &mapping.AccessToken)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, migration.ErrNotFound
		}
		return nil, errors.Wrapf(err, "couldn't get mapping for target id %s", targetID)
	}
	mapping.Type = migration.MappingType(mappingType)

	return mapping, nil
}

func (s *mappingStore) GetAllByType(ctx context.Context, mappingType migration.MappingType) ([]*migration.Mapping, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, target_id, access_token FROM mappings WHERE type = ? ORDER BY rowid`,
		int(mappingType),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't list %s mappings", mappingType)
	}
	defer rows.Close()

	var mappings []*migration.Mapping
	for rows.Next() {
		mapping := &migration.Mapping{
			Type: mappingType,
		}
		err = rows.Scan(&mapping.SourceID, &mapping.TargetID, &mapping.AccessToken)
		if err != nil {
			return nil, errors.Wrapf(err, "couldn't scan %s mapping", mappingType)
		}
		mappings = append(mappings, mapping)
	}

	return mappings, errors.Wrapf(rows.Err(), "couldn't iterate %s mappings", mappingType)
}

func (s *mappingStore) Put(ctx context.Context, mapping *migration.Mapping) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mappings (type, source_id, target_id, access_token) VALUES (?, ?, ?, ?)
		 ON CONFLICT (type, source_id)
		 DO UPDATE SET target_id = excluded.target_id, access_token = excluded.access_token`,
		int(mapping.Type), mapping.SourceID, mapping.TargetID, mapping.AccessToken,
	)

	return errors.Wrapf(err, "couldn't save %s mapping for %s", mapping.Type, mapping.SourceID)
}

func (s *mappingStore) SaveMembership(ctx context.Context, roomSourceID, memberSourceID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO memberships (room_source_id, member_source_id) VALUES (?, ?)`,
		roomSourceID, memberSourceID,
	)

	return errors.Wrapf(err, "couldn't save membership of %s in room %s", memberSourceID, roomSourceID)
}

func (s *mappingStore) GetMemberships(ctx context.Context, roomSourceID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member_source_id FROM memberships WHERE room_source_id = ? ORDER BY rowid`,
		roomSourceID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't list memberships of room %s", roomSourceID)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var member string
		err = rows.Scan(&member)
		if err != nil {
			return nil, errors.Wrapf(err, "couldn't scan membership of room %s", roomSourceID)
		}
		members = append(members, member)
	}

	return members, errors.Wrapf(rows.Err(), "couldn't iterate memberships of room %s", roomSourceID)
}

func (s *mappingStore) SaveDirectChat(ctx context.Context, roomSourceID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO direct_chats (room_source_id) VALUES (?)`,
		roomSourceID,
	)

	return errors.Wrapf(err, "couldn't mark room %s as direct chat", roomSourceID)
}

func (s *mappingStore) GetDirectChats(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT room_source_id FROM direct_chats ORDER BY rowid`)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't list direct chats")
	}
	defer rows.Close()

	var rooms []string
	for rows.Next() {
		var room string
		err = rows.Scan(&room)
		if err != nil {
			return nil, errors.Wrap(err, "couldn't scan direct chat")
		}
		rooms = append(rooms, room)
	}

	return rooms, errors.Wrap(rows.Err(), "couldn't iterate direct chats")
}

func (s *mappingStore) SavePinnedMessage(ctx context.Context, roomSourceID, messageSourceID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO pinned_messages (room_source_id, message_source_id) VALUES (?, ?)`,
		roomSourceID, messageSourceID,
	)

	return errors.Wrapf(err, "couldn't save pinned message %s of room %s", messageSourceID, roomSourceID)
}

func (s *mappingStore) GetPinnedMessages(ctx context.Context) ([]migration.PinnedMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT room_source_id, message_source_id FROM pinned_messages ORDER BY rowid`,
	)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't list pinned messages")
	}
	defer rows.Close()

	var pins []migration.PinnedMessage
	for rows.Next() {
		pin := migration.PinnedMessage{}
		err = rows.Scan(&pin.RoomSourceID, &pin.MessageSourceID)
		if err != nil {
			return nil, errors.Wrap(err, "couldn't scan pinned message")
		}
		pins = append(pins, pin)
	}

	return pins, errors.Wrap(rows.Err(), "couldn't iterate pinned messages")
}

func (s *mappingStore) Close() error {
	return errors.Wrap(s.db.Close(), "couldn't close mapping database")
}
