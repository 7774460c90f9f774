package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/TallBlondMan/rocketchat2matrix/migration"
	"github.com/TallBlondMan/rocketchat2matrix/rocketchat"
)

// Message exports can carry very large lines.
const maxLineSize = 16 * 1024 * 1024

type record interface {
	Validate() error
}

// importEntity streams the entity's export file record by record, in
// file order, handing each line to the entity's handler. A single
// unreadable or invalid line fails the whole entity import; skipping it
// could silently break referential integrity for everything that refers
// to the record.
func (s *Service) importEntity(ctx context.Context, entity migration.Entity) error {
	filename := filepath.Join(s.config.InputsDir, migration.Entities[entity].Filename)

	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "couldn't open %s export", entity)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		err = s.handleRecord(ctx, entity, line)
		if err != nil {
			return errors.Wrapf(err, "couldn't handle %s record at %s:%d", entity, filename, lineNumber)
		}
	}

	return errors.Wrapf(scanner.Err(), "couldn't read %s export", entity)
}

func (s *Service) handleRecord(ctx context.Context, entity migration.Entity, line []byte) error {
	switch entity {
	case migration.EntityUsers:
		user := rocketchat.User{}
		err := decodeRecord(line, &user)
		if err != nil {
			return err
		}
		return s.handleUser(ctx, &user)

	case migration.EntityRooms:
		room := rocketchat.Room{}
		err := decodeRecord(line, &room)
		if err != nil {
			return err
		}
		return s.handleRoom(ctx, &room)

	case migration.EntityMessages:
		message := rocketchat.Message{}
		err := decodeRecord(line, &message)
		if err != nil {
			return err
		}
		return s.handleMessage(ctx, &message)

	default:
		return errors.Errorf("unhandled entity: %v", entity)
	}
}

func decodeRecord(line []byte, out record) error {
	err := json.Unmarshal(line, out)
	if err != nil {
		return errors.Wrap(err, "couldn't decode record")
	}

	return errors.Wrap(out.Validate(), "invalid record")
}
