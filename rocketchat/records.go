// Package rocketchat holds the schemas of the newline-delimited JSON
// export files. Each line of an export file is one independently
// parseable record; records failing validation abort the whole import of
// that entity, malformed data never travels further down.
package rocketchat

import (
	"github.com/pkg/errors"
)

const (
	RoomTypeChannel      = "c"
	RoomTypePrivateGroup = "p"
	RoomTypeDirect       = "d"
)

// User is one line of users.json.
type User struct {
	ID       string   `json:"_id"`
	Username string   `json:"username"`
	Name     string   `json:"name"`
	Roles    []string `json:"roles"`
	Rooms    []string `json:"__rooms"`
}

func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("user record misses _id")
	}
	if u.Username == "" {
		return errors.Errorf("user record %s misses username", u.ID)
	}
	return nil
}

// DisplayName returns the name to present on the target side, falling
// back to the username for accounts without a full name.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// Room is one line of rocketchat_room.json. UserIDs carries the member
// list; direct chats have no owner and identify their two (or more)
// participants solely through it.
type Room struct {
	ID    string `json:"_id"`
	Type  string `json:"t"`
	Name  string `json:"name"`
	Topic string `json:"topic"`
	Owner struct {
		ID       string `json:"_id"`
		Username string `json:"username"`
	} `json:"u"`
	UserIDs []string `json:"uids"`
}

func (r *Room) Validate() error {
	if r.ID == "" {
		return errors.New("room record misses _id")
	}
	switch r.Type {
	case RoomTypeChannel, RoomTypePrivateGroup:
		if r.Name == "" {
			return errors.Errorf("room record %s misses name", r.ID)
		}
		if r.Owner.ID == "" {
			return errors.Errorf("room record %s misses owner", r.ID)
		}
	case RoomTypeDirect:
		if len(r.UserIDs) == 0 {
			return errors.Errorf("direct chat record %s misses participants", r.ID)
		}
	default:
		return errors.Errorf("room record %s has unknown type %q", r.ID, r.Type)
	}
	return nil
}

func (r *Room) IsDirect() bool {
	return r.Type == RoomTypeDirect
}

// CreatorID returns the source id of the user to create the room as.
func (r *Room) CreatorID() string {
	if r.Owner.ID != "" {
		return r.Owner.ID
	}
	if len(r.UserIDs) > 0 {
		return r.UserIDs[0]
	}
	return ""
}

// Message is one line of rocketchat_message.json. SystemType is set for
// service messages (user joined, room renamed, ...) which are not
// migrated.
type Message struct {
	ID     string `json:"_id"`
	RoomID string `json:"rid"`
	Text   string `json:"msg"`
	User   struct {
		ID       string `json:"_id"`
		Username string `json:"username"`
	} `json:"u"`
	SystemType string `json:"t"`
	Pinned     bool   `json:"pinned"`
}

func (m *Message) Validate() error {
	if m.ID == "" {
		return errors.New("message record misses _id")
	}
	if m.RoomID == "" {
		return errors.Errorf("message record %s misses rid", m.ID)
	}
	if m.User.ID == "" {
		return errors.Errorf("message record %s misses sender", m.ID)
	}
	return nil
}

func (m *Message) IsSystemMessage() bool {
	return m.SystemType != ""
}
