package migration

import (
	"context"

	"github.com/pkg/errors"
)

// Entity identifies one of the Rocket.Chat export streams.
type Entity int

const (
	EntityUsers Entity = iota
	EntityRooms
	EntityMessages
)

func (e Entity) String() string {
	switch e {
	case EntityUsers:
		return "users"
	case EntityRooms:
		return "rooms"
	case EntityMessages:
		return "messages"
	default:
		return "unknown"
	}
}

// MappingType distinguishes what kind of entity a Mapping belongs to.
type MappingType int

const (
	MappingTypeUser MappingType = iota
	MappingTypeRoom
	MappingTypeMessage
)

func (t MappingType) String() string {
	switch t {
	case MappingTypeUser:
		return "user"
	case MappingTypeRoom:
		return "room"
	case MappingTypeMessage:
		return "message"
	default:
		return "unknown"
	}
}

type EntityDescriptor struct {
	Filename    string
	MappingType MappingType
}

// Entities describes the export file and mapping type of each entity,
// in the order they have to be imported.
var Entities = map[Entity]EntityDescriptor{
	EntityUsers: {
		Filename:    "users.json",
		MappingType: MappingTypeUser,
	},
	EntityRooms: {
		Filename:    "rocketchat_room.json",
		MappingType: MappingTypeRoom,
	},
	EntityMessages: {
		Filename:    "rocketchat_message.json",
		MappingType: MappingTypeMessage,
	},
}

// Mapping links a Rocket.Chat identifier to the Matrix identifier it was
// migrated to. A mapping with a non-empty TargetID marks the entity as
// already migrated. AccessToken is only set for user mappings and allows
// acting on the homeserver on that user's behalf.
type Mapping struct {
	Type        MappingType
	SourceID    string
	TargetID    string
	AccessToken string
}

var ErrNotFound = errors.New("mapping not found")

// PinnedMessage records a message that was pinned in its room at export
// time, by source ids. Resolution to Matrix ids happens during the
// pinned-message fixup.
type PinnedMessage struct {
	RoomSourceID    string
	MessageSourceID string
}

// MappingStore is the durable checkpoint of a migration run. It holds at
// most one Mapping per (Type, SourceID) and the room relations needed by
// the fixups and the membership reconciliation.
type MappingStore interface {
	Get(ctx context.Context, mappingType MappingType, sourceID string) (*Mapping, error)
	GetByTargetID(ctx context.Context, targetID string) (*Mapping, error)
	GetAllByType(ctx context.Context, mappingType MappingType) ([]*Mapping, error)
	Put(ctx context.Context, mapping *Mapping) error

	SaveMembership(ctx context.Context, roomSourceID, memberSourceID string) error
	GetMemberships(ctx context.Context, roomSourceID string) ([]string, error)

	SaveDirectChat(ctx context.Context, roomSourceID string) error
	GetDirectChats(ctx context.Context) ([]string, error)

	SavePinnedMessage(ctx context.Context, roomSourceID, messageSourceID string) error
	GetPinnedMessages(ctx context.Context) ([]PinnedMessage, error)

	Close() error
}

type CreateRoomRequest struct {
	Name     string
	Topic    string
	Preset   string
	IsDirect bool
	Invite   []string
}

// Homeserver is the slice of the Matrix client and Synapse admin APIs the
// migration needs. Creation calls are expected to be idempotent on the
// homeserver side when retried with the same request.
type Homeserver interface {
	CreateUser(ctx context.Context, username, displayName string) (userID string, err error)
	LoginUser(ctx context.Context, userID string) (accessToken string, err error)
	SetDisplayName(ctx context.Context, userID, displayName, accessToken string) error
	CreateRoom(ctx context.Context, req CreateRoomRequest, creatorToken string) (roomID string, err error)
	InviteUser(ctx context.Context, roomID, userID, inviterToken string) error
	JoinRoom(ctx context.Context, roomID, accessToken string) error
	SendMessage(ctx context.Context, roomID, text, txnID, accessToken string) (eventID string, err error)
	JoinedMembers(ctx context.Context, roomID string) ([]string, error)
	LeaveRoom(ctx context.Context, roomID, accessToken string) error
	SetAccountData(ctx context.Context, userID, eventType string, content interface{}, accessToken string) error
	SetRoomState(ctx context.Context, roomID, eventType, stateKey string, content interface{}, accessToken string) error
}
