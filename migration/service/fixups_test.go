package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TallBlondMan/rocketchat2matrix/migration"
)

func TestDirectChatFixupAccumulatesPerUser(t *testing.T) {
	ctx := testContext()
	store := newMemStore()
	homeserver := newFakeHomeserver()

	putUser(t, store, homeserver, "u1", "@a:test")
	putUser(t, store, homeserver, "u2", "@b:test")
	putUser(t, store, homeserver, "u3", "@c:test")
	putRoom(t, store, "d1", "!d1:test")
	putRoom(t, store, "d2", "!d2:test")

	require.NoError(t, store.SaveMembership(ctx, "d1", "u1"))
	require.NoError(t, store.SaveMembership(ctx, "d1", "u2"))
	require.NoError(t, store.SaveMembership(ctx, "d2", "u1"))
	require.NoError(t, store.SaveMembership(ctx, "d2", "u3"))
	require.NoError(t, store.SaveDirectChat(ctx, "d1"))
	require.NoError(t, store.SaveDirectChat(ctx, "d2"))
	// A direct chat that never got migrated is skipped, not fatal.
	require.NoError(t, store.SaveDirectChat(ctx, "d9"))

	s := NewService(store, homeserver, nil, testConfig())

	require.NoError(t, s.fixupDirectChats(ctx))

	// One wholesale write per user, u1's chats accumulated across both
	// rooms.
	require.Len(t, homeserver.accountData, 3)

	byUser := map[string]accountDataCall{}
	for _, call := range homeserver.accountData {
		require.Equal(t, "m.direct", call.eventType)
		require.Equal(t, "tok-"+call.userID, call.token)
		byUser[call.userID] = call
	}
	require.Equal(t, map[string][]string{
		"@b:test": {"!d1:test"},
		"@c:test": {"!d2:test"},
	}, byUser["@a:test"].content)
	require.Equal(t, map[string][]string{
		"@a:test": {"!d1:test"},
	}, byUser["@b:test"].content)
	require.Equal(t, map[string][]string{
		"@a:test": {"!d2:test"},
	}, byUser["@c:test"].content)

	// Repeating the fixup replaces the account data with the identical
	// content.
	require.NoError(t, s.fixupDirectChats(ctx))
	require.Len(t, homeserver.accountData, 6)
	for _, call := range homeserver.accountData[3:] {
		require.Equal(t, byUser[call.userID].content, call.content)
	}
}

func TestPinnedMessageFixupSkipsUnresolvedPins(t *testing.T) {
	ctx := testContext()
	store := newMemStore()
	homeserver := newFakeHomeserver()

	putUser(t, store, homeserver, "u1", "@a:test")
	putRoom(t, store, "r1", "!r1:test")
	putRoom(t, store, "r2", "!r2:test")
	require.NoError(t, store.SaveMembership(ctx, "r1", "u1"))

	require.NoError(t, store.Put(ctx, &migration.Mapping{
		Type: migration.MappingTypeMessage, SourceID: "m1", TargetID: "$m1",
	}))
	require.NoError(t, store.Put(ctx, &migration.Mapping{
		Type: migration.MappingTypeMessage, SourceID: "m2", TargetID: "$m2",
	}))
	require.NoError(t, store.Put(ctx, &migration.Mapping{
		Type: migration.MappingTypeMessage, SourceID: "m3", TargetID: "$m3",
	}))

	require.NoError(t, store.SavePinnedMessage(ctx, "r1", "m1"))
	// The message never got migrated: skipped with a warning.
	require.NoError(t, store.SavePinnedMessage(ctx, "r1", "m9"))
	// The room never got migrated: skipped with a warning.
	require.NoError(t, store.SavePinnedMessage(ctx, "r9", "m2"))
	// No migrated member to pin with: skipped with a warning.
	require.NoError(t, store.SavePinnedMessage(ctx, "r2", "m3"))

	s := NewService(store, homeserver, nil, testConfig())

	require.NoError(t, s.fixupPinnedMessages(ctx))

	require.Len(t, homeserver.roomState, 1)
	call := homeserver.roomState[0]
	require.Equal(t, "!r1:test", call.roomID)
	require.Equal(t, "m.room.pinned_events", call.eventType)
	require.Equal(t, "", call.stateKey)
	require.Equal(t, "tok-@a:test", call.token)

	content, err := json.Marshal(call.content)
	require.NoError(t, err)
	require.JSONEq(t, `{"pinned":["$m1"]}`, string(content))

	// The fixup is safe to repeat.
	require.NoError(t, s.fixupPinnedMessages(ctx))
	require.Len(t, homeserver.roomState, 2)
	require.Equal(t, call, homeserver.roomState[1])
}
