package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/TallBlondMan/rocketchat2matrix/migration"
)

func testContext() context.Context {
	return ctxzap.ToContext(context.Background(), zap.NewNop())
}

func testConfig() *migration.Config {
	return &migration.Config{
		AdminUsername:     "admin",
		RoomWorkers:       2,
		MemberWorkers:     2,
		ExcludedUserRoles: []string{"bot", "app"},
	}
}

// memStore is an in-memory MappingStore for handler tests; the sqlite
// implementation has its own tests.
type memStore struct {
	mu          sync.Mutex
	mappings    map[string]*migration.Mapping
	order       []string
	memberships map[string][]string
	directChats []string
	pins        []migration.PinnedMessage
}

func newMemStore() *memStore {
	return &memStore{
		mappings:    map[string]*migration.Mapping{},
		memberships: map[string][]string{},
	}
}

func mappingKey(mappingType migration.MappingType, sourceID string) string {
	return fmt.Sprintf("%d|%s", mappingType, sourceID)
}

func (s *memStore) Get(ctx context.Context, mappingType migration.MappingType, sourceID string) (*migration.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mapping, ok := s.mappings[mappingKey(mappingType, sourceID)]
	if !ok {
		return nil, migration.ErrNotFound
	}
	out := *mapping
	return &out, nil
}

func (s *memStore) GetByTargetID(ctx context.Context, targetID string) (*migration.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range s.order {
		mapping := s.mappings[key]
		if mapping.TargetID != "" && mapping.TargetID == targetID {
			out := *mapping
			return &out, nil
		}
	}
	return nil, migration.ErrNotFound
}

func (s *memStore) GetAllByType(ctx context.Context, mappingType migration.MappingType) ([]*migration.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mappings []*migration.Mapping
	for _, key := range s.order {
		mapping := s.mappings[key]
		if mapping.Type == mappingType {
			out := *mapping
			mappings = append(mappings, &out)
		}
	}
	return mappings, nil
}

func (s *memStore) Put(ctx context.Context, mapping *migration.Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := mappingKey(mapping.Type, mapping.SourceID)
	if _, ok := s.mappings[key]; !ok {
		s.order = append(s.order, key)
	}
	out := *mapping
	s.mappings[key] = &out
	return nil
}

func (s *memStore) SaveMembership(ctx context.Context, roomSourceID, memberSourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, member := range s.memberships[roomSourceID] {
		if member == memberSourceID {
			return nil
		}
	}
	s.memberships[roomSourceID] = append(s.memberships[roomSourceID], memberSourceID)
	return nil
}

func (s *memStore) GetMemberships(ctx context.Context, roomSourceID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string{}, s.memberships[roomSourceID]...), nil
}

func (s *memStore) SaveDirectChat(ctx context.Context, roomSourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, room := range s.directChats {
		if room == roomSourceID {
			return nil
		}
	}
	s.directChats = append(s.directChats, roomSourceID)
	return nil
}

func (s *memStore) GetDirectChats(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string{}, s.directChats...), nil
}

func (s *memStore) SavePinnedMessage(ctx context.Context, roomSourceID, messageSourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pin := range s.pins {
		if pin.RoomSourceID == roomSourceID && pin.MessageSourceID == messageSourceID {
			return nil
		}
	}
	s.pins = append(s.pins, migration.PinnedMessage{RoomSourceID: roomSourceID, MessageSourceID: messageSourceID})
	return nil
}

func (s *memStore) GetPinnedMessages(ctx context.Context) ([]migration.PinnedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]migration.PinnedMessage{}, s.pins...), nil
}

func (s *memStore) Close() error {
	return nil
}

type accountDataCall struct {
	userID    string
	eventType string
	content   interface{}
	token     string
}

type roomStateCall struct {
	roomID    string
	eventType string
	stateKey  string
	content   interface{}
	token     string
}

// fakeHomeserver tracks live room membership and counts creation calls.
type fakeHomeserver struct {
	mu sync.Mutex

	createUserCalls  int
	createRoomCalls  int
	sendMessageCalls int

	nextRoom    int
	tokenOwner  map[string]string          // access token -> user id
	members     map[string]map[string]bool // room id -> live members
	leaves      []string                   // "room/member" in removal order
	accountData []accountDataCall
	roomState   []roomStateCall

	leaveErrors  map[string]error // "room/member" -> injected error
	inviteErrors map[string]error // invited user id -> injected error
}

func newFakeHomeserver() *fakeHomeserver {
	return &fakeHomeserver{
		tokenOwner:   map[string]string{},
		members:      map[string]map[string]bool{},
		leaveErrors:  map[string]error{},
		inviteErrors: map[string]error{},
	}
}

// addUser registers a known user with a token without counting it as a
// creation call.
func (h *fakeHomeserver) addUser(userID, token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tokenOwner[token] = userID
}

func (h *fakeHomeserver) addRoom(roomID string, members ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.members[roomID] = map[string]bool{}
	for _, member := range members {
		h.members[roomID][member] = true
	}
}

func (h *fakeHomeserver) CreateUser(ctx context.Context, username, displayName string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.createUserCalls++
	return fmt.Sprintf("@%s:test", username), nil
}

func (h *fakeHomeserver) LoginUser(ctx context.Context, userID string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	token := "tok-" + userID
	h.tokenOwner[token] = userID
	return token, nil
}

func (h *fakeHomeserver) SetDisplayName(ctx context.Context, userID, displayName, accessToken string) error {
	return nil
}

func (h *fakeHomeserver) CreateRoom(ctx context.Context, req migration.CreateRoomRequest, creatorToken string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.createRoomCalls++
	h.nextRoom++
	roomID := fmt.Sprintf("!room%d:test", h.nextRoom)
	h.members[roomID] = map[string]bool{
		h.tokenOwner[creatorToken]: true,
	}
	return roomID, nil
}

func (h *fakeHomeserver) InviteUser(ctx context.Context, roomID, userID, inviterToken string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inviteErrors[userID]
}

func (h *fakeHomeserver) JoinRoom(ctx context.Context, roomID, accessToken string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.members[roomID] == nil {
		h.members[roomID] = map[string]bool{}
	}
	h.members[roomID][h.tokenOwner[accessToken]] = true
	return nil
}

func (h *fakeHomeserver) SendMessage(ctx context.Context, roomID, text, txnID, accessToken string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendMessageCalls++
	return "$" + txnID, nil
}

func (h *fakeHomeserver) JoinedMembers(ctx context.Context, roomID string) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := make([]string, 0, len(h.members[roomID]))
	for member := range h.members[roomID] {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

func (h *fakeHomeserver) LeaveRoom(ctx context.Context, roomID, accessToken string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	member := h.tokenOwner[accessToken]
	if err, ok := h.leaveErrors[roomID+"/"+member]; ok {
		return err
	}
	delete(h.members[roomID], member)
	h.leaves = append(h.leaves, roomID+"/"+member)
	return nil
}

func (h *fakeHomeserver) SetAccountData(ctx context.Context, userID, eventType string, content interface{}, accessToken string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accountData = append(h.accountData, accountDataCall{
		userID:    userID,
		eventType: eventType,
		content:   content,
		token:     accessToken,
	})
	return nil
}

func (h *fakeHomeserver) SetRoomState(ctx context.Context, roomID, eventType, stateKey string, content interface{}, accessToken string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roomState = append(h.roomState, roomStateCall{
		roomID:    roomID,
		eventType: eventType,
		stateKey:  stateKey,
		content:   content,
		token:     accessToken,
	})
	return nil
}

func (h *fakeHomeserver) leaveCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.leaves)
}

var _ migration.MappingStore = (*memStore)(nil)
var _ migration.Homeserver = (*fakeHomeserver)(nil)
