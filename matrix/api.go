package matrix

import (
	"context"
	"fmt"
	"net/url"
	"sort"

	"github.com/pkg/errors"

	"github.com/TallBlondMan/rocketchat2matrix/migration"
)

// CreateUser registers the account through the Synapse admin API. The
// endpoint is an upsert, so retrying an interrupted run is safe.
func (c *Client) CreateUser(ctx context.Context, username, displayName string) (string, error) {
	userID := c.UserID(username)

	body := struct {
		Displayname string `json:"displayname"`
		Admin       bool   `json:"admin"`
	}{
		Displayname: displayName,
		Admin:       false,
	}

	err := c.Put(ctx, fmt.Sprintf("/_synapse/admin/v2/users/%s", url.PathEscape(userID)), body, nil)
	if err != nil {
		return "", errors.Wrapf(err, "couldn't create user %s", userID)
	}

	return userID, nil
}

// LoginUser obtains an access token for the user without knowing their
// password, via the admin login-as endpoint.
func (c *Client) LoginUser(ctx context.Context, userID string) (string, error) {
	response := struct {
		AccessToken string `json:"access_token"`
	}{}

	err := c.Post(ctx, fmt.Sprintf("/_synapse/admin/v1/users/%s/login", url.PathEscape(userID)), struct{}{}, &response)
	if err != nil {
		return "", errors.Wrapf(err, "couldn't log in as user %s", userID)
	}

	return response.AccessToken, nil
}

func (c *Client) SetDisplayName(ctx context.Context, userID, displayName, accessToken string) error {
	body := struct {
		Displayname string `json:"displayname"`
	}{
		Displayname: displayName,
	}

	err := c.Put(ctx, fmt.Sprintf("/_matrix/client/v3/profile/%s/displayname", url.PathEscape(userID)), body, nil, AsUser(accessToken))

	return errors.Wrapf(err, "couldn't set display name of %s", userID)
}

func (c *Client) CreateRoom(ctx context.Context, req migration.CreateRoomRequest, creatorToken string) (string, error) {
	body := struct {
		Name     string   `json:"name,omitempty"`
		Topic    string   `json:"topic,omitempty"`
		Preset   string   `json:"preset,omitempty"`
		IsDirect bool     `json:"is_direct"`
		Invite   []string `json:"invite,omitempty"`
	}{
		Name:     req.Name,
		Topic:    req.Topic,
		Preset:   req.Preset,
		IsDirect: req.IsDirect,
		Invite:   req.Invite,
	}

	response := struct {
		RoomID string `json:"room_id"`
	}{}

	err := c.Post(ctx, "/_matrix/client/v3/createRoom", body, &response, AsUser(creatorToken))
	if err != nil {
		return "", errors.Wrapf(err, "couldn't create room %s", req.Name)
	}

	return response.RoomID, nil
}

func (c *Client) InviteUser(ctx context.Context, roomID, userID, inviterToken string) error {
	body := struct {
		UserID string `json:"user_id"`
	}{
		UserID: userID,
	}

	err := c.Post(ctx, fmt.Sprintf("/_matrix/client/v3/rooms/%s/invite", url.PathEscape(roomID)), body, nil, AsUser(inviterToken))

	return errors.Wrapf(err, "couldn't invite %s to room %s", userID, roomID)
}

func (c *Client) JoinRoom(ctx context.Context, roomID, accessToken string) error {
	err := c.Post(ctx, fmt.Sprintf("/_matrix/client/v3/join/%s", url.PathEscape(roomID)), struct{}{}, nil, AsUser(accessToken))

	return errors.Wrapf(err, "couldn't join room %s", roomID)
}

// SendMessage sends a text message as the user. The transaction id is
// derived from the source message id by the caller, which makes retries
// of the same record idempotent on the homeserver side.
func (c *Client) SendMessage(ctx context.Context, roomID, text, txnID, accessToken string) (string, error) {
	body := struct {
		MsgType string `json:"msgtype"`
		Body    string `json:"body"`
	}{
		MsgType: "m.text",
		Body:    text,
	}

	response := struct {
		EventID string `json:"event_id"`
	}{}

	err := c.Put(
		ctx,
		fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/m.room.message/%s", url.PathEscape(roomID), url.PathEscape(txnID)),
		body,
		&response,
		AsUser(accessToken),
	)
	if err != nil {
		return "", errors.Wrapf(err, "couldn't send message to room %s", roomID)
	}

	return response.EventID, nil
}

// JoinedMembers returns the current live membership of the room, never a
// cached snapshot.
func (c *Client) JoinedMembers(ctx context.Context, roomID string) ([]string, error) {
	response := struct {
		Joined map[string]struct {
			DisplayName string `json:"display_name"`
		} `json:"joined"`
	}{}

	err := c.Get(ctx, fmt.Sprintf("/_matrix/client/v3/rooms/%s/joined_members", url.PathEscape(roomID)), &response)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't get members of room %s", roomID)
	}

	members := make([]string, 0, len(response.Joined))
	for member := range response.Joined {
		members = append(members, member)
	}
	sort.Strings(members)

	return members, nil
}

func (c *Client) LeaveRoom(ctx context.Context, roomID, accessToken string) error {
	err := c.Post(ctx, fmt.Sprintf("/_matrix/client/v3/rooms/%s/leave", url.PathEscape(roomID)), struct{}{}, nil, AsUser(accessToken))

	return errors.Wrapf(err, "couldn't leave room %s", roomID)
}

func (c *Client) SetAccountData(ctx context.Context, userID, eventType string, content interface{}, accessToken string) error {
	err := c.Put(
		ctx,
		fmt.Sprintf("/_matrix/client/v3/user/%s/account_data/%s", url.PathEscape(userID), url.PathEscape(eventType)),
		content,
		nil,
		AsUser(accessToken),
	)

	return errors.Wrapf(err, "couldn't set %s account data of %s", eventType, userID)
}

func (c *Client) SetRoomState(ctx context.Context, roomID, eventType, stateKey string, content interface{}, accessToken string) error {
	err := c.Put(
		ctx,
		fmt.Sprintf("/_matrix/client/v3/rooms/%s/state/%s/%s", url.PathEscape(roomID), url.PathEscape(eventType), url.PathEscape(stateKey)),
		content,
		nil,
		AsUser(accessToken),
	)

	return errors.Wrapf(err, "couldn't set %s state of room %s", eventType, roomID)
}
