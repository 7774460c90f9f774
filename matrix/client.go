// Package matrix implements the slice of the Matrix client-server and
// Synapse admin APIs the migration drives. All calls go through a shared
// rate limiter, since homeservers throttle aggressively under bulk
// creation load.
package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/beefsack/go-rate"
	"github.com/pkg/errors"
)

type Client struct {
	cli        *http.Client
	baseURL    *url.URL
	adminToken string
	serverName string
	limiter    *rate.RateLimiter
}

func NewClient(homeserverURL, adminToken, serverName string, requestsPerSecond int) (*Client, error) {
	base, err := url.Parse(homeserverURL)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't parse homeserver url")
	}
	if requestsPerSecond <= 0 {
		return nil, errors.Errorf("invalid requests per second: %d", requestsPerSecond)
	}

	return &Client{
		cli: &http.Client{
			Timeout: time.Second * 40,
		},
		baseURL:    base,
		adminToken: adminToken,
		serverName: serverName,
		limiter:    rate.New(requestsPerSecond, time.Second),
	}, nil
}

// UserID builds the fully qualified Matrix user id for a migrated
// username.
func (c *Client) UserID(username string) string {
	return fmt.Sprintf("@%s:%s", username, c.serverName)
}

type session struct {
	accessToken string
}

type SessionOption func(*session)

// AsUser makes the request act on the homeserver with the given user's
// access token instead of the admin token.
func AsUser(accessToken string) SessionOption {
	return func(s *session) {
		s.accessToken = accessToken
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, opts ...SessionOption) error {
	sess := &session{accessToken: c.adminToken}
	for _, opt := range opts {
		opt(sess)
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "couldn't marshal request body")
		}
		reqBody = bytes.NewReader(data)
	}

	ref, err := url.Parse(path)
	if err != nil {
		return errors.Wrapf(err, "couldn't parse request path %s", path)
	}

	req, err := http.NewRequest(method, c.baseURL.ResolveReference(ref).String(), reqBody)
	if err != nil {
		return errors.Wrap(err, "couldn't create request")
	}
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sess.accessToken))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.limiter.Wait()

	res, err := c.cli.Do(req)
	if err != nil {
		return errors.Wrapf(err, "couldn't make request %s %s", method, path)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return errors.Wrapf(err, "couldn't read response of %s %s", method, path)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &APIError{
			Method:     method,
			Path:       path,
			StatusCode: res.StatusCode,
			Body:       string(data),
		}
	}

	if out != nil {
		err = json.Unmarshal(data, out)
		if err != nil {
			return errors.Wrapf(err, "couldn't unmarshal response of %s %s", method, path)
		}
	}

	return nil
}

func (c *Client) Get(ctx context.Context, path string, out interface{}, opts ...SessionOption) error {
	return c.do(ctx, http.MethodGet, path, nil, out, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body, out interface{}, opts ...SessionOption) error {
	return c.do(ctx, http.MethodPost, path, body, out, opts...)
}

func (c *Client) Put(ctx context.Context, path string, body, out interface{}, opts ...SessionOption) error {
	return c.do(ctx, http.MethodPut, path, body, out, opts...)
}

// Whoami verifies the admin access token works before anything else is
// attempted.
func (c *Client) Whoami(ctx context.Context) (string, error) {
	response := struct {
		UserID string `json:"user_id"`
	}{}

	err := c.Get(ctx, "/_matrix/client/v3/account/whoami", &response)
	if err != nil {
		return "", errors.Wrap(err, "couldn't get own user id")
	}

	return response.UserID, nil
}
