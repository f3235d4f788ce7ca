package bigip

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
)

const loginPath = "/mgmt/shared/authn/login"

type tokenState struct {
	mu    sync.Mutex
	value string
}

// authorize attaches credentials to an outgoing request: either basic auth,
// or an X-F5-Auth-Token acquired lazily on first use.
func (c *Client) authorize(req *http.Request) error {
	if !c.opts.TokenAuth {
		if c.opts.Username != "" {
			req.SetBasicAuth(c.opts.Username, c.opts.Password)
		}
		return nil
	}

	token, err := c.authToken(req.Context())
	if err != nil {
		return err
	}
	req.Header.Set("X-F5-Auth-Token", token)
	return nil
}

func (c *Client) authToken(ctx context.Context) (string, error) {
	c.token.mu.Lock()
	defer c.token.mu.Unlock()
	if c.token.value != "" {
		return c.token.value, nil
	}

	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	c.token.value = token
	return token, nil
}

// login exchanges the configured credentials for an auth token via the
// device token endpoint.
func (c *Client) login(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username":          c.opts.Username,
		"password":          c.opts.Password,
		"loginProviderName": "tmos",
	})
	if err != nil {
		return "", fmt.Errorf("encode login request: %w", err)
	}

	u, err := c.base.Parse(loginPath)
	if err != nil {
		return "", fmt.Errorf("build login url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("device login failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("device login failed: status %d: %s", resp.StatusCode, body)
	}

	var parsed struct {
		Token struct {
			Token string `json:"token"`
		} `json:"token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if parsed.Token.Token == "" {
		return "", fmt.Errorf("device login response contained no token")
	}

	c.logger.Debug("acquired device auth token")
	return parsed.Token.Token, nil
}
