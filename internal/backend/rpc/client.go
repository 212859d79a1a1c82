package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/hierfs/hierfs/internal/backend"
	"github.com/hierfs/hierfs/internal/ferrors"
)

// Client is the HTTP implementation of backend.Client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ backend.Client = (*Client)(nil)

// NewClient returns a Client that talks to the backend listening at
// baseURL (e.g. "http://127.0.0.1:9000").
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}
}

func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/objects/"+key), nil)
	if err != nil {
		return nil, false, ferrors.Wrap(ferrors.BackendUnavailable, "build get request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, ferrors.Wrap(ferrors.BackendUnavailable, "get %q: %v", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, ferrors.Wrap(ferrors.BackendUnavailable, "get %q: status %d", key, resp.StatusCode)
	}

	var out getResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, false, ferrors.Wrap(ferrors.BackendUnavailable, "decode get %q: %v", key, err)
	}
	return out.Data, true, nil
}

func (c *Client) Put(ctx context.Context, key string, data []byte) error {
	body, err := json.Marshal(putRequest{Data: data})
	if err != nil {
		return ferrors.Wrap(ferrors.BackendUnavailable, "encode put %q: %v", key, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.url("/objects/"+key), bytes.NewReader(body))
	if err != nil {
		return ferrors.Wrap(ferrors.BackendUnavailable, "build put request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ferrors.Wrap(ferrors.BackendUnavailable, "put %q: %v", key, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusNoContent {
		return ferrors.Wrap(ferrors.BackendUnavailable, "put %q: status %d", key, resp.StatusCode)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.url("/objects/"+key), nil)
	if err != nil {
		return ferrors.Wrap(ferrors.BackendUnavailable, "build delete request: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ferrors.Wrap(ferrors.BackendUnavailable, "delete %q: %v", key, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusNoContent {
		return ferrors.Wrap(ferrors.BackendUnavailable, "delete %q: status %d", key, resp.StatusCode)
	}
	return nil
}

// NewKey allocates a client-side random key. Object keys only need to be
// unique, not backend-coordinated, so this avoids a network round trip for
// every create.
func (c *Client) NewKey() string {
	return uuid.NewString()
}

func (c *Client) url(path string) string {
	return fmt.Sprintf("%s%s", c.baseURL, path)
}
