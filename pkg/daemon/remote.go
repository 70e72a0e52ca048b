package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/pkg/models"
)

// RemoteClient implements Client by calling the daemon's HTTP API over a Unix socket.
type RemoteClient struct {
	httpClient *http.Client
	dialer     *websocket.Dialer
	socketPath string
}

// NewRemoteClient creates a new RemoteClient connected to the daemon socket.
func NewRemoteClient(socketPath string) *RemoteClient {
	dial := func(ctx context.Context, _, _ string) (net.Conn, error) {
		var d net.Dialer
		return d.DialContext(ctx, "unix", socketPath)
	}

	transport := &http.Transport{
		DialContext:     dial,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}

	return &RemoteClient{
		httpClient: &http.Client{Transport: transport, Timeout: 10 * time.Second},
		dialer:     &websocket.Dialer{NetDialContext: dial, HandshakeTimeout: 5 * time.Second},
		socketPath: socketPath,
	}
}

// baseURL is the dummy host used for Unix socket HTTP requests.
// The actual connection goes through the Unix socket, not this URL.
const baseURL = "http://unix"

// envelope mirrors the daemon's response wrapper.
type envelope struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error *errors.Error   `json:"error,omitempty"`
}

// Register attaches a client process to a project.
func (c *RemoteClient) Register(ctx context.Context, client models.Client) (models.RegisterResponse, error) {
	var resp models.RegisterResponse
	err := c.do(ctx, http.MethodPost, "/api/register", client, &resp)
	return resp, err
}

// Drop detaches a client process from a project.
func (c *RemoteClient) Drop(ctx context.Context, client models.Client) error {
	return c.do(ctx, http.MethodPost, "/api/drop", client, nil)
}

// Build submits a build request.
func (c *RemoteClient) Build(ctx context.Context, req models.BuildRequest) error {
	return c.do(ctx, http.MethodPost, "/api/build", req, nil)
}

// Run submits a run request.
func (c *RemoteClient) Run(ctx context.Context, req models.RunRequest) error {
	return c.do(ctx, http.MethodPost, "/api/run", req, nil)
}

// State returns every open project.
func (c *RemoteClient) State(ctx context.Context) ([]models.ProjectInfo, error) {
	var infos []models.ProjectInfo
	err := c.do(ctx, http.MethodGet, "/api/state", nil, &infos)
	return infos, err
}

// Stream attaches to a project's broadcast over a websocket.
func (c *RemoteClient) Stream(ctx context.Context, root string) (<-chan models.Message, error) {
	u := "ws://unix/api/stream?root=" + url.QueryEscape(root)
	conn, resp, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			defer resp.Body.Close()
			var env envelope
			if json.NewDecoder(resp.Body).Decode(&env) == nil && env.Error != nil {
				return nil, env.Error
			}
		}
		return nil, errors.Wrap(err, errors.ErrCodeIO, "failed to attach to project stream")
	}

	out := make(chan models.Message, 64)
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	go func() {
		defer close(out)
		defer stop()
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg models.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// IsRunning returns true if the daemon answers its health check.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close cleans up any resources used by the client.
func (c *RemoteClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *RemoteClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	var req *http.Request
	var err error
	if reader != nil {
		req, err = http.NewRequestWithContext(ctx, method, baseURL+path, reader)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, baseURL+path, nil)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeIO, "daemon request failed").WithDetail("path", path)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode daemon response").
			WithDetail("status", resp.StatusCode)
	}
	if env.Error != nil {
		return env.Error
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode daemon data")
		}
	}
	return nil
}
