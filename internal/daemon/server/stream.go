package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// wsClient attaches a websocket connection to a project hub. Each hub
// message is one text frame.
type wsClient struct {
	conn    *websocket.Conn
	timeout time.Duration
	remote  string

	mu     sync.Mutex
	closed chan struct{}
	once   sync.Once
}

func (c *wsClient) Send(line []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, line)
}

func (c *wsClient) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *wsClient) String() string {
	return "websocket:" + c.remote
}

// handleStreamBroadcast upgrades to a websocket and attaches it to the hub
// of the project named by the root query parameter.
func (s *Server) handleStreamBroadcast(w http.ResponseWriter, r *http.Request) {
	if !s.ready(w) || !allow(w, r, http.MethodGet) {
		return
	}

	entry, err := s.engine.State().Get(r.URL.Query().Get("root"))
	if err != nil {
		writeResponse(w, nil, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn, timeout: s.writeTimeout, remote: r.RemoteAddr, closed: make(chan struct{})}
	entry.Hub.Attach(client)

	// Drain reads so close frames from the peer are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				client.Close()
				return
			}
		}
	}()

	select {
	case <-client.closed:
	case <-r.Context().Done():
		client.Close()
	}
}
