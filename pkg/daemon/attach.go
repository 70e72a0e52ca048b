package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net"

	"github.com/grovetools/buildhub/errors"
	"github.com/grovetools/buildhub/pkg/models"
)

// Attach connects directly to a project's broadcast socket, as returned by
// Register, and decodes its newline-delimited messages. The channel is
// closed when ctx is cancelled or the hub shuts down.
func Attach(ctx context.Context, socket string) (<-chan models.Message, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socket)
	if err != nil {
		return nil, errors.IO(err, "connect", socket)
	}

	out := make(chan models.Message, 64)
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	go func() {
		defer close(out)
		defer stop()
		defer conn.Close()

		scanner := bufio.NewScanner(conn)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var msg models.Message
			if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
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
