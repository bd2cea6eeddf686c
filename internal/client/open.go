package client

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/nrednav/cuid2"

	"github.com/bentobox/bentobox/internal/control"
)

// openService performs the open_service handshake on conn: it sends
// the request, then loops on starting/error/opened frames, reporting
// each starting attempt through onStarting. It returns once the
// service is opened, with the connection's deadlines cleared.
func openService(conn net.Conn, service string, opts *control.OpenServiceOptions, onStarting func(attempt, maxAttempts, retryAfterSecs int)) error {
	req := control.Request{
		ID:      cuid2.Generate(),
		Op:      control.OpOpenService,
		Service: service,
	}
	if opts != nil {
		raw, err := json.Marshal(opts)
		if err != nil {
			return fmt.Errorf("encode open_service options: %w", err)
		}
		req.Options = raw
	}

	setHandshakeDeadlines(conn)
	if err := control.WriteRequest(conn, req); err != nil {
		return fmt.Errorf("send open_service request: %w", err)
	}

	r := control.NewLineReader(conn)
	for {
		line, err := control.ReadLine(r)
		if err != nil {
			return fmt.Errorf("read control response: %w", err)
		}
		var resp control.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			return fmt.Errorf("decode control response: %w", err)
		}

		switch resp.Status {
		case control.StatusOpened:
			clearDeadlines(conn)
			return nil
		case control.StatusStarting:
			setHandshakeDeadlines(conn)
			if onStarting != nil {
				onStarting(resp.Attempt, resp.MaxAttempts, resp.RetryAfterSecs)
			}
		case control.StatusError:
			return renderControlError(resp.Code, resp.Message)
		default:
			return fmt.Errorf("unexpected control response status %q", resp.Status)
		}
	}
}
