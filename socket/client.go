package socket

import (
	"encoding/json"
	"fmt"
	"net"
)

// Client sends control commands to the unix socket of a running
// instance, one request per connection.
type Client struct {
	socketName string
}

// NewClient returns a client bound to the given socket path.
func NewClient(socketName string) *Client {
	return &Client{socketName: socketName}
}

// Send dials the socket, writes the request and reads back one
// `Response`. The connection is closed either way.
func (c *Client) Send(request Request) (*Response, error) {
	conn, err := net.Dial("unix", c.socketName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = conn.Close() }()

	if err = json.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("unable to encode request: %s", err)
	}

	response := new(Response)
	if err = json.NewDecoder(conn).Decode(response); err != nil {
		return nil, fmt.Errorf("unable to decode response: %s", err)
	}
	return response, nil
}
