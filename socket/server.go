// Package socket is a small JSON command protocol over a unix domain
// socket, used by the master process to answer control queries of a
// running instance.
package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
)

// Server opens a unix socket, accepts commands
// and writes responses in JSON format.
type Server struct {
	socketName string
	handlers   map[string]ActionFunc
	errors     chan error
}

// NewServer creates a new server with some actions.
func NewServer(socketName string, actions ...Action) *Server {
	handlers := map[string]ActionFunc{}
	for _, action := range actions {
		handlers[action.Name] = action.Handler
	}
	return &Server{socketName: socketName, handlers: handlers, errors: make(chan error)}
}

// Errors returns a channel with errors.
func (sw *Server) Errors() <-chan error {
	return sw.errors
}

// SetHandler adds new or replaces the command (action) handler.
func (sw *Server) SetHandler(name string, action ActionFunc) {
	sw.handlers[name] = action
}

// Serve creates the unix socket and listens for incoming commands until
// the context closes. Each accepted connection carries one `Request`;
// the matching handler runs and its `Response` is written back.
func (sw *Server) Serve(ctx context.Context) error {
	if err := sw.removeSocket(); err != nil {
		return err
	}

	var lc net.ListenConfig
	localSocket, err := lc.Listen(ctx, "unix", sw.socketName)
	if err != nil {
		return fmt.Errorf("unable to create unix domain socket: %s", err)
	}

	// Keep the socket private to the owner.
	if err = os.Chmod(sw.socketName, 0700); err != nil {
		return fmt.Errorf("unable to change the permissions for the socket: %s", err)
	}

	conns := make(chan net.Conn)
	go func() {
		for {
			socketConn, err := localSocket.Accept()
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
				}
				sw.errors <- fmt.Errorf("accept failed: %s", err)
				continue
			}
			conns <- socketConn
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if err = localSocket.Close(); err != nil {
				sw.errors <- fmt.Errorf("close failed: %s", err)
				return nil
			}
			if err = sw.removeSocket(); err != nil {
				sw.errors <- err
			}
			return nil
		case socketConn := <-conns:
			if err = sw.processSockRequest(socketConn); err != nil {
				sw.errors <- fmt.Errorf("process failed: %s", err)
				continue
			}
		}
	}
}

func (sw *Server) processSockRequest(conn net.Conn) error {
	defer func() { _ = conn.Close() }()

	decode := json.NewDecoder(conn)
	encode := json.NewEncoder(conn)

	var in Request
	if err := decode.Decode(&in); err != nil {
		return fmt.Errorf("unable to decode input: %s", err)
	}

	handler, ok := sw.handlers[in.Action]
	if !ok {
		handler = defaultHandler
	}

	result := handler(in)

	// Send response back to the socket request
	if err := encode.Encode(result); err != nil {
		return fmt.Errorf("unable to encode response: %s", err)
	}

	return nil
}

func (sw *Server) removeSocket() error {
	_, err := os.Stat(sw.socketName)
	if os.IsNotExist(err) {
		return nil
	}
	if err := os.Remove(sw.socketName); err != nil {
		return fmt.Errorf("unable to remove the socket: %s", err)
	}

	return nil
}
