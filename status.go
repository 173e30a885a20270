package sea

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/lancer-kit/sam"

	"github.com/xhdnoah/sea/socket"
)

const (
	// StatusAction is a command useful for health-checks, it returns
	// the lifecycle state of all worker processes.
	StatusAction = "status"
	// PingAction is a simple command that returns the "pong" message.
	PingAction = "ping"
)

// StateInfo is the result of the `StatusAction` command.
type StateInfo struct {
	App     string            `json:"app"`
	Role    Role              `json:"role"`
	Workers map[int]sam.State `json:"workers"`
}

// ParseStateInfo decodes `StateInfo` from the JSON response for the `StatusAction` command.
func ParseStateInfo(data json.RawMessage) (*StateInfo, error) {
	res := new(StateInfo)
	if err := json.Unmarshal(data, res); err != nil {
		return nil, err
	}
	return res, nil
}

// StateInfo returns the current view of the supervised processes.
func (s *Server) StateInfo() StateInfo {
	return StateInfo{
		App:     s.cfg.AppName,
		Role:    s.Role(),
		Workers: s.registry.States(),
	}
}

// runServiceSocket opens the master's unix control socket with the
// `ping` and `status` commands.
func (s *Server) runServiceSocket() {
	if !s.cfg.ServiceSocket {
		return
	}

	server := socket.NewServer(s.cfg.SocketName(),
		socket.Action{
			Name: PingAction,
			Handler: func(socket.Request) socket.Response {
				return socket.NewResponse(socket.StatusOk, "pong", "")
			},
		},
		socket.Action{
			Name: StatusAction,
			Handler: func(socket.Request) socket.Response {
				return socket.NewResponse(socket.StatusOk, s.StateInfo(), "")
			},
		},
	)

	go func() {
		for err := range server.Errors() {
			s.logger.WithError(err).Warn("service socket failure")
		}
	}()

	go func() {
		s.logger.WithField("socket", s.cfg.SocketName()).
			Info("starting service socket")

		if err := server.Serve(context.Background()); err != nil {
			s.logger.WithError(err).Error("service socket failed")
		}
	}()
}

func writeStatus(w http.ResponseWriter, info StateInfo) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(info)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(data)
}
