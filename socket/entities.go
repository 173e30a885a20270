package socket

import "encoding/json"

// Processing status codes carried in `Response.Status`.
const (
	// StatusOk means the command was handled.
	StatusOk = 0
	// StatusErr means the handler refused the command,
	// `Response.Error` says why.
	StatusErr = 13
	// StatusInternalErr means the command never reached a handler
	// or the reply could not be encoded.
	StatusInternalErr = -1
)

// Action binds a control-command name to its handler.
type Action struct {
	Name    string
	Handler ActionFunc
}

// ActionFunc handles one control command of a running instance.
type ActionFunc func(request Request) Response

func defaultHandler(Request) Response {
	return Response{Status: StatusErr, Error: "unknown_action"}
}

// Request is one control command with its optional JSON arguments.
type Request struct {
	Action string          `json:"action"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// Response carries a handler's result back over the socket.
type Response struct {
	Status int             `json:"status"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// NewResponse builds a `Response`, marshaling `data` into its payload.
// A payload that cannot be marshaled degrades the response to
// `StatusInternalErr` instead of dropping it.
func NewResponse(status int, data interface{}, errorStr string) Response {
	val := json.RawMessage{}
	if data != nil {
		var err error
		val, err = json.Marshal(data)
		if err != nil {
			status = StatusInternalErr
			errorStr = err.Error()
		}
	}
	return Response{Status: status, Data: val, Error: errorStr}
}
