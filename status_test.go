package sea

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xhdnoah/sea/socket"
)

func TestServiceSocket_Status(t *testing.T) {
	server := NewServer(Config{
		AppName:       "sea-status-test",
		Workers:       1,
		ServiceSocket: true,
	}, testLogger())

	server.runServiceSocket()
	time.Sleep(500 * time.Millisecond)

	client := socket.NewClient(server.cfg.SocketName())

	resp, err := client.Send(socket.Request{Action: PingAction})
	require.NoError(t, err)
	require.Equal(t, socket.StatusOk, resp.Status)
	require.Equal(t, `"pong"`, string(resp.Data))

	resp, err = client.Send(socket.Request{Action: StatusAction})
	require.NoError(t, err)
	require.Equal(t, socket.StatusOk, resp.Status)

	info, err := ParseStateInfo(resp.Data)
	require.NoError(t, err)
	require.Equal(t, "sea-status-test", info.App)
	require.Equal(t, RoleMaster, info.Role)
	require.Empty(t, info.Workers)
}
