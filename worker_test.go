package sea

import (
	"context"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func startHealthServer(t *testing.T) (*grpc.Server, string) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, health.NewServer())

	go func() { _ = srv.Serve(lis) }()

	return srv, lis.Addr().String()
}

func TestStopWorker_Idle(t *testing.T) {
	server := NewServer(Config{AppName: "test", Workers: 1, GracePeriod: 5}, testLogger())
	srv, _ := startHealthServer(t)

	start := time.Now()
	server.stopWorker(syscall.SIGTERM, srv)

	// An idle server drains immediately, long before the deadline.
	require.Less(t, time.Since(start), server.cfg.Drain())
}

func TestStopWorker_HungStream(t *testing.T) {
	server := NewServer(Config{AppName: "test", Workers: 1, GracePeriod: 5}, testLogger())
	srv, addr := startHealthServer(t)

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// An open watch stream keeps one RPC in flight forever, so the
	// graceful stop cannot finish on its own and the hard stop must
	// fire at the drain deadline.
	watch, err := healthpb.NewHealthClient(conn).Watch(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	_, err = watch.Recv()
	require.NoError(t, err)

	start := time.Now()
	server.stopWorker(syscall.SIGTERM, srv)
	elapsed := time.Since(start)

	require.GreaterOrEqual(t, elapsed, server.cfg.Drain())
	require.Less(t, elapsed, server.cfg.Grace())
}

func TestRunWorker_BindFailure(t *testing.T) {
	// Grab a plain listener without SO_REUSEPORT: the worker's own
	// bind on the same address must then fail, and the failure is
	// fatal, not retried.
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	port := lis.Addr().(*net.TCPAddr).Port

	server := NewServer(Config{
		AppName: "test",
		Workers: 1,
		Host:    "127.0.0.1",
		Port:    port,
	}, testLogger())

	err = server.runWorker()
	require.Error(t, err)
	require.Contains(t, err.Error(), "worker bind failed")
}
