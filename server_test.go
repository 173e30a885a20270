package sea

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// TestMain doubles as the worker entrypoint: the master spawns the test
// binary itself, and spawned copies carry the worker marker in their
// environment, exactly like a production binary re-executing itself.
func TestMain(m *testing.M) {
	if os.Getenv(EnvWorker) != "" {
		runTestWorker()
		return
	}
	os.Exit(m.Run())
}

func runTestWorker() {
	logger := logrus.New().WithField("env", "test-worker")

	server := NewServer(Config{
		AppName:     "sea-test",
		Workers:     2,
		Threads:     4,
		Host:        "127.0.0.1",
		GracePeriod: 5,
	}, logger)
	server.AddServicer("health", func(srv *grpc.Server) {
		healthpb.RegisterHealthServer(srv, health.NewServer())
	})

	if err := server.Run(); err != nil {
		logger.Fatal(err)
	}
}

func waitForServing(t *testing.T, addr string) {
	t.Helper()

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	deadline := time.Now().Add(10 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
		cancel()

		if err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("server at %s never became healthy: %v", addr, err)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

func TestServer_Run(t *testing.T) {
	port, release, err := ReservePort("127.0.0.1", 0)
	require.NoError(t, err)
	require.NoError(t, release())

	cfg := Config{
		AppName:     "sea-test",
		Workers:     2,
		Threads:     4,
		Host:        "127.0.0.1",
		Port:        port,
		GracePeriod: 5,
	}
	server := NewServer(cfg, testLogger())

	done := make(chan error, 1)
	go func() { done <- server.Run() }()

	waitForServing(t, fmt.Sprintf("127.0.0.1:%d", port))

	states := server.WorkerStates()
	require.Len(t, states, cfg.Workers)
	for _, state := range states {
		require.Equal(t, WStateRunning, state)
	}

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(cfg.Grace() + 10*time.Second):
		t.Fatal("master did not return after the grace deadline")
	}

	for _, state := range server.WorkerStates() {
		require.NotEqual(t, WStateRunning, state)
	}
}

func TestServer_Run_InvalidConfig(t *testing.T) {
	server := NewServer(Config{AppName: "sea-test"}, testLogger())

	err := server.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid config")
}

func TestServer_Run_ReservationFailure(t *testing.T) {
	// An address nobody can bind: reservation must fail before any
	// worker is spawned.
	server := NewServer(Config{
		AppName: "sea-test",
		Workers: 2,
		Host:    "203.0.113.1",
		Port:    50051,
	}, testLogger())

	err := server.Run()
	require.Error(t, err)
	require.Contains(t, err.Error(), "port reservation failed")
	require.Equal(t, 0, server.registry.Len())
}
