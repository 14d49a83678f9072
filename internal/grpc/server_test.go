package grpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"companion-chat/backend/pkg/health"
	"companion-chat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

func TestServer_MirrorsChecker(t *testing.T) {
	checker := health.NewChecker(logger.Discard(), time.Minute)
	dbErr := errors.New("down")
	checker.RegisterDatabaseCheck(func(context.Context) error { return dbErr })

	srv := NewServer(checker, logger.Discard())
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx, lis, time.Hour) }()
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err)
		return resp.GetStatus()
	}

	checker.RunChecks(context.Background())
	srv.Sync()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(""))

	dbErr = nil
	checker.RunChecks(context.Background())
	srv.Sync()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(ServiceName))
}
