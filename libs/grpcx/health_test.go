package grpcx

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func TestHealthCheckFollowsServingStatus(t *testing.T) {
	hs := NewHealthServer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	lis := bufconn.Listen(1 << 16)
	go func() { _ = hs.srv.Serve(lis) }()
	t.Cleanup(hs.srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	check := HealthCheck(conn, "clinic-service")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	hs.SetServing("clinic-service", false)
	if err := check(ctx); err == nil {
		t.Fatalf("expected not serving error")
	}

	hs.SetServing("clinic-service", true)
	if err := check(ctx); err != nil {
		t.Fatalf("expected serving, got %v", err)
	}
}
