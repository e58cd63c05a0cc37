package interceptors

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func TestLoggingUnary_LogsFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	interceptor := LoggingUnary(logger, nil)

	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.7"), Port: 5555}})
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	_, err := interceptor(ctx, nil, info, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.Unavailable, "down")
	})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("err = %v, want Unavailable passed through", err)
	}
	out := buf.String()
	for _, want := range []string{"level=WARN", "method=/grpc.health.v1.Health/Check", "code=Unavailable", "peer=10.0.0.7"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q missing %q", out, want)
		}
	}
}

func TestLoggingUnary_SkipMethods(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	skip := map[string]bool{"/grpc.health.v1.Health/Watch": true}
	interceptor := LoggingUnary(logger, skip)

	resp, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"},
		func(_ context.Context, req any) (any, error) { return req, nil })
	if err != nil || resp != "req" {
		t.Fatalf("resp, err = %v, %v", resp, err)
	}
	if buf.Len() != 0 {
		t.Errorf("skipped method logged: %q", buf.String())
	}
}

func TestPeerHost(t *testing.T) {
	if got := PeerHost(context.Background()); got != "unknown" {
		t.Errorf("PeerHost without peer = %q, want unknown", got)
	}
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}})
	if got := PeerHost(ctx); got != "127.0.0.1" {
		t.Errorf("PeerHost = %q, want 127.0.0.1", got)
	}
}
