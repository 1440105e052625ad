package server

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// stubHandler is a no-op gRPC handler used in interceptor tests.
func stubHandler(_ context.Context, _ any) (any, error) {
	return "ok", nil
}

var testInfo = &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

func TestLoggingInterceptor_Success(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)

	resp, err := LoggingInterceptor(logger)(context.Background(), nil, testInfo, stubHandler)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp != "ok" {
		t.Fatalf("expected 'ok', got %v", resp)
	}
	if !strings.Contains(buf.String(), `"method":"/grpc.health.v1.Health/Check"`) {
		t.Fatalf("expected method in log, got %s", buf.String())
	}
}

func TestLoggingInterceptor_Error(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	failing := func(context.Context, any) (any, error) {
		return nil, status.Error(codes.NotFound, "nope")
	}
	_, err := LoggingInterceptor(logger)(context.Background(), nil, testInfo, failing)
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound to pass through, got %v", err)
	}
	if !strings.Contains(buf.String(), `"level":"error"`) || !strings.Contains(buf.String(), `"code":"NotFound"`) {
		t.Fatalf("expected error log with code, got %s", buf.String())
	}
}

func TestRecoveryInterceptor_NoPanic(t *testing.T) {
	resp, err := RecoveryInterceptor(zerolog.Nop())(context.Background(), nil, testInfo, stubHandler)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp != "ok" {
		t.Fatalf("expected 'ok', got %v", resp)
	}
}

func TestRecoveryInterceptor_Panic(t *testing.T) {
	var buf bytes.Buffer
	panicking := func(context.Context, any) (any, error) {
		panic("boom")
	}

	_, err := RecoveryInterceptor(zerolog.New(&buf))(context.Background(), nil, testInfo, panicking)
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal, got %v", err)
	}
	if !strings.Contains(buf.String(), `"panic":"boom"`) {
		t.Fatalf("expected panic value in log, got %s", buf.String())
	}
}

func TestRecoveryInterceptor_KeepsHandlerError(t *testing.T) {
	want := errors.New("plain failure")
	failing := func(context.Context, any) (any, error) { return nil, want }

	_, err := RecoveryInterceptor(zerolog.Nop())(context.Background(), nil, testInfo, failing)
	if !errors.Is(err, want) {
		t.Fatalf("expected handler error, got %v", err)
	}
}
