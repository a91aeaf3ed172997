package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/gtriggiano/ip-lookup-service/pkg/config"
	"github.com/gtriggiano/ip-lookup-service/pkg/provider"
)

func TestServerServesAndShutsDown(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	env := newTestEnv(t, provider.NewRegistry(nil), "jsonip", nil)
	srv := NewServer(config.ServerConfig{Address: listener.Addr().String()}, env.handler, time.Second, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx, listener, func() { close(ready) })
	}()

	select {
	case <-ready:
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}

	resp, err := http.Get("http://" + listener.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("get /health: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServerStartListenError(t *testing.T) {
	srv := NewServer(config.ServerConfig{Address: "256.0.0.1:99999"}, http.NotFoundHandler(), 0, zaptest.NewLogger(t))
	if err := srv.Start(context.Background(), nil); err == nil {
		t.Fatal("expected listen error")
	}
}
