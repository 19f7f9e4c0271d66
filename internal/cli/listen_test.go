package cli

import (
	"context"
	"testing"
	"time"

	"github.com/grantcarthew/cmdport/internal/listener"
	"github.com/grantcarthew/cmdport/internal/transport"
	"github.com/spf13/cobra"
)

func TestNewListenServer_PortZero(t *testing.T) {
	got := make(chan listener.Line, 1)
	srv, err := newListenServer([]string{"127.0.0.1:0"}, func(l listener.Line) { got <- l })
	if err != nil {
		t.Fatalf("newListenServer() error = %v", err)
	}
	defer srv.Close()

	if srv.Addr().Port == 0 {
		t.Fatal("port 0 was not resolved to a free port")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	c := transport.NewClient(transport.Config{})
	if err := c.Send(ctx, srv.Addr(), []byte("refresh\n")); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case line := <-got:
		if line.Text != "refresh" {
			t.Errorf("received %q, want refresh", line.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("nothing received")
	}
}

func TestRunListen_PortZeroStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	if err := runListen(cmd, []string{"127.0.0.1:0"}); err != nil {
		t.Errorf("runListen() error = %v", err)
	}
}

func TestNewListenServer_InvalidAddress(t *testing.T) {
	if _, err := newListenServer([]string{"localhost:-1"}, func(listener.Line) {}); err == nil {
		t.Error("expected error for negative port")
	}
}
