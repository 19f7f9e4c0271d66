package executor

import (
	"bytes"
	"context"
	"io"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/grantcarthew/cmdport/internal/command"
	"github.com/grantcarthew/cmdport/internal/config"
	"github.com/grantcarthew/cmdport/internal/dispatch"
	"github.com/grantcarthew/cmdport/internal/transport"
	"github.com/spf13/afero"
)

func TestDryRunExecutor_Dispatch(t *testing.T) {
	tests := []struct {
		name   string
		format command.Format
		cmd    command.Command
		want   string
	}{
		{
			name:   "plain",
			format: command.FormatPlain,
			cmd:    command.New("A", command.Strings("x", "1")...),
			want:   "A \"x\" \"1\"\n",
		},
		{
			name:   "python",
			format: command.FormatPython,
			cmd:    command.New("select", command.String("pCube1")),
			want:   "select(\"pCube1\")\n",
		},
		{
			name:   "mel",
			format: command.FormatMEL,
			cmd:    command.New("setAttr", command.String("pCube1.tx"), command.Int(2)),
			want:   "setAttr \"pCube1.tx\" 2;\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			exec := NewDryRunExecutor(&buf, "/tmp")

			target := config.Default().Targets[config.TargetPlugin]
			target.Format = string(tt.format)

			if err := exec.Dispatch(context.Background(), target, tt.cmd); err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("Dispatch() wrote %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestDryRunExecutor_SendArtifact(t *testing.T) {
	var buf bytes.Buffer
	exec := NewDryRunExecutor(&buf, "/tmp/cmdport")

	exported := false
	exp := dispatch.ExporterFunc(func(ctx context.Context, fs afero.Fs, path string) error {
		exported = true
		return nil
	})

	path, err := exec.SendArtifact(context.Background(), config.Default().Targets[config.TargetExport], dispatch.Artifact{
		Name:     "pCube1",
		Ext:      "obj",
		Exporter: exp,
	})
	if err != nil {
		t.Fatalf("SendArtifact() error = %v", err)
	}
	if filepath.ToSlash(path) != "/tmp/cmdport/pCube1.obj" {
		t.Errorf("path = %q", path)
	}
	if exported {
		t.Error("dry run must not export")
	}
	if !strings.HasPrefix(buf.String(), "import \"") {
		t.Errorf("wrote %q", buf.String())
	}
}

func TestDryRunExecutor_Close(t *testing.T) {
	exec := NewDryRunExecutor(io.Discard, "")
	if err := exec.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

func TestNetworkExecutor_Dispatch(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(got)
			return
		}
		defer conn.Close()
		data, _ := io.ReadAll(conn)
		got <- string(data)
	}()

	exec := NewNetworkExecutor(dispatch.New(dispatch.Config{Fs: afero.NewMemMapFs()}))
	defer exec.Close()

	target := config.Target{
		Name:    "local",
		Network: transport.NetworkTCP,
		Host:    "127.0.0.1",
		Port:    ln.Addr().(*net.TCPAddr).Port,
	}
	if err := exec.Dispatch(context.Background(), target, command.New("refresh")); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	select {
	case payload := <-got:
		if payload != "refresh\n" {
			t.Errorf("listener received %q", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener received nothing")
	}
}
