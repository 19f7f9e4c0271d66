package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/grantcarthew/cmdport/internal/command"
	"github.com/grantcarthew/cmdport/internal/config"
	"github.com/grantcarthew/cmdport/internal/dispatch"
	"github.com/grantcarthew/cmdport/internal/executor"
)

func init() {
	// Disable colors in tests to avoid ANSI codes in output assertions
	color.NoColor = true
}

// isolate points config loading at an empty directory and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	for _, k := range []string{"CMDPORT_CONFIG", "CMDPORT_TARGET", "CMDPORT_TIMEOUT", "CMDPORT_CLEANUP_DELAY", "CMDPORT_POLICY"} {
		t.Setenv(k, "")
	}
	return dir
}

type dispatchCall struct {
	target config.Target
	cmd    command.Command
}

type artifactCall struct {
	target config.Target
	dispatch.Artifact
}

// mockExecutor implements executor.Executor for testing.
type mockExecutor struct {
	mu          sync.Mutex
	dispatches  []dispatchCall
	artifacts   []artifactCall
	dispatchErr error
	closed      int
}

func (m *mockExecutor) Dispatch(ctx context.Context, target config.Target, cmd command.Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatches = append(m.dispatches, dispatchCall{target: target, cmd: cmd})
	return m.dispatchErr
}

func (m *mockExecutor) SendArtifact(ctx context.Context, target config.Target, a dispatch.Artifact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts = append(m.artifacts, artifactCall{target: target, Artifact: a})
	return dispatch.JoinArtifactPath("/tmp/cmdport", a.Name, a.Ext), m.dispatchErr
}

func (m *mockExecutor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// mockFactory implements ExecutorFactory for testing.
type mockFactory struct {
	executor *mockExecutor
	newErr   error
	created  int
	probeErr map[string]error
}

func (m *mockFactory) NewExecutor() (executor.Executor, error) {
	if m.newErr != nil {
		return nil, m.newErr
	}
	m.created++
	return m.executor, nil
}

func (m *mockFactory) Probe(ctx context.Context, target config.Target) error {
	return m.probeErr[target.Name]
}

// setMockFactory replaces the package execFactory and returns the mock executor.
func setMockFactory(t *testing.T) (*mockFactory, *mockExecutor) {
	t.Helper()
	isolate(t)
	exec := &mockExecutor{}
	f := &mockFactory{executor: exec}
	old := execFactory
	execFactory = f
	t.Cleanup(func() {
		execFactory = old
		Debug = false
		JSONOutput = false
		NoColor = false
		TargetName = ""
		DryRun = false
	})
	return f, exec
}

// captureStdout runs fn and returns what it wrote to stdout.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		buf.ReadFrom(r)
		done <- buf.String()
	}()

	fn()

	w.Close()
	os.Stdout = old
	return <-done
}

func TestTryExpandCommand(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"se", "send"},
		{"ra", "raw"},
		{"li", "listen"},
		{"lo", "load-plugin"},
		{"p", "push"},
		{"ta", "targets"},
		{"w", "watch"},
		{"rep", "repl"},
		{"send", ""}, // exact match
		{"l", ""},    // ambiguous
		{"r", ""},    // ambiguous
		{"xyz", ""},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			if got := tryExpandCommand(tt.prefix); got != tt.want {
				t.Errorf("tryExpandCommand(%q) = %q, want %q", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestOutputError_IsPrinted(t *testing.T) {
	err := outputError("boom")
	if !IsPrintedError(err) {
		t.Error("outputError result should be a printed error")
	}
	if err.Error() != "boom" {
		t.Errorf("Error() = %q, want boom", err.Error())
	}
	if IsPrintedError(errors.New("plain")) {
		t.Error("plain error reported as printed")
	}
}

func TestOutputSuccess_JSON(t *testing.T) {
	JSONOutput = true
	t.Cleanup(func() { JSONOutput = false })

	out := captureStdout(t, func() {
		if err := outputSuccess(map[string]string{"message": "test"}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("failed to parse output %q: %v", out, err)
	}
	if result["ok"] != true {
		t.Errorf("expected ok=true, got %v", result["ok"])
	}
	data, ok := result["data"].(map[string]any)
	if !ok || data["message"] != "test" {
		t.Errorf("data = %v", result["data"])
	}
}

func TestSend(t *testing.T) {
	_, exec := setMockFactory(t)

	var recognized bool
	var err error
	out := captureStdout(t, func() {
		recognized, err = ExecuteArgs([]string{"send", "setAttr", "pCube1.tx", "-2"})
	})

	if !recognized || err != nil {
		t.Fatalf("ExecuteArgs() = %v, %v", recognized, err)
	}
	if out != "OK\n" {
		t.Errorf("output = %q, want OK", out)
	}
	if len(exec.dispatches) != 1 {
		t.Fatalf("dispatches = %d, want 1", len(exec.dispatches))
	}
	call := exec.dispatches[0]
	if call.target.Name != config.TargetPlugin {
		t.Errorf("target = %q, want %q", call.target.Name, config.TargetPlugin)
	}
	if got := call.cmd.String(); got != `setAttr "pCube1.tx" -2` {
		t.Errorf("command = %q", got)
	}
	if exec.closed != 1 {
		t.Errorf("executor closed %d times, want 1", exec.closed)
	}
}

func TestSend_Overrides(t *testing.T) {
	_, exec := setMockFactory(t)

	captureStdout(t, func() {
		_, err := ExecuteArgs([]string{"send", "-t", "export", "--policy", "propagate", "--format", "mel", "--timeout", "5s", "--strings", "rename", "001"})
		if err != nil {
			t.Errorf("ExecuteArgs() error = %v", err)
		}
	})

	if len(exec.dispatches) != 1 {
		t.Fatalf("dispatches = %d, want 1", len(exec.dispatches))
	}
	got := exec.dispatches[0]
	if got.target.Name != config.TargetExport {
		t.Errorf("target = %q", got.target.Name)
	}
	if got.target.Policy != "propagate" || got.target.Format != "mel" || got.target.Timeout != 5*time.Second {
		t.Errorf("overrides not applied: %+v", got.target)
	}
	if got.cmd.String() != `rename "001"` {
		t.Errorf("command = %q", got.cmd.String())
	}
}

func TestSend_FlagsReset(t *testing.T) {
	_, exec := setMockFactory(t)

	captureStdout(t, func() {
		ExecuteArgs([]string{"send", "--format", "python", "-t", "export", "a"})
		ExecuteArgs([]string{"send", "b"})
	})

	if len(exec.dispatches) != 2 {
		t.Fatalf("dispatches = %d, want 2", len(exec.dispatches))
	}
	second := exec.dispatches[1].target
	if second.Name != config.TargetPlugin || second.Format != string(command.FormatPlain) {
		t.Errorf("flags leaked into next command: %+v", second)
	}
}

func TestSend_Errors(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		dispatchErr error
		wantCalls   int
	}{
		{"invalid policy", []string{"send", "--policy", "retry", "a"}, nil, 0},
		{"invalid format", []string{"send", "--format", "lua", "a"}, nil, 0},
		{"unknown target", []string{"send", "-t", "nope", "a"}, nil, 0},
		{"delivery failed", []string{"send", "a"}, errors.New("connection refused"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, exec := setMockFactory(t)
			exec.dispatchErr = tt.dispatchErr

			var err error
			captureStdout(t, func() {
				_, err = ExecuteArgs(tt.args)
			})

			if err == nil {
				t.Fatal("expected error")
			}
			if !IsPrintedError(err) {
				t.Errorf("error %v was not printed", err)
			}
			if len(exec.dispatches) != tt.wantCalls {
				t.Errorf("dispatches = %d, want %d", len(exec.dispatches), tt.wantCalls)
			}
		})
	}
}

func TestSend_FactoryError(t *testing.T) {
	f, _ := setMockFactory(t)
	f.newErr = errors.New("no executor")

	_, err := ExecuteArgs([]string{"send", "a"})
	if err == nil || !strings.Contains(err.Error(), "no executor") {
		t.Errorf("err = %v", err)
	}
}

func TestRaw(t *testing.T) {
	_, exec := setMockFactory(t)

	captureStdout(t, func() {
		if _, err := ExecuteArgs([]string{"raw", "polyCube", "-n", "box;"}); err != nil {
			t.Errorf("ExecuteArgs() error = %v", err)
		}
	})

	if len(exec.dispatches) != 1 {
		t.Fatalf("dispatches = %d, want 1", len(exec.dispatches))
	}
	c := exec.dispatches[0].cmd
	if !c.IsRaw() || c.String() != "polyCube -n box;" {
		t.Errorf("command = %q raw=%v", c.String(), c.IsRaw())
	}
}

func TestLoadPlugin(t *testing.T) {
	_, exec := setMockFactory(t)

	captureStdout(t, func() {
		if _, err := ExecuteArgs([]string{"load-plugin", "autoRig.py"}); err != nil {
			t.Errorf("ExecuteArgs() error = %v", err)
		}
	})

	if len(exec.dispatches) != 1 {
		t.Fatalf("dispatches = %d, want 1", len(exec.dispatches))
	}
	c := exec.dispatches[0].cmd
	if c.Action != dispatch.ActionLoadPlugin {
		t.Errorf("action = %q", c.Action)
	}
	if len(c.Args) != 1 || !filepath.IsAbs(c.Args[0].Value()) {
		t.Errorf("args = %v, want one absolute path", c.Args)
	}
}

func TestPush_File(t *testing.T) {
	_, exec := setMockFactory(t)

	src := filepath.Join(t.TempDir(), "cube.fbx")
	if err := os.WriteFile(src, []byte("data"), 0644); err != nil {
		t.Fatal(err)
	}

	out := captureStdout(t, func() {
		if _, err := ExecuteArgs([]string{"push", "pCube1", src}); err != nil {
			t.Errorf("ExecuteArgs() error = %v", err)
		}
	})

	if len(exec.artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(exec.artifacts))
	}
	call := exec.artifacts[0]
	if call.target.Name != config.TargetExport {
		t.Errorf("target = %q, want export", call.target.Name)
	}
	if call.Name != "pCube1" || call.Ext != ".fbx" || call.Action != dispatch.ActionImport {
		t.Errorf("call = %+v", call)
	}
	if call.Delay != config.DefaultCleanupDelay {
		t.Errorf("delay = %s, want %s", call.Delay, config.DefaultCleanupDelay)
	}
	if fe, ok := call.Exporter.(dispatch.FileExporter); !ok || fe.Source != src {
		t.Errorf("exporter = %#v", call.Exporter)
	}
	if strings.TrimSpace(out) != "/tmp/cmdport/pCube1.fbx" {
		t.Errorf("output = %q", out)
	}
	if exec.closed != 1 {
		t.Errorf("executor closed %d times, want 1", exec.closed)
	}
}

func TestPush_StdinDefaults(t *testing.T) {
	_, exec := setMockFactory(t)

	captureStdout(t, func() {
		if _, err := ExecuteArgs([]string{"push", "--action", "importFBX", "scene"}); err != nil {
			t.Errorf("ExecuteArgs() error = %v", err)
		}
	})

	if len(exec.artifacts) != 1 {
		t.Fatalf("artifacts = %d, want 1", len(exec.artifacts))
	}
	call := exec.artifacts[0]
	if call.Ext != ".obj" || call.Action != "importFBX" {
		t.Errorf("call = %+v", call)
	}
	if _, ok := call.Exporter.(dispatch.ReaderExporter); !ok {
		t.Errorf("exporter = %T, want ReaderExporter", call.Exporter)
	}
}

func TestPush_NegativeDelay(t *testing.T) {
	_, exec := setMockFactory(t)

	_, err := ExecuteArgs([]string{"push", "--delay", "-1s", "a", "-"})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(exec.artifacts) != 0 {
		t.Errorf("artifacts = %d, want 0", len(exec.artifacts))
	}
}

func TestTargets_JSON(t *testing.T) {
	f, _ := setMockFactory(t)
	f.probeErr = map[string]error{config.TargetExport: errors.New("refused")}

	out := captureStdout(t, func() {
		if _, err := ExecuteArgs([]string{"targets", "--json", "--probe"}); err != nil {
			t.Errorf("ExecuteArgs() error = %v", err)
		}
	})

	var resp struct {
		OK   bool `json:"ok"`
		Data struct {
			Targets []targetInfo `json:"targets"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("failed to parse %q: %v", out, err)
	}
	if !resp.OK || len(resp.Data.Targets) != 2 {
		t.Fatalf("resp = %+v", resp)
	}

	byName := map[string]targetInfo{}
	for _, row := range resp.Data.Targets {
		byName[row.Name] = row
	}
	plugin := byName[config.TargetPlugin]
	if !plugin.Default || plugin.Address != "localhost:7001" || plugin.Reachable == nil || !*plugin.Reachable {
		t.Errorf("plugin = %+v", plugin)
	}
	export := byName[config.TargetExport]
	if export.Policy != "swallow" || export.Reachable == nil || *export.Reachable || export.Error != "refused" {
		t.Errorf("export = %+v", export)
	}
}

func TestTargets_FromConfigFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	body := "default_target: maya\ntargets:\n  maya:\n    port: 7010\n    format: mel\n"
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ConfigPath = "" })

	out := captureStdout(t, func() {
		if _, err := ExecuteArgs([]string{"targets", "--config", path}); err != nil {
			t.Errorf("ExecuteArgs() error = %v", err)
		}
	})

	if !strings.Contains(out, "* maya") {
		t.Errorf("default target not marked:\n%s", out)
	}
	if !strings.Contains(out, "localhost:7010") || !strings.Contains(out, "mel") {
		t.Errorf("maya target missing:\n%s", out)
	}
}

func TestResolveTarget_AdHocAddress(t *testing.T) {
	isolate(t)
	cfg = config.Default()
	TargetName = "127.0.0.1:9000"
	t.Cleanup(func() { TargetName = "" })

	got, err := resolveTarget("", &targetFlags{policy: "swallow"})
	if err != nil {
		t.Fatalf("resolveTarget() error = %v", err)
	}
	if got.Host != "127.0.0.1" || got.Port != 9000 || got.Policy != "swallow" {
		t.Errorf("target = %+v", got)
	}
}

func TestREPL_Piped(t *testing.T) {
	f, exec := setMockFactory(t)

	oldTTY := stdinIsTTY
	stdinIsTTY = func() bool { return false }
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader("print hi\n/target export\nprint there\n/send refresh\n"))
	rootCmd.SetOut(&out)
	t.Cleanup(func() {
		stdinIsTTY = oldTTY
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
	})

	captureStdout(t, func() {
		if _, err := ExecuteArgs([]string{"repl"}); err != nil {
			t.Errorf("ExecuteArgs() error = %v", err)
		}
	})

	if len(exec.dispatches) != 3 {
		t.Fatalf("dispatches = %d, want 3", len(exec.dispatches))
	}
	if c := exec.dispatches[0]; c.cmd.String() != "print hi" || c.target.Name != config.TargetPlugin {
		t.Errorf("first = %q to %q", c.cmd.String(), c.target.Name)
	}
	if c := exec.dispatches[1]; c.target.Name != config.TargetExport {
		t.Errorf("second target = %q, want export", c.target.Name)
	}
	if c := exec.dispatches[2]; c.cmd.String() != "refresh" {
		t.Errorf("in-session command = %q", c.cmd.String())
	}
	if f.created != 1 {
		t.Errorf("executors created = %d, want 1 shared", f.created)
	}
	if exec.closed != 1 {
		t.Errorf("executor closed %d times, want 1", exec.closed)
	}
	if _, ok := execFactory.(*mockFactory); !ok {
		t.Errorf("factory not restored: %T", execFactory)
	}
}
