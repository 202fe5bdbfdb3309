package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/sysbind/internal/binding"
	"github.com/kalambet/sysbind/internal/bootup"
	"github.com/kalambet/sysbind/internal/config"
	"github.com/kalambet/sysbind/internal/storage"
	"github.com/kalambet/sysbind/internal/sysfs"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestListBindings(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /bindings": `[
			{"key":"led_x","kind":"toggle","category":"leds","path":"/sys/class/leds/x/brightness","supported":true,"value":"true"},
			{"key":"gov","kind":"list","category":"cpu","path":"/cpu0","paths":["/cpu0","/cpu1"],"multifile":true,"supported":true,"value":"powersave"},
			{"key":"missing","kind":"toggle","category":"default","path":"","supported":false}
		]`,
	})

	infos, err := ts.client().listBindings(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("len = %d, want 3", len(infos))
	}

	var out bytes.Buffer
	if err := writeBindings(&out, infos); err != nil {
		t.Fatalf("writeBindings: %v", err)
	}
	text := out.String()
	for _, want := range []string{"KEY", "led_x", "/cpu0 (+1)", "(unsupported)", "powersave"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	if ts.requests[0].Auth != "Bearer test-token" {
		t.Errorf("auth = %q", ts.requests[0].Auth)
	}
}

func TestDisplayValue(t *testing.T) {
	v := "on"
	if got := displayValue(binding.Info{Value: &v}); got != "on" {
		t.Errorf("displayValue = %q, want on", got)
	}
	if got := displayValue(binding.Info{}); got != "-" {
		t.Errorf("displayValue(nil) = %q, want -", got)
	}
}

func TestGetBinding_EscapesKey(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /bindings/a b": `{"key":"a b","kind":"toggle","supported":true,"value":"false"}`,
	})

	info, err := ts.client().getBinding(ctx, "a b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Value == nil || *info.Value != "false" {
		t.Errorf("value = %v", info.Value)
	}
	if ts.requests[0].Path != "/bindings/a%20b" {
		t.Errorf("path = %q, want escaped key", ts.requests[0].Path)
	}
}

func TestSetValue(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PUT /bindings/led_x": `{"key":"led_x","value":"true","encoded":"255","targets":[{"path":"/sys/class/leds/x/brightness","bootup_key":"led_x","recorded":true}]}`,
	})

	if err := setValue(ctx, ts.client(), "led_x", "on"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := ts.requests[0]
	if r.Method != http.MethodPut {
		t.Errorf("method = %q, want PUT", r.Method)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["value"] != "on" {
		t.Errorf("body.value = %q, want on", body["value"])
	}
}

func TestSetValue_PartialFailure(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"PUT /bindings/gov": `{"key":"gov","value":"performance","encoded":"performance","targets":[
			{"path":"/cpu0","bootup_key":"gov0","recorded":true},
			{"path":"/cpu1","bootup_key":"gov1","error":"permission denied","recorded":false}
		]}`,
	})

	err := setValue(ctx, ts.client(), "gov", "performance")
	if err == nil {
		t.Fatal("expected error when a target fails")
	}
	if !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("error = %q, want it to mention 1 of 2", err)
	}
}

func TestSetValue_Rejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"value \"ondemand\" is not one of [powersave performance]","type":"invalid_request_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{baseURL: ts.URL, token: "t", httpClient: ts.Client()}
	err := setValue(ctx, client, "gov", "ondemand")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "ondemand") {
		t.Errorf("error = %q", err)
	}
	if strings.Contains(err.Error(), `"type"`) {
		t.Errorf("error should carry the message only, got %q", err)
	}
}

func TestListBootup_CategoryQuery(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /bootup": `[{"category":"cpu freq","key":"gov0","path":"/cpu0","value":"performance","enabled":true}]`,
	})

	entries, err := ts.client().listBootup(ctx, "cpu freq")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "gov0" {
		t.Errorf("entries = %+v", entries)
	}
	if ts.requests[0].Path != "/bootup?category=cpu+freq" {
		t.Errorf("path = %q", ts.requests[0].Path)
	}

	if _, err := ts.client().listBootup(ctx, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts.requests[1].Path != "/bootup" {
		t.Errorf("path = %q, want /bootup", ts.requests[1].Path)
	}

	var out bytes.Buffer
	writeEntries(&out, []bootup.Entry{{Category: "leds", Key: "led_x", Value: "255", Path: "/p"}})
	if !strings.Contains(out.String(), "disabled") {
		t.Errorf("output = %q, want disabled state", out.String())
	}
}

func TestDeleteBootup(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /bootup/leds/led_x": `{"status":"deleted"}`,
	})

	if err := ts.client().deleteBootup(ctx, "leds", "led_x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ts.client().deleteBootup(ctx, "leds", "nope"); err == nil {
		t.Fatal("expected error for missing entry")
	}
}

func TestRestoreViaServer(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /bootup/restore": `{"restored":2,"skipped":1}`,
	})

	report, err := ts.client().restore(ctx, "leds")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Restored != 2 || report.Skipped != 1 {
		t.Errorf("report = %+v", report)
	}
	if ts.requests[0].Path != "/bootup/restore?category=leds" {
		t.Errorf("path = %q", ts.requests[0].Path)
	}
	if err := reportRestore(report); err != nil {
		t.Errorf("reportRestore: %v", err)
	}
	if err := reportRestore(bootup.RestoreReport{Failed: []bootup.RestoreFailure{{Key: "k"}}}); err == nil {
		t.Error("expected error for failed entries")
	}
}

func TestServerStopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.Sysfs.Root = "/tmp/sysfs"

	found := false
	for _, k := range config.ShowAll(cfg) {
		if k.Key == "server.port" && k.Value == "4000" {
			found = true
		}
	}
	if !found {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"loud", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPIDFile(t *testing.T) {
	path := pidFilePath(filepath.Join(t.TempDir(), "nested"))
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("readPIDFile: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	removePIDFile(path)
	if _, err := readPIDFile(path); err == nil {
		t.Error("PID file still present after remove")
	}
}

func TestOpenControlFiles(t *testing.T) {
	cfg := config.Config{}
	cfg.Sysfs.Root = "/"
	if _, ok := openControlFiles(cfg).(*sysfs.FS); !ok {
		t.Error("expected direct filesystem access without writer.command")
	}

	cfg.Sysfs.WriterCommand = "sudo -n"
	if _, ok := openControlFiles(cfg).(*sysfs.ShellWriter); !ok {
		t.Error("expected shell writer when writer.command is set")
	}
}

func TestRestoreLocal(t *testing.T) {
	root := t.TempDir()
	dataDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("SYSBIND_SYSFS_ROOT", root)
	t.Setenv("SYSBIND_STORAGE_DATA_DIR", dataDir)
	t.Setenv("SYSBIND_WRITER_COMMAND", "")

	ledDir := filepath.Join(root, "sys", "class", "leds", "x")
	if err := os.MkdirAll(ledDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ledDir, "brightness"), []byte("0\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	seedRegistry(t, dataDir, bootup.Entry{
		Category: "leds",
		Key:      "led_x",
		Path:     "/sys/class/leds/x/brightness",
		Value:    "255",
		Enabled:  true,
	})

	report, err := restoreLocal(ctx, "")
	if err != nil {
		t.Fatalf("restoreLocal: %v", err)
	}
	if report.Restored != 1 {
		t.Errorf("report = %+v", report)
	}
	data, _ := os.ReadFile(filepath.Join(ledDir, "brightness"))
	if string(data) != "255" {
		t.Errorf("brightness = %q, want 255", data)
	}
}

func seedRegistry(t *testing.T, dataDir string, entries ...bootup.Entry) {
	t.Helper()
	store, err := storage.Open(dataDir)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer store.Close()

	registry := bootup.NewRegistry(store)
	for _, e := range entries {
		if err := registry.SetBootup(ctx, e); err != nil {
			t.Fatalf("SetBootup: %v", err)
		}
	}
}
