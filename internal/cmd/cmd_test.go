package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dostenterprises/socketlink/internal/sockettest"
	"github.com/dostenterprises/socketlink/pkg/output"
	"github.com/dostenterprises/socketlink/pkg/probe"
	"github.com/dostenterprises/socketlink/pkg/serverconfig"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func captureOutput(t *testing.T) *syncBuffer {
	t.Helper()
	noColor := color.NoColor
	color.NoColor = true

	buf := &syncBuffer{}
	prev := output.SetWriter(buf)
	t.Cleanup(func() {
		output.SetWriter(prev)
		color.NoColor = noColor
	})
	return buf
}

// execute runs the root command with a throwaway config file
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := captureOutput(t)

	verbose, outputFmt = false, "text"
	connectEmit, connectData, connectEvents = "", "", nil

	configFile := filepath.Join(t.TempDir(), "config.toml")
	rootCmd.SetArgs(append([]string{"--config", configFile}, args...))
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "socketlink v"+Version+"\n", out)
}

func TestInvalidOutputFormat(t *testing.T) {
	_, err := execute(t, "--output", "yaml", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid output format")
}

func TestEndpointsCommand_Text(t *testing.T) {
	out, err := execute(t, "endpoints")
	require.NoError(t, err)

	for _, u := range serverconfig.FallbackURLs() {
		assert.Contains(t, out, u)
	}
	assert.Contains(t, out, "Prefer polling: false")

	lines := strings.Split(out, "\n")
	require.Greater(t, len(lines), 2)
	assert.Contains(t, lines[2], serverconfig.PrimaryURL)
	assert.Contains(t, lines[2], "yes")
}

func TestEndpointsCommand_JSON(t *testing.T) {
	out, err := execute(t, "--output", "json", "endpoints")
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"primary_url": "https://webs01.dostenterprises.com",
		"fallback_urls": [
			"https://webs01.dostenterprises.com",
			"https://car01.dostenterprises.com:8090",
			"http://192.168.1.35:3000",
			"http://localhost:3000"
		],
		"prefer_polling": false
	}`, out)
}

func TestPrintProbeResults(t *testing.T) {
	_, err := execute(t, "version")
	require.NoError(t, err)
	buf := captureOutput(t)

	srv := sockettest.NewServer(t)
	results := probe.New(2*time.Second).CheckAll(context.Background(), []string{srv.URL, "ftp://nowhere"})
	require.NoError(t, printProbeResults(results))

	out := buf.String()
	assert.Contains(t, out, "Endpoint check")
	assert.Contains(t, out, srv.URL)
	assert.Contains(t, out, "sid=eio-1")
	assert.Contains(t, out, "down")
	assert.Contains(t, out, "1 of 2 endpoints reachable")
}

func TestParseEmitData(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		data    string
		want    []any
		wantErr bool
	}{
		{"no data", "hello", "", nil, false},
		{"object", "hello", `{"a":1}`, []any{map[string]any{"a": float64(1)}}, false},
		{"array spreads", "hello", `["x",2]`, []any{"x", float64(2)}, false},
		{"scalar", "hello", `"hi"`, []any{"hi"}, false},
		{"bad json", "hello", `{`, nil, true},
		{"data without event", "", `{}`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseEmitData(tt.event, tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunConnect_RejectsReservedEmit(t *testing.T) {
	captureOutput(t)
	err := runConnect(context.Background(), "http://localhost:1", connectOptions{emitEvent: "disconnect"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")
}

func TestRunConnect_StreamsAndEmits(t *testing.T) {
	buf := captureOutput(t)
	srv := sockettest.NewServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runConnect(ctx, srv.URL, connectOptions{
			emitEvent: "hello",
			emitData:  `{"a":1}`,
			events:    []string{"chat"},
		})
	}()

	select {
	case packet := <-srv.Received:
		assert.Equal(t, `2["hello",{"a":1}]`, packet)
	case <-time.After(5 * time.Second):
		t.Fatal("emit never reached the server")
	}

	require.NoError(t, srv.Emit("chat", "hi"))
	assert.Eventually(t, func() bool {
		return strings.Contains(buf.String(), `chat ["hi"]`)
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("connect did not return after cancel")
	}

	out := buf.String()
	assert.Contains(t, out, "connecting to "+srv.URL)
	assert.Contains(t, out, "connected (id sock-1)")
	assert.Contains(t, out, "emitted hello")

	assert.Eventually(t, func() bool { return srv.Disconnects() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestRunConnect_WarnsWhenNotConnected(t *testing.T) {
	buf := captureOutput(t)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := runConnect(ctx, "http://127.0.0.1:1", connectOptions{waitWarning: 50 * time.Millisecond})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "not connected after 50ms, still retrying")
	assert.Contains(t, out, "connect failed")
}
