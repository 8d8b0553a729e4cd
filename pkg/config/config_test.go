package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, LogLevelDebug, cfg.LogLevel)
	require.Equal(t, 1, cfg.Worker.NWorkers)
	require.Equal(t, 300, cfg.Output.RecvBufferSize)
}

func TestLogLevel_UnknownFallsBackToDebug(t *testing.T) {
	tests := []struct {
		name string
		in   LogLevel
		want LogLevel
	}{
		{"info", "info", LogLevelInfo},
		{"WARN", "WARN", LogLevelWarn},
		{"garbage", "nonsense", LogLevelDebug},
		{"empty", "", LogLevelDebug},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.in.normalize())
		})
	}
}

func TestValidate_RequiresURIWhenEnabled(t *testing.T) {
	cfg := Config{Output: Output{RecvBufferSize: 300}, Worker: Worker{NWorkers: 1, RecvBufferSize: 180}}
	cfg.Input.Video.Enable = true

	err := cfg.Validate()
	require.Error(t, err)

	missing, ok := err.(*ErrMissingRequired)
	require.True(t, ok, "expected *ErrMissingRequired, got %T", err)
	require.Equal(t, "PIPELESS_INPUT_VIDEO_URI", missing.EnvVar)
}

func TestValidate_BufferBounds(t *testing.T) {
	cfg := Config{Worker: Worker{NWorkers: 1, RecvBufferSize: 8193}, Output: Output{RecvBufferSize: 300}}
	require.Error(t, cfg.Validate())
}

func TestPlugins_OrderList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a;b,c|d", []string{"a", "b", "c", "d"}},
		{"  ", nil},
		{"single", []string{"single"}},
		{"a,,b", []string{"a", "b"}},
	}
	for _, tt := range tests {
		p := Plugins{Order: tt.in}
		require.Equal(t, tt.want, p.OrderList())
	}
}

func TestURIProtocol(t *testing.T) {
	tests := map[string]string{
		"file:///tmp/in.mp4":    "file",
		"rtmp://host/app":       "rtmp",
		"rtsp://host/stream":    "rtsp",
		"https://example.com/x": "https",
		"v4l2":                  "v4l2",
		"screen":                "screen",
	}
	for uri, want := range tests {
		require.Equal(t, want, URIProtocol(uri), "URIProtocol(%q)", uri)
	}
}

func TestIsFileProtocol(t *testing.T) {
	require.True(t, IsFileProtocol("file:///in.mp4"))
	require.False(t, IsFileProtocol("rtmp://host"))
}

func TestLoad_EnvOverride(t *testing.T) {
	os.Setenv("PIPELESS_LOG_LEVEL", "WARN")
	os.Setenv("PIPELESS_WORKER_N_WORKERS", "4")
	defer os.Unsetenv("PIPELESS_LOG_LEVEL")
	defer os.Unsetenv("PIPELESS_WORKER_N_WORKERS")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, LogLevelWarn, cfg.LogLevel)
	require.Equal(t, 4, cfg.Worker.NWorkers)
}
