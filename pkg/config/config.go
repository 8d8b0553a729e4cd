// Package config loads and validates the engine's configuration record: a
// merged view of defaults, an optional file (parsed upstream of this
// package — see spec.md §1 Non-goals) and PIPELESS_* environment variable
// overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// LogLevel is one of the three levels the engine recognizes. Any other
// value on load falls back to Debug, matching the Python original's
// "default DEBUG on unknown" behaviour.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "INFO"
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelWarn  LogLevel = "WARN"
)

func (l LogLevel) normalize() LogLevel {
	switch strings.ToUpper(string(l)) {
	case string(LogLevelInfo):
		return LogLevelInfo
	case string(LogLevelWarn):
		return LogLevelWarn
	case string(LogLevelDebug):
		return LogLevelDebug
	default:
		return LogLevelDebug
	}
}

// Address is a host/port pair dialed or bound by a transport socket.
type Address struct {
	Host string `envconfig:"HOST"`
	Port int    `envconfig:"PORT"`
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// InputOutputPort is the InputOutputSocket port, derived per spec.md §4.1.
func (a Address) InputOutputPort() int { return a.Port + 1 }

// WorkerReadyPort is the WorkerReadySocket port, derived per spec.md §4.1.
func (a Address) WorkerReadyPort() int { return a.Port + 2 }

// Video holds the enable flag and source/sink URI for one side of the
// pipeline (input.video or output.video).
type Video struct {
	Enable bool   `envconfig:"ENABLE"`
	URI    string `envconfig:"URI"`
}

type Input struct {
	Video   Video   `envconfig:"VIDEO"`
	Address Address `envconfig:"ADDRESS"`
}

type Output struct {
	Video          Video   `envconfig:"VIDEO"`
	Address        Address `envconfig:"ADDRESS"`
	RecvBufferSize int     `envconfig:"RECV_BUFFER_SIZE" default:"300"`
}

type Inference struct {
	ModelURI           string `envconfig:"MODEL_URI"`
	PreProcessModelURI string `envconfig:"PRE_PROCESS_MODEL_URI"`
	ForceOpsetVersion  int    `envconfig:"FORCE_OPSET_VERSION"`
	ForceIRVersion     int    `envconfig:"FORCE_IR_VERSION"`
	ImageShapeFormat   string `envconfig:"IMAGE_SHAPE_FORMAT" default:"HWC"`
	ImageWidth         int    `envconfig:"IMAGE_WIDTH"`
	ImageHeight        int    `envconfig:"IMAGE_HEIGHT"`
	ImageChannels      int    `envconfig:"IMAGE_CHANNELS" default:"3"`
}

// Enabled reports whether a model URI is configured; an unconfigured
// Inference block means the worker runs the process hook chain instead
// of an inference session (spec.md §4.4).
func (i Inference) Enabled() bool { return i.ModelURI != "" }

type Worker struct {
	NWorkers        int       `envconfig:"N_WORKERS" default:"1"`
	RecvBufferSize  int       `envconfig:"RECV_BUFFER_SIZE" default:"180"`
	ShowExecTime    bool      `envconfig:"SHOW_EXEC_TIME"`
	EnableProfiler  bool      `envconfig:"ENABLE_PROFILER"`
	SkipFrames      bool      `envconfig:"SKIP_FRAMES"`
	Inference       Inference `envconfig:"INFERENCE"`
}

type Plugins struct {
	Dir   string `envconfig:"DIR" default:"./plugins"`
	Order string `envconfig:"ORDER"`
}

// OrderList splits Order on any of ';', ',' or '|', dropping empty
// entries, per spec.md §3.
func (p Plugins) OrderList() []string {
	if strings.TrimSpace(p.Order) == "" {
		return nil
	}
	fields := strings.FieldsFunc(p.Order, func(r rune) bool {
		return r == ';' || r == ',' || r == '|'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Config is the full merged configuration record described in spec.md §3.
type Config struct {
	LogLevel LogLevel `envconfig:"LOG_LEVEL" default:"DEBUG"`
	Input    Input    `envconfig:"INPUT"`
	Output   Output   `envconfig:"OUTPUT"`
	Worker   Worker   `envconfig:"WORKER"`
	Plugins  Plugins  `envconfig:"PLUGINS"`
}

// ErrMissingRequired names both the offending env var and the config path,
// per spec.md §7's "fatal exit with message naming env var and path".
type ErrMissingRequired struct {
	EnvVar string
	Path   string
}

func (e *ErrMissingRequired) Error() string {
	return fmt.Sprintf("missing required configuration %s (env var %s)", e.Path, e.EnvVar)
}

// Load reads defaults, then applies PIPELESS_* environment variable
// overrides (precedence: env > file > default — the file layer is the
// caller's concern, out of scope per spec.md §1), and validates the
// result.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("PIPELESS", &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config: %w", err)
	}
	cfg.LogLevel = cfg.LogLevel.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the enumerated ranges and required fields from
// spec.md §3.
func (c Config) Validate() error {
	if c.Input.Video.Enable && c.Input.Video.URI == "" {
		return &ErrMissingRequired{EnvVar: "PIPELESS_INPUT_VIDEO_URI", Path: "input.video.uri"}
	}
	if c.Output.Video.Enable && c.Output.Video.URI == "" {
		return &ErrMissingRequired{EnvVar: "PIPELESS_OUTPUT_VIDEO_URI", Path: "output.video.uri"}
	}
	if c.Output.RecvBufferSize < 1 || c.Output.RecvBufferSize > 8192 {
		return fmt.Errorf("output.recv_buffer_size must be in [1,8192], got %d", c.Output.RecvBufferSize)
	}
	if c.Worker.RecvBufferSize < 1 || c.Worker.RecvBufferSize > 8192 {
		return fmt.Errorf("worker.recv_buffer_size must be in [1,8192], got %d", c.Worker.RecvBufferSize)
	}
	if c.Worker.NWorkers < 1 {
		return fmt.Errorf("worker.n_workers must be >= 1, got %d", c.Worker.NWorkers)
	}
	return nil
}

// URIProtocol extracts the scheme/literal from a configured URI, matching
// the reserved literals `v4l2` and `screen` as protocols in their own
// right (spec.md §6).
func URIProtocol(uri string) string {
	if uri == "v4l2" || uri == "screen" {
		return uri
	}
	idx := strings.Index(uri, "://")
	if idx < 0 {
		return uri
	}
	return uri[:idx]
}

// IsFileProtocol reports whether uri uses the one-shot file:// scheme,
// which drives the "quit instead of rebuild" lifecycle branch in Input,
// Worker and Output (spec.md §4.3-§4.5, §7).
func IsFileProtocol(uri string) bool {
	return URIProtocol(uri) == "file"
}
