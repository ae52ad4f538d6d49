// Package config loads the process wide settings once at startup.
//
// Settings come from a dotenv style file (".config" by default), one
// KEY="value" per line, and may be overridden by environment variables of
// the same name. The returned Config is treated as read-only.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultPath is the settings file looked up in the working directory.
const DefaultPath = ".config"

// Setting keys.
const (
	KeyComfyDirectory = "COMFY_DIRECTORY"
	KeyComfyScheme    = "COMFY_SCHEME"
	KeyComfyHost      = "COMFY_HOST"
	KeyComfyPort      = "COMFY_PORT"
	KeyCheckpoint     = "CHECKPOINT"
	KeyControlNet     = "CONTROLNET"
	KeyFilePrefix     = "FILE_PREFIX"
	KeyOutputDir      = "OUTPUT_DIR"
	KeyNegativePrompt = "NEGATIVE_PROMPT"
	KeyLogFile        = "LOG_FILE"
	KeyLogLevel       = "LOG_LEVEL"
	KeyDevMode        = "DEV_MODE"
	KeyShowProgress   = "SHOW_PROGRESS"
	KeyConnectTimeout = "CONNECT_TIMEOUT"
)

// Defaults.
const (
	DefaultScheme         = "http"
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 8188
	DefaultCheckpoint     = "sd_xl_base_1.0.safetensors"
	DefaultControlNet     = "control-lora/control-LoRAs-rank256/control-lora-depth-rank256.safetensors"
	DefaultFilePrefix     = "ComfyUI"
	DefaultLogFile        = "a-eye.log"
	DefaultLogLevel       = "info"
	DefaultConnectTimeout = 10 * time.Second
)

// Error reports a setting with a value that cannot be used.
type Error struct {
	Key     string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Key, e.Message)
}

// Config holds every setting. Build it with Load or Default.
type Config struct {
	// ComfyDirectory is the local ComfyUI installation. Optional; when set it
	// is used to verify inputs and models before a job is queued.
	ComfyDirectory string

	Scheme string
	Host   string
	Port   int

	Checkpoint     string
	ControlNet     string
	FilePrefix     string
	OutputDir      string
	NegativePrompt string

	LogFile      string
	LogLevel     string
	Development  bool
	ShowProgress bool

	ConnectTimeout time.Duration
}

// Default returns the configuration used when no file or variables are set.
func Default() *Config {
	return &Config{
		Scheme:         DefaultScheme,
		Host:           DefaultHost,
		Port:           DefaultPort,
		Checkpoint:     DefaultCheckpoint,
		ControlNet:     DefaultControlNet,
		FilePrefix:     DefaultFilePrefix,
		LogFile:        DefaultLogFile,
		LogLevel:       DefaultLogLevel,
		ShowProgress:   true,
		ConnectTimeout: DefaultConnectTimeout,
	}
}

// Load reads path and applies environment overrides. An empty path means
// DefaultPath, which may be absent; an explicitly named file must exist.
func Load(path string) (*Config, error) {
	optional := path == ""
	if optional {
		path = DefaultPath
	}

	file, err := godotenv.Read(path)
	if err != nil {
		if !(optional && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		file = map[string]string{}
	}

	return fromLookup(func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return file[key]
	})
}

func fromLookup(get func(string) string) (*Config, error) {
	cfg := Default()

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(get(key)); v != "" {
			*dst = v
		}
	}
	str(KeyComfyDirectory, &cfg.ComfyDirectory)
	str(KeyComfyScheme, &cfg.Scheme)
	str(KeyComfyHost, &cfg.Host)
	str(KeyCheckpoint, &cfg.Checkpoint)
	str(KeyControlNet, &cfg.ControlNet)
	str(KeyFilePrefix, &cfg.FilePrefix)
	str(KeyOutputDir, &cfg.OutputDir)
	str(KeyLogFile, &cfg.LogFile)
	str(KeyLogLevel, &cfg.LogLevel)
	// the negative prompt may legitimately contain surrounding spaces
	if v := get(KeyNegativePrompt); v != "" {
		cfg.NegativePrompt = v
	}

	if v := get(KeyComfyPort); v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || port <= 0 || port > 65535 {
			return nil, &Error{Key: KeyComfyPort, Message: fmt.Sprintf("%q is not a valid port", v)}
		}
		cfg.Port = port
	}
	if v := get(KeyDevMode); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, &Error{Key: KeyDevMode, Message: fmt.Sprintf("%q is not a boolean", v)}
		}
		cfg.Development = b
	}
	if v := get(KeyShowProgress); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, &Error{Key: KeyShowProgress, Message: fmt.Sprintf("%q is not a boolean", v)}
		}
		cfg.ShowProgress = b
	}
	if v := get(KeyConnectTimeout); v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil || d <= 0 {
			return nil, &Error{Key: KeyConnectTimeout, Message: fmt.Sprintf("%q is not a positive duration", v)}
		}
		cfg.ConnectTimeout = d
	}
	if cfg.Scheme != "http" && cfg.Scheme != "https" {
		return nil, &Error{Key: KeyComfyScheme, Message: fmt.Sprintf("%q must be http or https", cfg.Scheme)}
	}

	return cfg, nil
}

// ServerAddress returns host:port of the ComfyUI server.
func (c *Config) ServerAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// BaseURL returns the ComfyUI HTTP endpoint, e.g. http://127.0.0.1:8188.
func (c *Config) BaseURL() string {
	return c.Scheme + "://" + c.ServerAddress()
}

// FindPath walks from start up through its parents and returns the first
// path whose directory contains name. start defaults to the working
// directory. The boolean is false when the filesystem root is reached.
func FindPath(name, start string) (string, bool) {
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", false
		}
		start = wd
	}
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", false
	}

	for {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
