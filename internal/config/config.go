package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	jsoniter "github.com/json-iterator/go"

	"github.com/vango-dev/viewbridge/internal/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// JSONFileName is the JSON configuration file name.
	JSONFileName = "viewbridge.json"

	// TOMLFileName is the TOML configuration file name. It wins when both
	// files exist.
	TOMLFileName = "viewbridge.toml"

	// DefaultSocket is the render socket, relative to the config directory.
	DefaultSocket = "tmp/sockets/viewbridge.sock"

	// DefaultAppRoot holds the view artifacts.
	DefaultAppRoot = "app"

	// DefaultNamespace prefixes metric names.
	DefaultNamespace = "viewbridge"
)

// Config represents a viewbridge.json or viewbridge.toml file.
type Config struct {
	// Socket is the Unix socket path shared by controller and render service.
	Socket string `json:"socket,omitempty" toml:"socket,omitempty"`

	// AppRoot is the directory holding pages/, layouts/ and components/.
	AppRoot string `json:"appRoot,omitempty" toml:"appRoot,omitempty"`

	// Debug exposes 5xx detail and disables the artifact cache.
	Debug bool `json:"debug,omitempty" toml:"debug,omitempty"`

	// Client configures the controller side.
	Client ClientSettings `json:"client,omitempty" toml:"client,omitempty"`

	// Service configures the render service.
	Service ServiceSettings `json:"service,omitempty" toml:"service,omitempty"`

	// Artifacts selects where view artifacts are read from.
	Artifacts ArtifactsSettings `json:"artifacts,omitempty" toml:"artifacts,omitempty"`

	// Metrics configures metric names and the optional scrape listener.
	Metrics MetricsSettings `json:"metrics,omitempty" toml:"metrics,omitempty"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ClientSettings contains IPC client settings. Durations use
// time.ParseDuration syntax ("1s", "250ms").
type ClientSettings struct {
	DialTimeout string `json:"dialTimeout,omitempty" toml:"dialTimeout,omitempty"`
	IOTimeout   string `json:"ioTimeout,omitempty" toml:"ioTimeout,omitempty"`

	// IdleTimeout reaps pooled connections idle this long. Empty or "0"
	// keeps them until they fail.
	IdleTimeout string `json:"idleTimeout,omitempty" toml:"idleTimeout,omitempty"`

	MaxAttempts int `json:"maxAttempts,omitempty" toml:"maxAttempts,omitempty"`
}

// ServiceSettings contains render service settings.
type ServiceSettings struct {
	Layout     string `json:"layout,omitempty" toml:"layout,omitempty"`
	PagesDir   string `json:"pagesDir,omitempty" toml:"pagesDir,omitempty"`
	LayoutsDir string `json:"layoutsDir,omitempty" toml:"layoutsDir,omitempty"`
	Extension  string `json:"extension,omitempty" toml:"extension,omitempty"`

	// Imports are the bare specifiers published in the page import map.
	Imports      []string `json:"imports,omitempty" toml:"imports,omitempty"`
	VendorPrefix string   `json:"vendorPrefix,omitempty" toml:"vendorPrefix,omitempty"`

	// Concurrency bounds parallel fragment rendering. 0 means GOMAXPROCS.
	Concurrency int `json:"concurrency,omitempty" toml:"concurrency,omitempty"`

	ShutdownTimeout string `json:"shutdownTimeout,omitempty" toml:"shutdownTimeout,omitempty"`
	MaxBodyBytes    int64  `json:"maxBodyBytes,omitempty" toml:"maxBodyBytes,omitempty"`
}

// Artifact sources.
const (
	SourceFS = "fs"
	SourceS3 = "s3"
)

// ArtifactsSettings selects the view artifact source.
type ArtifactsSettings struct {
	// Source is "fs" (AppRoot on disk) or "s3".
	Source string `json:"source,omitempty" toml:"source,omitempty"`

	Bucket          string `json:"bucket,omitempty" toml:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty" toml:"prefix,omitempty"`
	Region          string `json:"region,omitempty" toml:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty" toml:"endpoint,omitempty"`
	AccessKeyID     string `json:"accessKeyId,omitempty" toml:"accessKeyId,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty" toml:"secretAccessKey,omitempty"`
	UsePathStyle    bool   `json:"usePathStyle,omitempty" toml:"usePathStyle,omitempty"`
}

// MetricsSettings contains metrics settings.
type MetricsSettings struct {
	Namespace string `json:"namespace,omitempty" toml:"namespace,omitempty"`

	// Listen is an optional TCP address serving /metrics next to the socket
	// endpoint, e.g. "127.0.0.1:9464".
	Listen string `json:"listen,omitempty" toml:"listen,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Socket:  DefaultSocket,
		AppRoot: DefaultAppRoot,
		Client: ClientSettings{
			DialTimeout: "1s",
			IOTimeout:   "30s",
			MaxAttempts: 2,
		},
		Service: ServiceSettings{
			Layout:          "Application",
			PagesDir:        "pages",
			LayoutsDir:      "layouts",
			Extension:       ".html",
			VendorPrefix:    "/assets/vendor/",
			ShutdownTimeout: "30s",
			MaxBodyBytes:    8 << 20,
		},
		Artifacts: ArtifactsSettings{
			Source: SourceFS,
		},
		Metrics: MetricsSettings{
			Namespace: DefaultNamespace,
		},
	}
}

// Load reads configuration from dir, preferring viewbridge.toml over
// viewbridge.json.
func Load(dir string) (*Config, error) {
	for _, name := range []string{TOMLFileName, JSONFileName} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("E141").
		WithDetail("No " + TOMLFileName + " or " + JSONFileName + " found in " + dir).
		WithSuggestion("Create viewbridge.toml, or pass --config")
}

// LoadFile reads configuration from path. The format follows the file
// extension.
func LoadFile(path string) (*Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && ext != ".toml" {
		return nil, errors.New("E123").
			WithDetail("Cannot load " + path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E141").
				WithDetail("No configuration file at " + path)
		}
		return nil, errors.New("E120").Wrap(err)
	}

	cfg := New()
	switch ext {
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errors.New("E120").
				WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
				WithSuggestion("Check that the file is valid TOML").
				Wrap(err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.New("E120").
				WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
				WithSuggestion("Check that the file is valid JSON").
				Wrap(err)
		}
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	defaults := New()

	if c.Socket == "" {
		c.Socket = defaults.Socket
	}
	if c.AppRoot == "" {
		c.AppRoot = defaults.AppRoot
	}

	// Client
	if c.Client.DialTimeout == "" {
		c.Client.DialTimeout = defaults.Client.DialTimeout
	}
	if c.Client.IOTimeout == "" {
		c.Client.IOTimeout = defaults.Client.IOTimeout
	}
	if c.Client.MaxAttempts == 0 {
		c.Client.MaxAttempts = defaults.Client.MaxAttempts
	}

	// Service
	if c.Service.Layout == "" {
		c.Service.Layout = defaults.Service.Layout
	}
	if c.Service.PagesDir == "" {
		c.Service.PagesDir = defaults.Service.PagesDir
	}
	if c.Service.LayoutsDir == "" {
		c.Service.LayoutsDir = defaults.Service.LayoutsDir
	}
	if c.Service.Extension == "" {
		c.Service.Extension = defaults.Service.Extension
	}
	if c.Service.VendorPrefix == "" {
		c.Service.VendorPrefix = defaults.Service.VendorPrefix
	}
	if c.Service.ShutdownTimeout == "" {
		c.Service.ShutdownTimeout = defaults.Service.ShutdownTimeout
	}
	if c.Service.MaxBodyBytes == 0 {
		c.Service.MaxBodyBytes = defaults.Service.MaxBodyBytes
	}

	// Artifacts
	if c.Artifacts.Source == "" {
		c.Artifacts.Source = defaults.Artifacts.Source
	}

	// Metrics
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = defaults.Metrics.Namespace
	}
}

// SocketPath returns the socket path, resolved against the config
// directory when relative.
func (c *Config) SocketPath() string {
	return c.resolve(c.Socket)
}

// AppPath returns the artifact root, resolved against the config directory
// when relative.
func (c *Config) AppPath() string {
	return c.resolve(c.AppRoot)
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Dir(), path)
}
