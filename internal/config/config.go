// Package config holds the options of an inlining run and loads them with
// viper from flags, WEBINLINER_* environment variables and an optional config
// file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"webinliner/internal/handler"
)

// EnvPrefix is prepended to every environment variable viper looks up.
const EnvPrefix = "WEBINLINER"

// Keys shared by flags, environment variables and config files.
const (
	KeyOutput  = "output"
	KeyThreads = "threads"
	KeyTimeout = "timeout"
	KeyNoJS    = "no-js"
	KeyNoCSS   = "no-css"
	KeyNoImg   = "no-img"
	KeyVerbose = "verbose"
	KeyQuiet   = "quiet"
	KeyStats   = "stats"
)

var (
	ErrInvalidThreads = errors.New("threads must be at least 1")
	ErrInvalidTimeout = errors.New("timeout must be positive")
)

// Config holds configuration options for the inlining process
type Config struct {
	// Input is a file path or URL; empty means stdin
	Input string `mapstructure:"-"`

	// Output is the file to write; empty means stdout
	Output string `mapstructure:"output"`

	// Threads bounds both the node workers and the CSS fetches; 1 disables parallelism
	Threads int `mapstructure:"threads"`

	// FetchTimeout caps every HTTP fetch
	FetchTimeout time.Duration `mapstructure:"timeout"`

	NoJS  bool `mapstructure:"no-js"`
	NoCSS bool `mapstructure:"no-css"`
	NoImg bool `mapstructure:"no-img"`

	// Verbose is the -v count: 0 warn, 1 info, 2 debug, 3+ trace
	Verbose int  `mapstructure:"verbose"`
	Quiet   bool `mapstructure:"quiet"`

	// Stats prints processing statistics to stderr
	Stats bool `mapstructure:"stats"`
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		Threads:      40,
		FetchTimeout: 30 * time.Second,
	}
}

// Load reads the configuration from v. Flags must already be bound and the
// config file, if any, already read.
func Load(v *viper.Viper) (Config, error) {
	d := Default()
	defaults := map[string]any{
		KeyOutput:  d.Output,
		KeyThreads: d.Threads,
		KeyTimeout: d.FetchTimeout,
		KeyNoJS:    d.NoJS,
		KeyNoCSS:   d.NoCSS,
		KeyNoImg:   d.NoImg,
		KeyVerbose: d.Verbose,
		KeyQuiet:   d.Quiet,
		KeyStats:   d.Stats,
	}
	// AutomaticEnv only covers keys viper already knows about.
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cfg := d
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks option ranges
func (c Config) Validate() error {
	if c.Threads < 1 {
		return fmt.Errorf("%w, got %d", ErrInvalidThreads, c.Threads)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("%w, got %s", ErrInvalidTimeout, c.FetchTimeout)
	}
	return nil
}

// Handlers returns the handler kinds this configuration enables
func (c Config) Handlers() handler.Set {
	return handler.Set{
		JS:     !c.NoJS,
		CSS:    !c.NoCSS,
		Images: !c.NoImg,
	}
}

// ResolveInput turns a command line argument into an absolute URL. Anything
// that is not an http, https or file URL is taken as a path relative to cwd.
func ResolveInput(input, cwd string) (*url.URL, error) {
	if input == "" {
		return nil, errors.New("empty input")
	}

	if u, err := url.Parse(input); err == nil {
		switch u.Scheme {
		case "http", "https", "file":
			return u, nil
		}
	}

	path := input
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}
	return fileURL(path), nil
}

// Base returns the URL relative references resolve against: the directory of
// input, or cwd when the document comes from stdin.
func Base(input *url.URL, cwd string) *url.URL {
	if input == nil {
		return dirURL(cwd)
	}
	return input.ResolveReference(&url.URL{Path: "./"})
}

func fileURL(path string) *url.URL {
	path = filepath.ToSlash(path)
	if !strings.HasPrefix(path, "/") {
		// windows drive letter
		path = "/" + path
	}
	return &url.URL{Scheme: "file", Path: path}
}

func dirURL(dir string) *url.URL {
	u := fileURL(dir)
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	return u
}
