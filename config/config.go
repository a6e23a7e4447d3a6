// Package config handles lurk.toml configuration.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/lurk/field"
	"github.com/chazu/lurk/store"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "lurk.toml"

//go:embed schema.cue
var schemaSource string

// Config represents a lurk.toml configuration.
type Config struct {
	Field   FieldConfig      `toml:"field" json:"field"`
	Hash    field.HashParams `toml:"hash" json:"hash"`
	Eval    EvalConfig       `toml:"eval" json:"eval"`
	Trace   TraceConfig      `toml:"trace" json:"trace"`
	Storage StorageConfig    `toml:"storage" json:"storage"`
	Server  ServerConfig     `toml:"server" json:"server"`
	Log     LogConfig        `toml:"log" json:"log"`

	// Dir is the directory containing the lurk.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// FieldConfig selects the scalar field.
type FieldConfig struct {
	Name string `toml:"name" json:"name"`
}

// EvalConfig bounds evaluation.
type EvalConfig struct {
	IterationLimit int `toml:"iteration-limit" json:"iteration-limit"`
}

// TraceConfig configures trace output.
type TraceConfig struct {
	ChunkSize int    `toml:"chunk-size" json:"chunk-size"`
	Output    string `toml:"output" json:"output"`
}

// StorageConfig configures the persistence database. An empty Path
// disables persistence.
type StorageConfig struct {
	Driver string `toml:"driver" json:"driver"`
	Path   string `toml:"path" json:"path"`
}

// ServerConfig configures the evaluation service.
type ServerConfig struct {
	Addr        string `toml:"addr" json:"addr"`
	MaxSessions int    `toml:"max-sessions" json:"max-sessions"`
}

// LogConfig configures logging. Verbosity follows commonlog: 0 is silent,
// 6 is debug.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	Path      string `toml:"path" json:"path"`
}

// Default returns the configuration used when no lurk.toml is present.
func Default() *Config {
	return &Config{
		Field:   FieldConfig{Name: field.BLS12_381},
		Hash:    field.DefaultHashParams,
		Eval:    EvalConfig{IterationLimit: 1_000_000},
		Trace:   TraceConfig{ChunkSize: 10},
		Storage: StorageConfig{Driver: "sqlite"},
		Server:  ServerConfig{Addr: "localhost:8421", MaxSessions: 64},
		Log:     LogConfig{Verbosity: 1},
	}
}

// Parse decodes TOML data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load parses a lurk.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if c.Storage.Path != "" && !filepath.IsAbs(c.Storage.Path) {
		c.Storage.Path = filepath.Join(c.Dir, c.Storage.Path)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a lurk.toml file,
// then loads and returns the configuration. Returns the defaults if no
// file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// Validate checks c against the embedded schema and the field's own
// parameter rules.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource).LookupPath(cue.ParsePath("#Config"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config: schema: %w", err)
	}
	v := schema.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	if err := c.Hash.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// NewField constructs the configured field.
func (c *Config) NewField() (field.Field, error) {
	return field.New(c.Field.Name, c.Hash)
}

// NewStore returns an empty store over the configured field.
func (c *Config) NewStore() (*store.Store, error) {
	f, err := c.NewField()
	if err != nil {
		return nil, err
	}
	return store.New(f), nil
}

// ConfigureLogging applies the [log] section to commonlog.
func (c *Config) ConfigureLogging() {
	var path *string
	if c.Log.Path != "" {
		path = &c.Log.Path
	}
	commonlog.Configure(c.Log.Verbosity, path)
}
