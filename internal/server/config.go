package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/iwvelando/settlement-optimizer/internal/config"
	"github.com/iwvelando/settlement-optimizer/pkg/constants"
	"github.com/iwvelando/settlement-optimizer/pkg/validation"
	"gopkg.in/yaml.v3"
)

// Config holds the settle-server runtime parameters.
type Config struct {
	Address       string               `yaml:"address"`
	MaxUploadSize ByteSize             `yaml:"max_upload_size"`
	Logging       config.LoggingConfig `yaml:"logging"`
	Solver        config.SolverConfig  `yaml:"solver"`
}

// ByteSize is a request size limit written either as a plain byte count or
// with a binary unit suffix ("256K", "2MB").
type ByteSize int64

// UnmarshalYAML accepts both integer and suffixed scalar forms.
func (b *ByteSize) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: max upload size must be a scalar", node.Line)
	}
	n, err := ParseSize(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*b = ByteSize(n)
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Address:       constants.DefaultServerAddress,
		MaxUploadSize: ByteSize(constants.DefaultMaxUploadSizeBytes),
		Solver:        config.Default().Solver,
	}
}

// LoadConfig reads the server YAML at path. An empty path or a missing file
// yields the defaults. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return cfg, nil
	case err != nil:
		return nil, fmt.Errorf("read server config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse server config %s: %w", path, err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("server config %s: %w", path, err)
	}
	return cfg, nil
}

// UploadSizeBytes is the request body limit in bytes.
func (c *Config) UploadSizeBytes() int64 {
	return int64(c.MaxUploadSize)
}

func (c *Config) normalize() error {
	c.Address = strings.TrimSpace(c.Address)
	if c.Address == "" {
		c.Address = constants.DefaultServerAddress
	}
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = ByteSize(constants.DefaultMaxUploadSizeBytes)
	}
	if c.Solver.NodeLimit <= 0 {
		c.Solver.NodeLimit = constants.DefaultNodeLimit
	}
	if c.Solver.Parallelism <= 0 {
		c.Solver.Parallelism = constants.DefaultParallelism
	}
	return validation.ValidateLambda(c.Solver.Lambda)
}

var sizeUnits = map[string]uint{
	"":   0,
	"B":  0,
	"K":  10,
	"KB": 10,
	"M":  20,
	"MB": 20,
	"G":  30,
	"GB": 30,
}

// ParseSize converts "512", "256K" or "1 GB" into bytes. Blank input means
// the default upload limit.
func ParseSize(value string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(value))
	if s == "" {
		return constants.DefaultMaxUploadSizeBytes, nil
	}

	split := strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' })
	if split < 0 {
		split = len(s)
	}
	if split == 0 {
		return 0, fmt.Errorf("invalid size %q", value)
	}
	shift, ok := sizeUnits[strings.TrimSpace(s[split:])]
	if !ok {
		return 0, fmt.Errorf("unsupported size unit in %q", value)
	}
	n, err := strconv.ParseInt(s[:split], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", value, err)
	}
	if n > math.MaxInt64>>shift {
		return 0, fmt.Errorf("size %q overflows", value)
	}
	return n << shift, nil
}
