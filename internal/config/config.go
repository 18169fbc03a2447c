// Package config loads the typed, validated run configuration once at
// startup from a YAML file plus environment overlay, mirroring the
// attribute-ified YAML tree of the original Python config but as a static
// Go struct: missing or ill-typed required fields fail fast as
// ErrConfigInvalid rather than surfacing as a runtime attribute error.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/GispoCoding/CFSI/internal/cfsierrors"
)

// RowDirection selects the image-row sign convention used when projecting
// cloud shadows. The original source carries an explicit TODO flagging this
// as possibly inverted; rather than guess, both directions are configurable
// and tested.
type RowDirection string

const (
	RowDirectionNorthUp RowDirection = "northUp"
	RowDirectionSouthUp RowDirection = "southUp"
)

// Recentness selects how many recency bands a mosaic run emits.
type Recentness int

const (
	RecentnessNone   Recentness = 0
	RecentnessShared Recentness = 1
	RecentnessPerBand Recentness = 2
)

// Config is the fully resolved, validated run configuration.
type Config struct {
	AWS    AWSConfig    `yaml:"aws"`
	Index  IndexConfig  `yaml:"index"`
	Masks  MasksConfig  `yaml:"masks"`
	Mosaic MosaicConfig `yaml:"mosaic"`
	Output OutputConfig `yaml:"output"`
	Catalog CatalogConfig `yaml:"catalog"`
	Cache  CacheConfig  `yaml:"cache"`
}

// AWSConfig holds object-store credential and region settings. Credentials
// themselves come from the environment (AWS_ACCESS_KEY_ID /
// AWS_SECRET_ACCESS_KEY), never from the YAML file.
type AWSConfig struct {
	Region string `yaml:"region"`
}

// IndexConfig configures the crawl (C3).
type IndexConfig struct {
	S2Index S2IndexConfig `yaml:"s2_index"`
}

// S2IndexConfig is the `index.s2_index` YAML block.
type S2IndexConfig struct {
	S3Buckets []string `yaml:"s3_buckets"`
	Grids     []string `yaml:"grids"`
	Years     []int    `yaml:"years"`
	Months    []int    `yaml:"months"`
	Workers   int      `yaml:"workers"`
}

// MasksConfig is the `masks` YAML block.
type MasksConfig struct {
	MaxCloudThreshold  float64            `yaml:"max_cloud_threshold"`
	MinCloudThreshold  float64            `yaml:"min_cloud_threshold"`
	WriteRGB           bool               `yaml:"write_rgb"`
	WriteL1C           bool               `yaml:"write_l1c"`
	WriteToBlobStore   bool               `yaml:"write_to_blobstore"`
	ExcludeB10FromL2A  *bool              `yaml:"exclude_b10_from_l2a"`
	S2Cloudless        S2CloudlessConfig  `yaml:"s2cloudless_masks"`
	Fmask              FmaskConfig        `yaml:"fmask_masks"`
}

// S2CloudlessConfig is `masks.s2cloudless_masks`.
type S2CloudlessConfig struct {
	Generate               bool         `yaml:"generate"`
	MaxIterations          int          `yaml:"max_iterations"`
	CloudThreshold         float64      `yaml:"cloud_threshold"`
	CloudProjectionDistance float64     `yaml:"cloud_projection_distance"`
	DarkPixelThreshold     float64      `yaml:"dark_pixel_threshold"`
	Cache                  bool         `yaml:"cache"`
	RowDirection           RowDirection `yaml:"row_direction"`
}

// FmaskConfig is `masks.fmask_masks`.
type FmaskConfig struct {
	Generate      bool   `yaml:"generate"`
	MaxIterations int    `yaml:"max_iterations"`
	BinaryPath    string `yaml:"binary_path"`
}

// MosaicConfig is the `mosaic` YAML block.
type MosaicConfig struct {
	Products    []string   `yaml:"products"`
	Dates       []string   `yaml:"dates"`
	Range       int        `yaml:"range"`
	OutputBands []string   `yaml:"output_bands"`
	Recentness  Recentness `yaml:"recentness"`
}

// OutputConfig resolves §4.8's container/host path translation pair.
type OutputConfig struct {
	ContainerRoot string `yaml:"container_root"`
	HostRoot      string `yaml:"host_root"`
}

// CatalogConfig configures the Postgres-backed catalog connection.
type CatalogConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

// CacheConfig configures the Redis-backed existence cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// ExcludeB10 reports whether L2A measurement lists should drop the B10 band,
// resolving the tri-state ExcludeB10FromL2A pointer (set by applyDefaults
// before Validate ever runs, so this is never called against a nil field in
// practice).
func (m MasksConfig) ExcludeB10() bool {
	return m.ExcludeB10FromL2A == nil || *m.ExcludeB10FromL2A
}

const (
	envConfigContainer = "CFSI_CONFIG_CONTAINER"
	envConfigHost      = "CFSI_CONFIG_HOST"
	envOutputContainer = "CFSI_OUTPUT_CONTAINER"
	envOutputHost      = "CFSI_OUTPUT_HOST"
)

// Load resolves the config file path from CFSI_CONFIG_CONTAINER, falling
// back to CFSI_CONFIG_HOST, loads any .env overlay for local development,
// parses the YAML, applies defaults, and validates. A missing or ill-typed
// required field returns cfsierrors.ErrConfigInvalid.
func Load() (Config, error) {
	_ = godotenv.Load()

	path := os.Getenv(envConfigContainer)
	if path == "" {
		path = os.Getenv(envConfigHost)
	}
	if path == "" {
		return Config{}, cfsierrors.ConfigInvalid(fmt.Errorf(
			"neither %s nor %s set", envConfigContainer, envConfigHost))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, cfsierrors.ConfigInvalid(fmt.Errorf("reading config %s: %w", path, err))
	}

	return LoadBytes(data)
}

// LoadBytes parses YAML config bytes directly, applying defaults and
// validation. Exported separately so tests don't need a file on disk.
func LoadBytes(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, cfsierrors.ConfigInvalid(fmt.Errorf("parsing config yaml: %w", err))
	}

	applyDefaults(&cfg)
	applyOutputEnvOverlay(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, cfsierrors.ConfigInvalid(err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "eu-central-1"
	}
	if cfg.Masks.MaxCloudThreshold == 0 {
		cfg.Masks.MaxCloudThreshold = 94.0
	}
	if cfg.Masks.MinCloudThreshold == 0 {
		cfg.Masks.MinCloudThreshold = 1.0
	}
	// A *bool distinguishes "absent from the YAML doc" from an explicit
	// false, so the default (true, preserving the original's behavior) only
	// applies when the field was never set.
	if cfg.Masks.ExcludeB10FromL2A == nil {
		t := true
		cfg.Masks.ExcludeB10FromL2A = &t
	}
	if cfg.Masks.S2Cloudless.CloudThreshold == 0 {
		cfg.Masks.S2Cloudless.CloudThreshold = 0.4
	}
	if cfg.Masks.S2Cloudless.CloudProjectionDistance == 0 {
		cfg.Masks.S2Cloudless.CloudProjectionDistance = 30
	}
	if cfg.Masks.S2Cloudless.DarkPixelThreshold == 0 {
		cfg.Masks.S2Cloudless.DarkPixelThreshold = 0.25
	}
	if cfg.Masks.S2Cloudless.MaxIterations == 0 {
		cfg.Masks.S2Cloudless.MaxIterations = 4
	}
	if cfg.Masks.S2Cloudless.RowDirection == "" {
		cfg.Masks.S2Cloudless.RowDirection = RowDirectionNorthUp
	}
	if cfg.Masks.Fmask.MaxIterations == 0 {
		cfg.Masks.Fmask.MaxIterations = 4
	}
	if cfg.Index.S2Index.Workers == 0 {
		cfg.Index.S2Index.Workers = 8
	}
	if cfg.Mosaic.Range == 0 {
		cfg.Mosaic.Range = 30
	}
	if cfg.Catalog.MaxConns == 0 {
		cfg.Catalog.MaxConns = 20
	}
	if cfg.Cache.URL == "" {
		cfg.Cache.URL = "redis://localhost:6379"
	}
}

func applyOutputEnvOverlay(cfg *Config) {
	if v := os.Getenv(envOutputContainer); v != "" {
		cfg.Output.ContainerRoot = v
	}
	if v := os.Getenv(envOutputHost); v != "" {
		cfg.Output.HostRoot = v
	}
}

// Validate checks required fields and value ranges, returning a plain error
// (the caller wraps it as ConfigInvalid).
func (c Config) Validate() error {
	var problems []string

	if len(c.Index.S2Index.S3Buckets) == 0 {
		problems = append(problems, "index.s2_index.s3_buckets must not be empty")
	}
	if c.Masks.MinCloudThreshold < 0 || c.Masks.MinCloudThreshold > 100 {
		problems = append(problems, "masks.min_cloud_threshold must be in [0,100]")
	}
	if c.Masks.MaxCloudThreshold < 0 || c.Masks.MaxCloudThreshold > 100 {
		problems = append(problems, "masks.max_cloud_threshold must be in [0,100]")
	}
	if c.Masks.MinCloudThreshold > c.Masks.MaxCloudThreshold {
		problems = append(problems, "masks.min_cloud_threshold must not exceed masks.max_cloud_threshold")
	}
	switch c.Masks.S2Cloudless.RowDirection {
	case RowDirectionNorthUp, RowDirectionSouthUp, "":
	default:
		problems = append(problems, "masks.s2cloudless_masks.row_direction must be northUp or southUp")
	}
	switch c.Mosaic.Recentness {
	case RecentnessNone, RecentnessShared, RecentnessPerBand:
	default:
		problems = append(problems, "mosaic.recentness must be 0, 1, or 2")
	}
	if c.Output.ContainerRoot == "" {
		problems = append(problems, "output.container_root must be set (or CFSI_OUTPUT_CONTAINER)")
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}
