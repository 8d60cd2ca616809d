package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"
	"github.com/ilyakaznacheev/cleanenv"
)

const (
	defaultBatchSize          = 10000
	defaultPartitionThreshold = "512MiB"
	defaultOutputDir          = "dumpferry-out"
)

// MigrationConfig holds the full TOML-driven migration configuration.
type MigrationConfig struct {
	Source             SourceConfig     `toml:"source"`
	Target             TargetConfig     `toml:"target"`
	Tables             []string         `toml:"tables"`
	Workers            int              `toml:"workers"`
	BatchSize          int              `toml:"batch_size"`
	PartitionThreshold string           `toml:"partition_threshold"` // human size, e.g. "512MiB"
	OutputDir          string           `toml:"output_dir"`
	ApplyMode          string           `toml:"apply_mode"` // psql|direct
	AddUnsignedChecks  bool             `toml:"add_unsigned_checks"`
	ReportPath         string           `toml:"report_path"`
	Tools              ToolsConfig      `toml:"tools"`
	Checkpoint         CheckpointConfig `toml:"checkpoint"`
	Hooks              HooksConfig      `toml:"hooks"`
	Log                LogConfig        `toml:"log"`

	// partitionThresholdBytes is PartitionThreshold parsed.
	partitionThresholdBytes int64
	// configDir is the directory containing the TOML file, used to resolve relative paths.
	configDir string
}

// SourceConfig identifies the MySQL source. The DSN's database is the source schema.
type SourceConfig struct {
	DSN string `toml:"dsn" env:"DUMPFERRY_SOURCE_DSN"`
}

// TargetConfig identifies the PostgreSQL target and the schema tables land in.
type TargetConfig struct {
	DSN    string `toml:"dsn" env:"DUMPFERRY_TARGET_DSN"`
	Schema string `toml:"schema"`
	Owner  string `toml:"owner"`
}

type ToolsConfig struct {
	MySQLDump string `toml:"mysqldump"`
	PSQL      string `toml:"psql"`
}

type CheckpointConfig struct {
	Path string `toml:"path"`
}

type HooksConfig struct {
	BeforeData []string `toml:"before_data"`
	AfterData  []string `toml:"after_data"`
	AfterAll   []string `toml:"after_all"`
}

type LogConfig struct {
	Level  string `toml:"level"`  // debug|info|warn|error
	Format string `toml:"format"` // console|json
}

// loadConfig reads a TOML config file, overlays environment variables and
// returns a MigrationConfig with defaults applied.
func loadConfig(path string) (*MigrationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := MigrationConfig{
		BatchSize:          defaultBatchSize,
		PartitionThreshold: defaultPartitionThreshold,
		OutputDir:          defaultOutputDir,
		ApplyMode:          "psql",
		Tools:              ToolsConfig{MySQLDump: "mysqldump", PSQL: "psql"},
		Log:                LogConfig{Level: "info", Format: "console"},
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.configDir = filepath.Dir(absPath)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *MigrationConfig) validate() error {
	if c.Source.DSN == "" {
		return fmt.Errorf("source.dsn is required")
	}
	if _, err := extractMySQLDBName(c.Source.DSN); err != nil {
		return fmt.Errorf("source.dsn: %w", err)
	}
	if c.Target.DSN == "" {
		return fmt.Errorf("target.dsn is required")
	}
	c.Target.Schema = strings.TrimSpace(c.Target.Schema)
	if c.Target.Schema == "" {
		return fmt.Errorf("target.schema is required")
	}

	if c.Workers <= 0 {
		c.Workers = defaultWorkers()
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive")
	}

	n, err := humanize.ParseBytes(c.PartitionThreshold)
	if err != nil {
		return fmt.Errorf("partition_threshold: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("partition_threshold must be positive")
	}
	c.partitionThresholdBytes = int64(n)

	switch c.ApplyMode {
	case "psql", "direct":
	default:
		return fmt.Errorf("apply_mode must be one of: psql, direct")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log.format must be one of: console, json")
	}

	for i, t := range c.Tables {
		c.Tables[i] = strings.TrimSpace(t)
	}
	return nil
}

// resolvePath resolves a path relative to the config file directory.
func (c *MigrationConfig) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.configDir, p)
}

// includeTable reports whether the allow-list admits a table, ignoring
// case. An empty allow-list admits every table. Tables keeps the configured
// spelling because mysqldump matches names case-sensitively on servers with
// lower_case_table_names=0.
func (c *MigrationConfig) includeTable(name string) bool {
	if len(c.Tables) == 0 {
		return true
	}
	for _, t := range c.Tables {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n < 1 {
		return 1
	}
	if n > 8 {
		return 8
	}
	return n
}
