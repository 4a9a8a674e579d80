package vulndb

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultWorkerCount     = 8
	DefaultFilesPerVersion = 50
	DefaultHashAlgorithm   = "SHA256"
	DefaultSvnTimeout      = 30
)

type Config struct {
	BasePath        string `toml:"base_path"`
	WorkerCount     int    `toml:"worker_count"`
	FilesPerVersion int    `toml:"files_per_version"`
	HashAlgorithm   string `toml:"hash_algorithm"`
	SvnTimeout      int    `toml:"svn_timeout"`
	SvnBaseDir      string `toml:"svn_base_dir"`
	LedgerPath      string `toml:"ledger_path"`
	ExportPath      string `toml:"export_path"`
	LogLevel        string `toml:"log_level"`
	Rewriters       []Rewriter
	Importers       Importers
}

type Rewriter struct {
	Field       string
	Predicate   string
	RewriteRule string `toml:"rewrite_rule"`
}

type Importers struct {
	CVE           CVEImporter           `toml:"cve"`
	SecurityFocus SecurityFocusImporter `toml:"securityfocus"`
}

type CVEImporter struct {
	URL string `toml:"url"`
}

type SecurityFocusImporter struct {
	Fetchers int `toml:"fetchers"`
	Pages    int `toml:"pages"`
}

func (c Config) SvnTimeoutDuration() time.Duration {
	return time.Duration(c.SvnTimeout) * time.Second
}

func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	err := level.UnmarshalText([]byte(c.LogLevel))
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c *Config) applyDefaults() {
	if c.WorkerCount <= 0 {
		c.WorkerCount = DefaultWorkerCount
	}
	if c.FilesPerVersion <= 0 {
		c.FilesPerVersion = DefaultFilesPerVersion
	}
	if c.HashAlgorithm == "" {
		c.HashAlgorithm = DefaultHashAlgorithm
	}
	c.HashAlgorithm = strings.ToUpper(c.HashAlgorithm)
	if c.SvnTimeout <= 0 {
		c.SvnTimeout = DefaultSvnTimeout
	}
	if c.SvnBaseDir == "" {
		c.SvnBaseDir = os.TempDir()
	}
	if c.LedgerPath == "" {
		c.LedgerPath = "ledger.db"
	}
	if c.ExportPath == "" {
		c.ExportPath = "export"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Importers.SecurityFocus.Fetchers <= 0 {
		c.Importers.SecurityFocus.Fetchers = 5
	}
	if c.Importers.SecurityFocus.Pages <= 0 {
		c.Importers.SecurityFocus.Pages = 1
	}
}

func (c Config) validate() error {
	if c.BasePath == "" {
		return fmt.Errorf("base_path is required")
	}
	switch c.HashAlgorithm {
	case "SHA256", "MD5":
	default:
		return fmt.Errorf("unsupported hash_algorithm %q", c.HashAlgorithm)
	}
	return nil
}

func ParseConfig(config io.Reader) (c Config, err error) {
	tomlData, err := io.ReadAll(config)
	if err != nil {
		return c, fmt.Errorf("could not read config file: %w", err)
	}
	_, err = toml.Decode(string(tomlData), &c)
	if err != nil {
		return c, fmt.Errorf("could not decode toml: %w", err)
	}
	c.applyDefaults()
	return c, c.validate()
}

func ParseConfigFromFile(path string) (c Config, err error) {
	f, err := os.Open(path)
	if err != nil {
		return c, fmt.Errorf("could not open config file: %w", err)
	}
	defer f.Close()

	return ParseConfig(f)
}
