package config

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the browser engine configuration
type Config struct {
	// Index settings
	CacheDir          string   `mapstructure:"cache_dir" yaml:"cache_dir"`                   // tree snapshot cache location
	Workers           int      `mapstructure:"workers" yaml:"workers"`                       // concurrent archive scan units
	Extensions        []string `mapstructure:"extensions" yaml:"extensions"`                 // entry extensions to index
	ArchiveExtensions []string `mapstructure:"archive_extensions" yaml:"archive_extensions"` // container formats to open
	Exclude           []string `mapstructure:"exclude" yaml:"exclude"`                       // directories to skip while discovering archives
	MaxArchiveSize    string   `mapstructure:"max_archive_size" yaml:"max_archive_size"`     // largest archive to index ("0" = unlimited)
	SkipCache         bool     `mapstructure:"skip_cache" yaml:"skip_cache"`                 // always re-scan, never read snapshots

	// I/O settings
	OpenTimeout time.Duration `mapstructure:"open_timeout" yaml:"open_timeout"` // bound on opening one archive
	ChunkSize   int           `mapstructure:"chunk_size" yaml:"chunk_size"`     // extraction copy buffer
	ShareLimit  string        `mapstructure:"share_limit" yaml:"share_limit"`   // largest entry shared across concurrent extractions
}

// LoadConfig loads configuration from environment variables and defaults
func LoadConfig() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("cache_dir", defaultCacheDir())
	v.SetDefault("workers", runtime.NumCPU()*2)
	v.SetDefault("extensions", []string{"wav", "mp3", "ogg"})
	v.SetDefault("archive_extensions", []string{"zip"})
	v.SetDefault("exclude", []string{".git", "node_modules", "__MACOSX"})
	v.SetDefault("max_archive_size", "0")
	v.SetDefault("skip_cache", false)
	v.SetDefault("open_timeout", "30s")
	v.SetDefault("chunk_size", 64*1024)
	v.SetDefault("share_limit", "8M")

	// Read environment variables
	v.SetEnvPrefix("ZAUDIOBROWSER")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// defaultCacheDir places snapshots in an application-private location.
func defaultCacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "zaudiobrowser-cache")
	}
	return filepath.Join(home, ".zaudiobrowser", "cache")
}

// ShouldIndexEntry determines if an archive entry belongs in the tree based
// on its extension.
func (c *Config) ShouldIndexEntry(ext string) bool {
	if len(c.Extensions) == 0 {
		return true
	}
	ext = strings.ToLower(ext)
	for _, e := range c.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// ExtensionFilter returns the entry filter in canonical form: lowercased,
// sorted, comma-joined. Snapshots are keyed on it so a changed filter is a
// cache miss, not a stale tree. Empty means everything is indexed.
func (c *Config) ExtensionFilter() string {
	if len(c.Extensions) == 0 {
		return ""
	}
	exts := make([]string, len(c.Extensions))
	for i, e := range c.Extensions {
		exts[i] = strings.ToLower(e)
	}
	sort.Strings(exts)
	return strings.Join(exts, ",")
}

// IsArchive reports whether a file name looks like a supported container.
func (c *Config) IsArchive(name string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return false
	}
	for _, e := range c.ArchiveExtensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// WriteDefault writes a starter configuration file in YAML form.
func WriteDefault(path string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
