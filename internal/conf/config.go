// config.go: This file contains the configuration for the VeSPA catalog
// service. It defines the settings struct and functions to load settings.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

//go:embed config.yaml
var configFiles embed.FS

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// LogConfig contains settings for a rotated log file.
type LogConfig struct {
	Enabled bool   // true to enable this log target
	Path    string // path to log file
	MaxSize int64  // maximum log file size in bytes before rotation
}

// MainSettings contains general application settings.
type MainSettings struct {
	Name string    // node name, used to identify this instance
	Log  LogConfig // main log settings
}

// SQLiteSettings contains settings for the SQLite catalog store.
type SQLiteSettings struct {
	Enabled bool   // true to enable the SQLite store
	Path    string // path to the SQLite database file
}

// MySQLSettings contains settings for the MySQL catalog store.
type MySQLSettings struct {
	Enabled  bool   // true to enable the MySQL store
	Username string // MySQL username
	Password string // MySQL password
	Database string // MySQL database name
	Host     string // MySQL host
	Port     string // MySQL port
}

// OutputSettings groups the available catalog store backends.
type OutputSettings struct {
	SQLite SQLiteSettings // SQLite store settings
	MySQL  MySQLSettings  // MySQL store settings
}

// ZooniverseSettings contains settings for the crowd-sourcing platform client.
type ZooniverseSettings struct {
	BaseURL        string // API base URL
	ProjectID      int    // Zooniverse project id
	MainWorkflowID int    // workflow accepted for primary classifications
	JunkWorkflowID int    // secondary junk-review workflow, also accepted
	CacheExport    bool   // true to cache the deduplicated vote table locally
	CacheDir       string // directory for the vote table cache
	CommitChanges  bool   // false leaves subject metadata updates as a dry run
	CatalogHost    string // public host serving the star catalog, used in subject links
}

// ImportSettings locates the period-search reference tables.
type ImportSettings struct {
	Root        string // directory holding the reference tables
	LookupFile  string // subject lookup table (table A)
	ResultsFile string // period search results table (table B)
	Limit       int    // cap on enriched rows per release, 0 for no cap
	FluxURL     string // URL template for raw photometry, %s replaced by the designation
}

// ReleaseSettings tunes the aggregation pipeline.
type ReleaseSettings struct {
	CheckpointInterval int // log progress every N materialized subjects
	FitsAttempts       int // give up fetching raw photometry after this many failures
}

// ExportSettings contains settings for the CSV/ZIP export generator.
type ExportSettings struct {
	Dir string // directory export archives are written to
}

// MediaSettings contains settings for the rendered lightcurve images.
type MediaSettings struct {
	Dir        string // directory rendered plots are written to
	PlotURL    string // URL template for folded plot renders
	Workers    int    // regeneration worker count
	QueueDepth int    // regeneration queue depth
}

// Settings contains all runtime settings for the application.
type Settings struct {
	Debug bool // true to enable debug level logging

	Main       MainSettings
	Output     OutputSettings
	Zooniverse ZooniverseSettings
	Import     ImportSettings
	Release    ReleaseSettings
	Export     ExportSettings
	Media      MediaSettings
}

// Load reads the configuration into a new Settings instance and stores it
// as the package-level instance returned by Setting().
func Load() (*Settings, error) {
	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

// Setting returns the current settings instance, loading it if necessary.
func Setting() *Settings {
	settingsMutex.RLock()
	if settingsInstance != nil {
		defer settingsMutex.RUnlock()
		return settingsInstance
	}
	settingsMutex.RUnlock()

	settings, err := Load()
	if err != nil {
		log.Fatalf("error loading settings: %v", err)
	}
	return settings
}

// ValidateSettings checks the loaded configuration for unusable values.
func ValidateSettings(settings *Settings) error {
	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return errors.New("no catalog store enabled: enable output.sqlite or output.mysql")
	}
	if settings.Output.SQLite.Enabled && settings.Output.SQLite.Path == "" {
		return errors.New("output.sqlite.path must be set when the SQLite store is enabled")
	}
	if settings.Zooniverse.MainWorkflowID == 0 {
		return errors.New("zooniverse.mainworkflowid must be set")
	}
	if settings.Release.CheckpointInterval <= 0 {
		return errors.New("release.checkpointinterval must be positive")
	}
	return nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// in priority order: working directory, then the user config directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{"."}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return paths, nil
	}
	return append(paths, filepath.Join(configDir, "vespa")), nil
}

// createDefaultConfig creates a default config file and writes it to the
// first default config path.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[0], "config.yaml")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(getDefaultConfig()), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading embedded config file: %v", err)
	}
	return string(data)
}
