package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/otcheredev/dicom-autosync/internal/models"
	"github.com/otcheredev/dicom-autosync/internal/reconcile"
	"github.com/otcheredev/dicom-autosync/pkg/dimse"
	"github.com/spf13/viper"
)

// DefaultTransferSyntax is assumed for nodes that do not name one
const DefaultTransferSyntax = "JPEG2000Lossless"

// Config holds the application configuration
type Config struct {
	Local NodeConfig `mapstructure:"local"`

	// Remote is the legacy single remote node, migrated into Remotes on load
	Remote  *RemoteConfig           `mapstructure:"remote"`
	Remotes map[string]RemoteConfig `mapstructure:"remotes"`

	Sync     SyncConfig     `mapstructure:"sync"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Report   ReportConfig   `mapstructure:"report"`
}

type NodeConfig struct {
	Name           string `mapstructure:"name"`
	Type           string `mapstructure:"type"`
	AETitle        string `mapstructure:"ae_title"`
	IPAddress      string `mapstructure:"ip_address"`
	Port           int    `mapstructure:"port"`
	TransferSyntax string `mapstructure:"transfer_syntax"`
	BasePath       string `mapstructure:"base_path"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	APIKey         string `mapstructure:"api_key"`
}

// RemoteConfig is a remote node plus, optionally, how that node addresses the local store
type RemoteConfig struct {
	NodeConfig  `mapstructure:",squash"`
	LocalConfig *DestinationConfig `mapstructure:"local_config"`
}

type DestinationConfig struct {
	AETitle   string `mapstructure:"ae_title"`
	IPAddress string `mapstructure:"ip_address"`
	Port      int    `mapstructure:"port"`
}

type SyncConfig struct {
	CallingAETitle string        `mapstructure:"calling_ae_title"`
	Hours          int           `mapstructure:"hours"`
	Interval       time.Duration `mapstructure:"interval"`
	FastFollow     time.Duration `mapstructure:"fast_follow"`
	Mode           string        `mapstructure:"mode"`
	MaxImages      int           `mapstructure:"max_images"`
	DownloadDay    string        `mapstructure:"download_day"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
	MoveTimeout    time.Duration `mapstructure:"move_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	LogLevel string `mapstructure:"log_level"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Type    string        `mapstructure:"type"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CORS         CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type ReportConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// Load reads .env, then the config file at configPath (JSON or YAML), then AUTOSYNC_ environment overrides
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("dicom_config")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix("AUTOSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.migrate()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("local.type", string(models.NodeTypeDIMSE))
	v.SetDefault("local.transfer_syntax", DefaultTransferSyntax)

	v.SetDefault("sync.calling_ae_title", "AUTOSYNC")
	v.SetDefault("sync.hours", reconcile.DefaultWindowHours)
	v.SetDefault("sync.interval", "60s")
	v.SetDefault("sync.fast_follow", "0s")
	v.SetDefault("sync.mode", string(reconcile.ModeSmallest))
	v.SetDefault("sync.max_images", 0)
	v.SetDefault("sync.download_day", "")
	v.SetDefault("sync.query_timeout", "120s")
	v.SetDefault("sync.move_timeout", "600s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/autosync.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "autosync")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "autosync")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", "24h")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.cors.allowed_origins", []string{"*"})
	v.SetDefault("server.cors.allowed_methods", []string{"GET", "OPTIONS"})
	v.SetDefault("server.cors.allowed_headers", []string{"Accept", "Content-Type", "X-Request-ID"})

	v.SetDefault("metrics.enabled", false)

	v.SetDefault("report.enabled", false)
	v.SetDefault("report.endpoint", "localhost:9000")
	v.SetDefault("report.access_key", "")
	v.SetDefault("report.secret_key", "")
	v.SetDefault("report.bucket", "autosync-reports")
	v.SetDefault("report.use_ssl", false)
}

// migrate folds the legacy single remote into Remotes and fills node defaults
func (c *Config) migrate() {
	if c.Remote != nil && len(c.Remotes) == 0 {
		c.Remotes = map[string]RemoteConfig{LegacyKey(c.Remote.Name): *c.Remote}
	}
	c.Remote = nil

	for key, r := range c.Remotes {
		if r.TransferSyntax == "" {
			r.TransferSyntax = DefaultTransferSyntax
		}
		if r.Type == "" {
			r.Type = string(models.NodeTypeDIMSE)
		}
		c.Remotes[key] = r
	}
}

// LegacyKey derives the short name of a node migrated from the single remote format
func LegacyKey(name string) string {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
	if key == "" {
		return "default"
	}
	return key
}

// RemoteKeys returns the configured remote short names, sorted
func (c *Config) RemoteKeys() []string {
	keys := make([]string, 0, len(c.Remotes))
	for k := range c.Remotes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validateNode("local", c.Local); err != nil {
		return err
	}
	if models.NodeType(c.Local.Type) != models.NodeTypeDIMSE && models.NodeType(c.Local.Type) != models.NodeTypeDICOMWeb {
		return &models.ConfigurationError{Field: "local.type", Reason: fmt.Sprintf("unsupported node type %q", c.Local.Type)}
	}

	if len(c.Remotes) == 0 {
		return &models.ConfigurationError{Field: "remotes", Reason: "at least one remote node is required"}
	}
	for _, key := range c.RemoteKeys() {
		r := c.Remotes[key]
		if models.NodeType(r.Type) != models.NodeTypeDIMSE {
			return &models.ConfigurationError{Field: "remotes." + key + ".type", Reason: "remote nodes must be DIMSE nodes to serve C-MOVE"}
		}
		if err := validateNode("remotes."+key, r.NodeConfig); err != nil {
			return err
		}
		if r.LocalConfig != nil {
			if err := dimse.ValidateAETitle(r.LocalConfig.AETitle); err != nil {
				return &models.ConfigurationError{Field: "remotes." + key + ".local_config.ae_title", Reason: err.Error()}
			}
		}
	}

	if err := dimse.ValidateAETitle(c.Sync.CallingAETitle); err != nil {
		return &models.ConfigurationError{Field: "sync.calling_ae_title", Reason: err.Error()}
	}
	if c.Sync.Hours <= 0 {
		return &models.ConfigurationError{Field: "sync.hours", Reason: "look-back window must be a positive number of hours"}
	}
	if c.Sync.Interval <= 0 {
		return &models.ConfigurationError{Field: "sync.interval", Reason: "interval must be positive"}
	}
	if c.Sync.FastFollow < 0 {
		return &models.ConfigurationError{Field: "sync.fast_follow", Reason: "fast follow interval cannot be negative"}
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if c.Sync.DownloadDay != "" {
		if _, err := dimse.ResolveDay(c.Sync.DownloadDay, time.Now()); err != nil {
			return &models.ConfigurationError{Field: "sync.download_day", Reason: err.Error()}
		}
	}

	if c.Database.Enabled {
		switch c.Database.Driver {
		case "sqlite":
			if c.Database.Path == "" {
				return &models.ConfigurationError{Field: "database.path", Reason: "sqlite needs a database path"}
			}
		case "postgres":
			if c.Database.Host == "" || c.Database.DBName == "" {
				return &models.ConfigurationError{Field: "database.host", Reason: "postgres needs host and dbname"}
			}
		default:
			return &models.ConfigurationError{Field: "database.driver", Reason: fmt.Sprintf("unsupported driver %q (sqlite, postgres)", c.Database.Driver)}
		}
	}

	if c.Cache.Enabled && c.Cache.Type != "memory" && c.Cache.Type != "redis" {
		return &models.ConfigurationError{Field: "cache.type", Reason: fmt.Sprintf("unsupported cache %q (memory, redis)", c.Cache.Type)}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return &models.ConfigurationError{Field: "server.port", Reason: "port out of range"}
	}

	if c.Report.Enabled && (c.Report.Endpoint == "" || c.Report.Bucket == "") {
		return &models.ConfigurationError{Field: "report", Reason: "endpoint and bucket are required when the report archive is enabled"}
	}

	return nil
}

func validateNode(field string, n NodeConfig) error {
	if models.NodeType(n.Type) == models.NodeTypeDICOMWeb {
		if n.IPAddress == "" {
			return &models.ConfigurationError{Field: field + ".ip_address", Reason: "address is required"}
		}
		return nil
	}
	if err := dimse.ValidateAETitle(n.AETitle); err != nil {
		return &models.ConfigurationError{Field: field + ".ae_title", Reason: err.Error()}
	}
	if n.IPAddress == "" {
		return &models.ConfigurationError{Field: field + ".ip_address", Reason: "address is required"}
	}
	if n.Port <= 0 || n.Port > 65535 {
		return &models.ConfigurationError{Field: field + ".port", Reason: fmt.Sprintf("port %d out of range", n.Port)}
	}
	return nil
}

// Policy builds the selection policy. A positive max_images with no explicit mode selects threshold mode.
func (c *Config) Policy() (reconcile.Policy, error) {
	mode, err := reconcile.ParseMode(c.Sync.Mode)
	if err != nil {
		return reconcile.Policy{}, err
	}
	if mode == reconcile.ModeSmallest && c.Sync.MaxImages > 0 {
		mode = reconcile.ModeThreshold
	}
	p := reconcile.Policy{Mode: mode, MinImages: c.Sync.MaxImages}
	if err := p.Validate(); err != nil {
		return reconcile.Policy{}, err
	}
	return p, nil
}

// Resolved is the runtime view of one sync pairing
type Resolved struct {
	Remote      models.NodeConfig
	Local       models.NodeConfig
	Destination models.Destination
	Policy      reconcile.Policy
}

// Resolve picks the remote node to sync from. An empty key is accepted when exactly one remote is configured.
func (c *Config) Resolve(key string) (*Resolved, error) {
	if key == "" {
		if len(c.Remotes) != 1 {
			return nil, &models.ConfigurationError{
				Field:  "node",
				Reason: fmt.Sprintf("choose a remote node with --node (available: %s)", strings.Join(c.RemoteKeys(), ", ")),
			}
		}
		key = c.RemoteKeys()[0]
	}

	remote, ok := c.Remotes[strings.ToLower(key)]
	if !ok {
		return nil, &models.ConfigurationError{
			Field:  "node",
			Reason: fmt.Sprintf("unknown remote node %q (available: %s)", key, strings.Join(c.RemoteKeys(), ", ")),
		}
	}
	key = strings.ToLower(key)

	policy, err := c.Policy()
	if err != nil {
		return nil, err
	}

	local := toNode("local", c.Local)
	dest := models.Destination{AETitle: local.AETitle, Host: local.Host, Port: local.Port}
	if remote.LocalConfig != nil {
		dest = models.Destination{
			AETitle: remote.LocalConfig.AETitle,
			Host:    remote.LocalConfig.IPAddress,
			Port:    remote.LocalConfig.Port,
		}
	}

	return &Resolved{
		Remote:      toNode(key, remote.NodeConfig),
		Local:       local,
		Destination: dest,
		Policy:      policy,
	}, nil
}

func toNode(key string, n NodeConfig) models.NodeConfig {
	name := n.Name
	if name == "" {
		name = key
	}
	return models.NodeConfig{
		Key:            key,
		Name:           name,
		Type:           models.NodeType(n.Type),
		AETitle:        n.AETitle,
		Host:           n.IPAddress,
		Port:           n.Port,
		TransferSyntax: n.TransferSyntax,
		BasePath:       n.BasePath,
		Username:       n.Username,
		Password:       n.Password,
		APIKey:         n.APIKey,
	}
}
