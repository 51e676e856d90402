package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string
}

type MQTTConfig struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

type SlackConfig struct {
	BotToken      string
	ChannelID     string
	SigningSecret string
}

// BlynkConfig points at the device-cloud external API.
type BlynkConfig struct {
	BaseURL        string
	Timeout        time.Duration
	MaxConcurrency int
}

type PollConfig struct {
	Interval time.Duration
}

type ScheduleConfig struct {
	Timezone string
}

type DiscoveryConfig struct {
	PinCount int
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level       string
	Development bool
}

// SiteConfig binds a site to the device-cloud token used for background polling.
type SiteConfig struct {
	ID        string `json:"id"`
	AuthToken string `json:"authToken"`
}

type Config struct {
	Environment string
	Database    DatabaseConfig
	MQTT        MQTTConfig
	Slack       SlackConfig
	Blynk       BlynkConfig
	Poll        PollConfig
	Schedule    ScheduleConfig
	Discovery   DiscoveryConfig
	Server      ServerConfig
	Log         LogConfig
	Sites       []SiteConfig `json:"sites"`
	SiteCfgPath string       `json:"sitecfgpath"`
}

func LoadConfig() (*Config, error) {
	v := viper.New()

	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.path", "DB_PATH")

	v.BindEnv("mqtt.broker", "MQTT_BROKER")
	v.BindEnv("mqtt.clientid", "MQTT_CLIENT_ID")
	v.BindEnv("mqtt.username", "MQTT_USERNAME")
	v.BindEnv("mqtt.password", "MQTT_PASSWORD")
	v.BindEnv("mqtt.topicprefix", "MQTT_TOPIC_PREFIX")

	v.BindEnv("slack.bottoken", "SLACK_BOT_TOKEN")
	v.BindEnv("slack.channelid", "SLACK_CHANNEL_ID")
	v.BindEnv("slack.signingsecret", "SLACK_SIGNING_SECRET")

	v.BindEnv("blynk.baseurl", "BLYNK_BASE_URL")
	v.BindEnv("blynk.timeout", "BLYNK_TIMEOUT")
	v.BindEnv("blynk.maxconcurrency", "BLYNK_MAX_CONCURRENCY")

	v.BindEnv("poll.interval", "POLL_INTERVAL")
	v.BindEnv("schedule.timezone", "TIMEZONE")
	v.BindEnv("discovery.pincount", "DISCOVERY_PIN_COUNT")
	v.BindEnv("server.port", "PORT")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.development", "LOG_DEVELOPMENT")
	v.BindEnv("sitecfgpath", "SITE_CONFIG_PATH")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "cropsense.db")
	v.SetDefault("mqtt.clientid", "cropsense")
	v.SetDefault("mqtt.topicprefix", "cropsense")
	v.SetDefault("blynk.baseurl", "https://blynk.cloud/external/api")
	v.SetDefault("blynk.timeout", "5s")
	v.SetDefault("blynk.maxconcurrency", 8)
	v.SetDefault("poll.interval", "1m")
	v.SetDefault("schedule.timezone", "Asia/Bangkok")
	v.SetDefault("discovery.pincount", 10)
	v.SetDefault("server.port", 3005)
	v.SetDefault("log.level", "info")

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}

	if env == "local" {
		v.SetConfigFile(".env.local")
		v.SetConfigType("env")

		if err := v.ReadInConfig(); err != nil {
			// viper reports a missing explicit file as a plain fs error
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file .env.local: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Environment = env

	if config.SiteCfgPath != "" {
		sites, err := loadSites(config.SiteCfgPath)
		if err != nil {
			return nil, err
		}
		config.Sites = sites
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// loadSites reads a JSON document of the form { "sites": [ ... ] }.
func loadSites(path string) ([]SiteConfig, error) {
	jsonFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open site config file '%s': %w", path, err)
	}
	defer jsonFile.Close()

	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read site config file: %w", err)
	}

	var doc struct {
		Sites []SiteConfig `json:"sites"`
	}
	if err := json.Unmarshal(byteValue, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal site config JSON: %w", err)
	}
	return doc.Sites, nil
}

func (cfg *Config) Validate() error {
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if cfg.Blynk.Timeout <= 0 {
		return fmt.Errorf("blynk timeout must be positive, got %v", cfg.Blynk.Timeout)
	}
	if cfg.Blynk.MaxConcurrency < 1 {
		cfg.Blynk.MaxConcurrency = 1
	}
	if cfg.Poll.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", cfg.Poll.Interval)
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	for i, site := range cfg.Sites {
		if site.ID == "" {
			return fmt.Errorf("site #%d has no id", i)
		}
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (cfg *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		cfg.Database.Host,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.Port,
		cfg.Database.SSLMode,
	)
}

// Location resolves the timezone schedules are evaluated in.
func (cfg *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(cfg.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load location %q: %w", cfg.Schedule.Timezone, err)
	}
	return loc, nil
}

// SiteToken returns the configured device-cloud token for a site.
func (cfg *Config) SiteToken(siteID string) (string, bool) {
	for _, site := range cfg.Sites {
		if site.ID == siteID && site.AuthToken != "" {
			return site.AuthToken, true
		}
	}
	return "", false
}
