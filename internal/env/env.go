package env

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment variable names kept stable across deployments.
const (
	ConfigPath       = "CHATDESK_CONFIG"
	AWSRegion        = "AWS_REGION"
	AWSID            = "AWS_ID"
	AWSSecret        = "AWS_SECRET"
	AWSToken         = "AWS_TOKEN"
	DynamoDBEndpoint = "DYNAMODB_ENDPOINT"
	UserSecretKey    = "USER_SECRET"
	ChatRedisURL     = "CHAT_REDIS_URL"
	ChatRedisPass    = "CHAT_REDIS_PASS"
	WebUrl           = "WEB_URL"
	SupabaseURL      = "SUPABASE_URL"
	SupabaseKey      = "SUPABASE_KEY"
	LogLevel         = "LOG_LEVEL"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	AWS         AWSConfig         `mapstructure:"aws"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Session     SessionConfig     `mapstructure:"session"`
	Typing      TypingConfig      `mapstructure:"typing"`
	Departments DepartmentsConfig `mapstructure:"departments"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type ServerConfig struct {
	WidgetAddr       string   `mapstructure:"widget_addr"`
	AgentAddr        string   `mapstructure:"agent_addr"`
	WSAddr           string   `mapstructure:"ws_addr"`
	QueueSize        int      `mapstructure:"queue_size"`
	Workers          int      `mapstructure:"workers"`
	DashboardOrigins []string `mapstructure:"dashboard_origins"`
}

type AWSConfig struct {
	Region           string `mapstructure:"region"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	SessionToken     string `mapstructure:"session_token"`
	DynamoDBEndpoint string `mapstructure:"dynamodb_endpoint"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	AgentSecret string `mapstructure:"agent_secret"`
}

type SessionConfig struct {
	TTL            time.Duration `mapstructure:"ttl"`
	RefreshOnReuse bool          `mapstructure:"refresh_on_reuse"`
}

type TypingConfig struct {
	Freshness time.Duration `mapstructure:"freshness"`
}

type DepartmentsConfig struct {
	Source      string `mapstructure:"source"`
	SupabaseURL string `mapstructure:"supabase_url"`
	SupabaseKey string `mapstructure:"supabase_key"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Load reads .env, an optional YAML file and the process environment, in
// increasing order of precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	path := os.Getenv(ConfigPath)
	if path == "" {
		path = "./configs/chatdesk.yaml"
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic("env: defaults do not unmarshal: " + err.Error())
	}
	return &cfg
}

func (c *Config) Validate() error {
	var missing []string
	if c.AWS.Region == "" {
		missing = append(missing, AWSRegion)
	}
	if c.Auth.AgentSecret == "" {
		missing = append(missing, UserSecretKey)
	}
	if c.Redis.URL == "" {
		missing = append(missing, ChatRedisURL)
	}
	if c.Departments.Source == "supabase" && (c.Departments.SupabaseURL == "" || c.Departments.SupabaseKey == "") {
		missing = append(missing, SupabaseURL, SupabaseKey)
	}
	if len(missing) > 0 {
		return fmt.Errorf("env: required configuration not set: %s", strings.Join(missing, ", "))
	}
	if c.Session.TTL <= 0 {
		return errors.New("env: session.ttl must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.widget_addr", ":82")
	v.SetDefault("server.agent_addr", ":81")
	v.SetDefault("server.ws_addr", ":83")
	v.SetDefault("server.queue_size", 10)
	v.SetDefault("server.workers", 10)
	v.SetDefault("server.dashboard_origins", []string{"http://localhost:3000"})

	v.SetDefault("aws.region", "")
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")
	v.SetDefault("aws.session_token", "")
	v.SetDefault("aws.dynamodb_endpoint", "")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.agent_secret", "")

	v.SetDefault("session.ttl", "24h")
	v.SetDefault("session.refresh_on_reuse", false)

	v.SetDefault("typing.freshness", "5s")

	v.SetDefault("departments.source", "dynamodb")
	v.SetDefault("departments.supabase_url", "")
	v.SetDefault("departments.supabase_key", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
}

func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"aws.region":               AWSRegion,
		"aws.access_key_id":        AWSID,
		"aws.secret_access_key":    AWSSecret,
		"aws.session_token":        AWSToken,
		"aws.dynamodb_endpoint":    DynamoDBEndpoint,
		"auth.agent_secret":        UserSecretKey,
		"redis.url":                ChatRedisURL,
		"redis.password":           ChatRedisPass,
		"departments.supabase_url": SupabaseURL,
		"departments.supabase_key": SupabaseKey,
		"logging.level":            LogLevel,
		"server.dashboard_origins": WebUrl,
	}
	for key, name := range bindings {
		if err := v.BindEnv(key, name); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return nil
}
