package config

import (
	pkgconfig "github.com/retroden/netplay-service/pkg/config"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cache     CacheConfig
	Netplay   NetplayConfig
	Signaling SignalingConfig
	Auth      AuthConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	FilePath        string `mapstructure:"file_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string
	DB       int `mapstructure:"db"`
}

type CacheConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
	Prefix     string `mapstructure:"prefix"`
}

type NetplayConfig struct {
	DefaultTTLMinutes   int `mapstructure:"default_ttl_minutes"`
	MinTTLMinutes       int `mapstructure:"min_ttl_minutes"`
	MaxTTLMinutes       int `mapstructure:"max_ttl_minutes"`
	SweepIntervalSecond int `mapstructure:"sweep_interval_seconds"`
	CodeLength          int `mapstructure:"code_length"`
	CodeAttempts        int `mapstructure:"code_attempts"`
	MaxParticipants     int `mapstructure:"max_participants"`
	MaxSessionsPerHost  int `mapstructure:"max_sessions_per_host"`
}

type SignalingConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	Token          string
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

type LogConfig struct {
	Level string
}

func Load() (*Config, error) {
	v, err := pkgconfig.Load("./config", "config")
	if err != nil {
		return nil, err
	}

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8086)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "netplay_service")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.file_path", "./data/netplay.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl_seconds", 30)
	v.SetDefault("cache.prefix", "netplay:session")
	v.SetDefault("netplay.default_ttl_minutes", 30)
	v.SetDefault("netplay.min_ttl_minutes", 5)
	v.SetDefault("netplay.max_ttl_minutes", 240)
	v.SetDefault("netplay.sweep_interval_seconds", 30)
	v.SetDefault("netplay.code_length", 6)
	v.SetDefault("netplay.code_attempts", 5)
	v.SetDefault("netplay.max_participants", 4)
	v.SetDefault("netplay.max_sessions_per_host", 5)
	v.SetDefault("signaling.enabled", false)
	v.SetDefault("signaling.base_url", "http://localhost:8087")
	v.SetDefault("signaling.token", "")
	v.SetDefault("signaling.timeout_seconds", 10)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "retroden")
	v.SetDefault("log.level", "info")

	// Bind environment variables
	v.BindEnv("server.port", "PORT")
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")
	v.BindEnv("database.file_path", "DB_FILE_PATH")
	v.BindEnv("database.max_idle_conns", "DB_MAX_IDLE_CONNS")
	v.BindEnv("database.max_open_conns", "DB_MAX_OPEN_CONNS")
	v.BindEnv("database.conn_max_lifetime", "DB_CONN_MAX_LIFETIME")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("cache.enabled", "CACHE_ENABLED")
	v.BindEnv("netplay.max_participants", "NETPLAY_MAX_PARTICIPANTS")
	v.BindEnv("netplay.max_sessions_per_host", "NETPLAY_MAX_SESSIONS_PER_HOST")
	v.BindEnv("signaling.enabled", "SIGNALING_ENABLED")
	v.BindEnv("signaling.base_url", "SIGNALING_BASE_URL")
	v.BindEnv("signaling.token", "SIGNALING_TOKEN")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("auth.jwt_issuer", "JWT_ISSUER")
	v.BindEnv("log.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
