package configuration

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"video-gateway/infrastructure/logger"

	"github.com/spf13/viper"
)

type Config struct {
	App        App        `json:"app"`
	Origin     Origin     `json:"origin"`
	Cache      Cache      `json:"cache"`
	Redis      Redis      `json:"redis"`
	Database   Database   `json:"database"`
	Preload    Preload    `json:"preload"`
	Quality    Quality    `json:"quality"`
	Media      Media      `json:"media"`
	Pubsub     Pubsub     `json:"pubsub"`
	ServiceBus ServiceBus `json:"serviceBus"`
}

type App struct {
	Port        int      `json:"port"`
	SecretKey   string   `json:"secretKey"`
	TLSEnabled  bool     `json:"tlsEnabled"`
	TLSCertFile string   `json:"tlsCertFile"`
	TLSKeyFile  string   `json:"tlsKeyFile"`
	CORSOrigins []string `json:"corsOrigins"`
}

// Origin is the upstream the gateway fronts.
type Origin struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type Cache struct {
	// Backend is one of memory, redis, postgres, mssql.
	Backend string `json:"backend"`
	Version string `json:"version"`
	// APIPrefix routes requests to the network-first API strategy.
	APIPrefix string `json:"apiPrefix"`
	// APIMaxStaleSeconds bounds how old a cached API copy may be when served as a fallback.
	APIMaxStaleSeconds   int `json:"apiMaxStaleSeconds"`
	SweepIntervalSeconds int `json:"sweepIntervalSeconds"`
}

type Redis struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

type Database struct {
	Psql  Db `json:"psql"`
	Mssql Db `json:"mssql"`
}

type Db struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
}

type Preload struct {
	Count         int `json:"count"`
	Distance      int `json:"distance"`
	MaxConcurrent int `json:"maxConcurrent"`
}

type Quality struct {
	BufferTargetSeconds float64 `json:"bufferTargetSeconds"`
	Adaptive            bool    `json:"adaptive"`
}

type Media struct {
	FFmpegPath  string `json:"ffmpegPath"`
	FFprobePath string `json:"ffprobePath"`
	TempDir     string `json:"tempDir"`
	MaxUploadMB int64  `json:"maxUploadMB"`
}

type Pubsub struct {
	ProjectID      string `json:"projectID"`
	SubscriptionID string `json:"subscriptionID"`
}

type ServiceBus struct {
	Namespace string `json:"namespace"`
	Queue     string `json:"queue"`
}

var C Config

func init() {
	LoadConfig()
	Reapply()
}

// Reapply runs the env override helpers again, e.g. after env files were loaded.
func Reapply() {
	initApp(&C)
	initCache(&C)
	initDatabase(&C)
	initClient(&C)
}

func LoadConfig() {
	name := getConfig()
	viper.SetConfigName(name)
	viper.SetConfigType("json")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")
	viper.AddConfigPath("../../")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.GetLogger().Warn("Config file not found")
		} else {
			logger.GetLogger().WithField("error", err).Error("Error reading config file")
		}
	}

	logger.GetLogger().WithField("config", name).Info("Config set up successfully")
	if err := viper.Unmarshal(&C); err != nil {
		logger.GetLogger().WithField("error", err).Error("Viper unable to decode into struct")
	}
}

func getConfig() string {
	name := "config"
	env := os.Getenv("ENV")
	if env != "" {
		name = fmt.Sprintf("%s-%s", name, env)
	}
	return name
}

func initApp(C *Config) {
	if v := os.Getenv("SECRET_KEY"); v != "" {
		C.App.SecretKey = v
	}
	// Port resolution order (env overrides config): APP_PORT -> PORT -> config -> default 10002
	if v := os.Getenv("APP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	} else if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			C.App.Port = p
		}
	}
	if C.App.Port == 0 {
		C.App.Port = 10002
	}
	if v := os.Getenv("TLS_ENABLED"); v != "" {
		switch v {
		case "1", "true", "TRUE", "True":
			C.App.TLSEnabled = true
		case "0", "false", "FALSE", "False":
			C.App.TLSEnabled = false
		}
	}
	if C.App.TLSCertFile == "" {
		C.App.TLSCertFile = os.Getenv("TLS_CERT_FILE")
	}
	if C.App.TLSKeyFile == "" {
		C.App.TLSKeyFile = os.Getenv("TLS_KEY_FILE")
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		C.App.CORSOrigins = splitList(v)
	}
	if len(C.App.CORSOrigins) == 0 {
		C.App.CORSOrigins = []string{"http://localhost:4200", "http://localhost:4201"}
	}
	if C.App.SecretKey == "" {
		logger.GetLogger().Warn("App.SecretKey not set; control endpoints are not protected.")
	}
}

func initCache(C *Config) {
	if v := os.Getenv("ORIGIN_URL"); v != "" {
		C.Origin.URL = v
	}
	if C.Origin.TimeoutSeconds <= 0 {
		C.Origin.TimeoutSeconds = 30
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		C.Cache.Backend = v
	}
	if C.Cache.Backend == "" {
		C.Cache.Backend = "memory"
	}
	if v := os.Getenv("CACHE_VERSION"); v != "" {
		C.Cache.Version = v
	}
	if C.Cache.Version == "" {
		C.Cache.Version = "v1"
	}
	if C.Cache.APIPrefix == "" {
		C.Cache.APIPrefix = "/api/"
	}
	if C.Cache.APIMaxStaleSeconds <= 0 {
		C.Cache.APIMaxStaleSeconds = 300
	}
	if C.Cache.SweepIntervalSeconds <= 0 {
		C.Cache.SweepIntervalSeconds = 60
	}
	if C.Preload.Count <= 0 {
		C.Preload.Count = 3
	}
	if C.Preload.Distance <= 0 {
		C.Preload.Distance = C.Preload.Count
	}
	if C.Preload.MaxConcurrent <= 0 {
		C.Preload.MaxConcurrent = 2
	}
	if C.Quality.BufferTargetSeconds <= 0 {
		C.Quality.BufferTargetSeconds = 30
	}
	if C.Media.FFmpegPath == "" {
		C.Media.FFmpegPath = getEnv("FFMPEG_PATH", "ffmpeg")
	}
	if C.Media.FFprobePath == "" {
		C.Media.FFprobePath = getEnv("FFPROBE_PATH", "ffprobe")
	}
	if C.Media.TempDir == "" {
		C.Media.TempDir = os.TempDir()
	}
	if C.Media.MaxUploadMB <= 0 {
		C.Media.MaxUploadMB = 512
	}
}

func initDatabase(C *Config) {
	if C.Redis.Host == "" {
		C.Redis.Host = getEnv("REDIS_HOST", "localhost")
	}
	if C.Redis.Port == "" {
		C.Redis.Port = getEnv("REDIS_PORT", "6379")
	}
	if v := os.Getenv("REDIS_USERNAME"); v != "" {
		C.Redis.Username = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		C.Redis.Password = v
	}
	if C.Redis.Prefix == "" {
		C.Redis.Prefix = "vgw"
	}

	if C.Database.Psql.Name == "" {
		C.Database.Psql.Name = os.Getenv("DB_NAME")
	}
	if C.Database.Psql.Host == "" {
		C.Database.Psql.Host = os.Getenv("DB_HOST")
	}
	if C.Database.Psql.User == "" {
		C.Database.Psql.User = os.Getenv("DB_USER")
	}
	if C.Database.Psql.Password == "" {
		C.Database.Psql.Password = os.Getenv("DB_PASSWORD")
	}
	if C.Database.Psql.Port == "" {
		C.Database.Psql.Port = getEnv("DB_PORT", "5432")
	}

	if C.Database.Mssql.Name == "" {
		C.Database.Mssql.Name = os.Getenv("MSSQL_DB_NAME")
	}
	if C.Database.Mssql.Host == "" {
		C.Database.Mssql.Host = getEnv("MSSQL_HOST", "localhost")
	}
	if C.Database.Mssql.Port == "" {
		C.Database.Mssql.Port = getEnv("MSSQL_PORT", "1433")
	}
	if C.Database.Mssql.User == "" {
		C.Database.Mssql.User = getEnv("MSSQL_USER", "sa")
	}
	if C.Database.Mssql.Password == "" {
		C.Database.Mssql.Password = os.Getenv("MSSQL_PASSWORD")
	}
}

func initClient(C *Config) {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		C.Pubsub.ProjectID = v
	}
	if v := os.Getenv("PUBSUB_SUBSCRIPTION_ID"); v != "" {
		C.Pubsub.SubscriptionID = v
	}
	if v := os.Getenv("SERVICE_BUS_NAMESPACE"); v != "" {
		C.ServiceBus.Namespace = v
	}
	if v := os.Getenv("SERVICE_BUS_QUEUE"); v != "" {
		C.ServiceBus.Queue = v
	}
}

// OriginTimeout returns the origin request timeout.
func (c *Config) OriginTimeout() time.Duration {
	return time.Duration(c.Origin.TimeoutSeconds) * time.Second
}

// APIMaxStale returns the freshness bound for API fallbacks.
func (c *Config) APIMaxStale() time.Duration {
	return time.Duration(c.Cache.APIMaxStaleSeconds) * time.Second
}

// SweepInterval returns how often expired API entries are removed.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Cache.SweepIntervalSeconds) * time.Second
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
