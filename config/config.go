package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	ServerPort string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO配置
	MinioEndpoint      string
	MinioAccessKey     string
	MinioSecretKey     string
	MinioBucket        string
	MinioUseSSL        bool
	MinioRegion        string
	MinioPublicBaseURL string // 对外访问地址，为空时根据 endpoint 拼接

	// 提示词生成服务 (OpenAI 兼容)
	OpenAIAPIKey      string
	OpenAIBaseURL     string
	OpenAIModel       string
	OpenAITemperature float64
	OpenAITimeout     time.Duration

	// 音乐渲染服务
	MurekaAPIKey          string
	MurekaAPIURL          string
	MurekaTimeout         time.Duration
	MurekaPollInterval    time.Duration
	MurekaMaxPollAttempts int

	// 生成任务
	GenerationDeadline    time.Duration
	GenerationMaxAttempts int
	GenerationQueue       string
	WorkerConcurrency     int
	SupervisorInterval    time.Duration
	TrackStatusCacheTTL   time.Duration

	AuthJWTSecret string

	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvSeconds reads an integer number of seconds.
func getEnvSeconds(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Second
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "readingfm"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:      getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey:     os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:     os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:        getEnv("MINIO_BUCKET", "music-tracks"),
		MinioUseSSL:        getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:        getEnv("MINIO_REGION", "us-east-1"),
		MinioPublicBaseURL: getEnv("MINIO_PUBLIC_BASE_URL", ""),

		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:     getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITemperature: getEnvFloat("OPENAI_TEMPERATURE", 0.8),
		OpenAITimeout:     getEnvSeconds("OPENAI_TIMEOUT_SECONDS", 60),

		MurekaAPIKey:          os.Getenv("MUREKA_API_KEY"),
		MurekaAPIURL:          getEnv("MUREKA_API_URL", "https://api.mureka.ai"),
		MurekaTimeout:         getEnvSeconds("MUREKA_TIMEOUT_SECONDS", 300),
		MurekaPollInterval:    getEnvSeconds("MUREKA_POLL_INTERVAL_SECONDS", 5),
		MurekaMaxPollAttempts: getEnvInt("MUREKA_MAX_POLL_ATTEMPTS", 96),

		GenerationDeadline:    getEnvSeconds("GENERATION_DEADLINE_SECONDS", 300),
		GenerationMaxAttempts: getEnvInt("GENERATION_MAX_ATTEMPTS", 5),
		GenerationQueue:       getEnv("GENERATION_QUEUE", "music_generation"),
		WorkerConcurrency:     getEnvInt("WORKER_CONCURRENCY", 4),
		SupervisorInterval:    getEnvSeconds("SUPERVISOR_INTERVAL_SECONDS", 60),
		TrackStatusCacheTTL:   getEnvSeconds("TRACK_STATUS_CACHE_TTL_SECONDS", 10),

		AuthJWTSecret: os.Getenv("AUTH_JWT_SECRET"),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE_DAYS", 30),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}

// Requirement 标识某个子命令需要的外部依赖
type Requirement int

const (
	RequireDatabase Requirement = iota
	RequireRedis
	RequireStorage
	RequirePromptService
	RequireRenderService
	RequireAuth
)

// Validate 检查指定依赖所需的配置项是否齐全
func (c *Config) Validate(reqs ...Requirement) error {
	var missing []string
	for _, req := range reqs {
		switch req {
		case RequireDatabase:
			if c.DBHost == "" || c.DBName == "" || c.DBUser == "" {
				missing = append(missing, "DB_HOST/DB_NAME/DB_USER")
			}
		case RequireRedis:
			if c.RedisHost == "" || c.RedisPort == "" {
				missing = append(missing, "REDIS_HOST/REDIS_PORT")
			}
		case RequireStorage:
			if c.MinioEndpoint == "" || c.MinioAccessKey == "" || c.MinioSecretKey == "" {
				missing = append(missing, "MINIO_ENDPOINT/MINIO_ACCESS_KEY/MINIO_SECRET_KEY")
			}
		case RequirePromptService:
			if c.OpenAIAPIKey == "" {
				missing = append(missing, "OPENAI_API_KEY")
			}
		case RequireRenderService:
			if c.MurekaAPIKey == "" {
				missing = append(missing, "MUREKA_API_KEY")
			}
		case RequireAuth:
			if c.AuthJWTSecret == "" {
				missing = append(missing, "AUTH_JWT_SECRET")
			}
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RedisAddr returns host:port of the Redis server.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
