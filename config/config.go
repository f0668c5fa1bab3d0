package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	ServerAddr    string
	WebAppDir     string // Path to the static site (home, events, history, gallery, about)
	TemplateDir   string // Optional override directory for the standalone player templates
	PublicBaseURL string // Prefix used when building public media URLs, e.g. "https://example.org"

	// Database
	DBDriver   string // mysql or sqlite
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// RealtimeBackend selects the change-notification transport: redis or memory.
	RealtimeBackend string

	// Blob storage
	StorageProvider string // minio, s3 or local
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioRegion     string
	MinioUseSSL     bool
	S3Endpoint      string
	S3Region        string
	S3Bucket        string
	S3AccessKeyID   string
	S3SecretKey     string
	LocalStorageDir string
	MaxUploadMB     int

	// Auth
	JWTSecret string
	JWTTTL    time.Duration

	// VoxPro widget
	KeySlots        []string
	MultiWindow     bool
	RefreshInterval time.Duration

	// Logging
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// ParseKeySlots splits a comma separated slot list, dropping blanks and duplicates.
func ParseKeySlots(raw string) []string {
	seen := make(map[string]bool)
	var slots []string
	for _, part := range strings.Split(raw, ",") {
		slot := strings.TrimSpace(part)
		if slot == "" || seen[slot] {
			continue
		}
		seen[slot] = true
		slots = append(slots, slot)
	}
	return slots
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	dataBase := getEnv("DATA_DIR", "data")

	return &Config{
		ServerAddr:    getEnv("SERVER_ADDR", ":8080"),
		WebAppDir:     getEnv("WEB_APP_DIR", filepath.Join("web", "site")),
		TemplateDir:   getEnv("TEMPLATE_DIR", ""),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),

		DBDriver:   getEnv("DB_DRIVER", "mysql"),
		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no hardcoded default for the password
		DBName:     getEnv("DB_NAME", "voxpro"),
		SQLitePath: getEnv("SQLITE_PATH", filepath.Join(dataBase, "voxpro.db")),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),

		RealtimeBackend: getEnv("REALTIME_BACKEND", "redis"),

		StorageProvider: getEnv("STORAGE_PROVIDER", "minio"),
		MinioEndpoint:   getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey:  getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:  getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:     getEnv("MINIO_BUCKET", "voxpro"),
		MinioRegion:     getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:     getEnvBool("MINIO_USE_SSL", false),
		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Bucket:        getEnv("S3_BUCKET", "voxpro"),
		S3AccessKeyID:   getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretKey:     getEnv("S3_SECRET_ACCESS_KEY", ""),
		LocalStorageDir: getEnv("LOCAL_STORAGE_DIR", filepath.Join(dataBase, "media")),
		MaxUploadMB:     getEnvInt("MAX_UPLOAD_MB", 200),

		JWTSecret: getEnv("JWT_SECRET", "change-me"),
		JWTTTL:    getEnvDuration("JWT_TTL", 24*time.Hour),

		KeySlots:        ParseKeySlots(getEnv("VOXPRO_KEY_SLOTS", "1,2,3,4,5,A,B,C,D")),
		MultiWindow:     getEnvBool("VOXPRO_MULTI_WINDOW", false),
		RefreshInterval: getEnvDuration("VOXPRO_REFRESH_INTERVAL", 0),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
	}
}

// HasKeySlot reports whether slot is one of the configured key slots.
func (c *Config) HasKeySlot(slot string) bool {
	for _, s := range c.KeySlots {
		if s == slot {
			return true
		}
	}
	return false
}
