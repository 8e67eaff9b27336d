package common

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Drive    DriveConfig
	OCR      OCRConfig
	Scan     ScanConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // "postgres" or "sqlite"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr string
}

// DriveConfig holds remote file store configuration
type DriveConfig struct {
	RootFolderID string
	OCRLanguage  string
}

// OCRConfig holds local OCR configuration
type OCRConfig struct {
	Pdftotext        string
	Pdftoppm         string
	Tesseract        string
	Languages        string
	DPI              int
	ArtifactCacheDir string
}

// ScanConfig holds scan orchestration configuration
type ScanConfig struct {
	JobRetention      time.Duration
	SweepInterval     time.Duration
	ScoreConfigPath   string // optional YAML overriding matching thresholds
	ExcludeLabels     string // comma-separated label patterns never matched
	DownloadTimeout   time.Duration
	ExtractionTimeout time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:           getEnv("DB_DRIVER", "postgres"),
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		Drive: DriveConfig{
			RootFolderID: getEnv("DRIVE_ROOT_FOLDER_ID", ""),
			OCRLanguage:  getEnv("DRIVE_OCR_LANGUAGE", "en"),
		},
		OCR: OCRConfig{
			Pdftotext:        getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:         getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:        getEnv("TESSERACT_BIN", "tesseract"),
			Languages:        getEnv("TESSERACT_LANG", "eng+fra"),
			DPI:              getEnvAsInt("OCR_DPI", 300),
			ArtifactCacheDir: getEnv("ARTIFACT_CACHE_DIR", "./tmp"),
		},
		Scan: ScanConfig{
			JobRetention:      getEnvAsDuration("SCAN_JOB_RETENTION", time.Hour),
			SweepInterval:     getEnvAsDuration("SCAN_SWEEP_INTERVAL", 10*time.Minute),
			ScoreConfigPath:   getEnv("SCORE_CONFIG_PATH", ""),
			ExcludeLabels:     getEnv("MATCH_EXCLUDE_LABELS", ""),
			DownloadTimeout:   getEnvAsDuration("SCAN_DOWNLOAD_TIMEOUT", time.Minute),
			ExtractionTimeout: getEnvAsDuration("SCAN_EXTRACTION_TIMEOUT", 3*time.Minute),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		return NewAppError("CONFIG_ERROR", "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Drive.RootFolderID == "" {
		return NewAppError("CONFIG_ERROR", "DRIVE_ROOT_FOLDER_ID is required", ErrInvalidInput)
	}
	return nil
}
