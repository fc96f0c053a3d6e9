package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full process configuration, read from the environment.
type Config struct {
	Server     Server
	Log        Log
	Database   Database
	Redis      RedisConfig
	Kafka      Kafka
	Storage    Storage
	Encryption Encryption
	Scan       Scan
	Validation Validation
	Limits     Limits
	// CatalogFile optionally points at a YAML file overriding document
	// categories and KYC requirement sets.
	CatalogFile string
}

// Server captures ops HTTP server configuration (health and metrics only).
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

type Log struct {
	Level  string
	Format string // "json" or "text"
}

// Database is empty when running fully in memory.
type Database struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
	AutoMigrate     bool
}

// RedisConfig holds Redis connection settings. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka is used only by the audit outbox relay. No brokers disables it.
type Kafka struct {
	Brokers           []string
	ClientID          string
	TopicPrefix       string
	Partitions        int32
	ReplicationFactor int16
}

type Storage struct {
	Backend        string // "local" or "s3"
	LocalRoot      string
	Bucket         string
	BackupBucket   string
	Region         string
	Endpoint       string
	Prefix         string
	ForcePathStyle bool
	SSE            string // "", "AES256" or "aws:kms"
	KMSKeyID       string
	// Static credentials for S3-compatible endpoints; empty uses the AWS
	// default chain.
	AccessKeyID     string
	SecretAccessKey string
	BackupEnabled   bool
	OpTimeout       time.Duration
	MaxRetries      uint64
}

type Encryption struct {
	// MasterKey is 32 bytes, hex or base64 encoded.
	MasterKey  string
	Iterations int
}

type Scan struct {
	Timeout         time.Duration
	SignatureEnable bool
	BlocklistFile   string
	ClamdAddr       string
}

type Validation struct {
	PassThreshold     float64
	MinSize           int64
	MaxSize           int64
	HardMaxSize       int64
	SizeTolerance     float64
	ExtractionEnabled bool
	MinConfidence     float64
	MinImageWidth     int
	MinImageHeight    int
	MaxImageWidth     int
	MaxImageHeight    int
}

type Limits struct {
	UploadsPerWindow int
	UploadWindow     time.Duration
	MaxInFlight      int64
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []string
	e := envReader{errs: &errs}

	cfg := Config{
		Server: Server{
			Addr:            e.str("KYCVAULT_ADDR", ":8080"),
			ShutdownTimeout: e.duration("KYCVAULT_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Log: Log{
			Level:  e.str("LOG_LEVEL", "info"),
			Format: e.str("LOG_FORMAT", "json"),
		},
		Database: Database{
			URL:             e.str("DATABASE_URL", ""),
			MaxOpenConns:    e.integer("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    e.integer("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: e.duration("DB_CONN_MAX_LIFETIME", time.Hour),
			PingTimeout:     e.duration("DB_PING_TIMEOUT", 5*time.Second),
			AutoMigrate:     e.boolean("DB_AUTO_MIGRATE", false),
		},
		Redis: RedisConfig{
			URL:          e.str("REDIS_URL", ""),
			PoolSize:     e.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: Kafka{
			Brokers:           e.list("KAFKA_BROKERS"),
			ClientID:          e.str("KAFKA_CLIENT_ID", "kycvault"),
			TopicPrefix:       e.str("KAFKA_TOPIC_PREFIX", "kycvault.audit"),
			Partitions:        int32(e.integer("KAFKA_TOPIC_PARTITIONS", 3)),
			ReplicationFactor: int16(e.integer("KAFKA_TOPIC_REPLICATION", 1)),
		},
		Storage: Storage{
			Backend:         e.str("STORAGE_BACKEND", "local"),
			LocalRoot:       e.str("STORAGE_LOCAL_ROOT", "./data/objects"),
			Bucket:          e.str("S3_BUCKET", ""),
			BackupBucket:    e.str("S3_BACKUP_BUCKET", ""),
			Region:          e.str("AWS_REGION", "eu-west-1"),
			Endpoint:        e.str("S3_ENDPOINT", ""),
			Prefix:          e.str("S3_PREFIX", ""),
			ForcePathStyle:  e.boolean("S3_FORCE_PATH_STYLE", false),
			SSE:             e.str("S3_SSE", "AES256"),
			KMSKeyID:        e.str("S3_KMS_KEY_ID", ""),
			AccessKeyID:     e.str("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: e.str("S3_SECRET_ACCESS_KEY", ""),
			BackupEnabled:   e.boolean("STORAGE_BACKUP_ENABLED", true),
			OpTimeout:       e.duration("STORAGE_OP_TIMEOUT", 15*time.Second),
			MaxRetries:      uint64(e.integer("STORAGE_MAX_RETRIES", 3)),
		},
		Encryption: Encryption{
			MasterKey:  e.str("ENCRYPTION_MASTER_KEY", ""),
			Iterations: e.integer("ENCRYPTION_KDF_ITERATIONS", 100_000),
		},
		Scan: Scan{
			Timeout:         e.duration("SCAN_TIMEOUT", 30*time.Second),
			SignatureEnable: e.boolean("SCAN_SIGNATURE_ENABLED", true),
			BlocklistFile:   e.str("SCAN_BLOCKLIST_FILE", ""),
			ClamdAddr:       e.str("CLAMD_ADDR", ""),
		},
		Validation: Validation{
			PassThreshold:     e.float("VALIDATION_PASS_THRESHOLD", 75),
			MinSize:           int64(e.integer("VALIDATION_MIN_SIZE", 128)),
			MaxSize:           int64(e.integer("VALIDATION_MAX_SIZE", 10<<20)),
			HardMaxSize:       int64(e.integer("VALIDATION_HARD_MAX_SIZE", 50<<20)),
			SizeTolerance:     e.float("VALIDATION_SIZE_TOLERANCE", 0.05),
			ExtractionEnabled: e.boolean("VALIDATION_EXTRACTION_ENABLED", true),
			MinConfidence:     e.float("VALIDATION_MIN_CONFIDENCE", 0.6),
			MinImageWidth:     e.integer("VALIDATION_MIN_IMAGE_WIDTH", 100),
			MinImageHeight:    e.integer("VALIDATION_MIN_IMAGE_HEIGHT", 100),
			MaxImageWidth:     e.integer("VALIDATION_MAX_IMAGE_WIDTH", 12000),
			MaxImageHeight:    e.integer("VALIDATION_MAX_IMAGE_HEIGHT", 12000),
		},
		Limits: Limits{
			UploadsPerWindow: e.integer("UPLOAD_RATE_LIMIT", 20),
			UploadWindow:     e.duration("UPLOAD_RATE_WINDOW", time.Hour),
			MaxInFlight:      int64(e.integer("UPLOAD_MAX_IN_FLIGHT", 16)),
		},
		CatalogFile: e.str("KYC_CATALOG_FILE", ""),
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

type envReader struct {
	errs *[]string
}

func (e envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (e envReader) list(key string) []string {
	raw := e.str(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e envReader) integer(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*e.errs = append(*e.errs, key+" must be an integer")
		return def
	}
	return v
}

func (e envReader) float(key string, def float64) float64 {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*e.errs = append(*e.errs, key+" must be a number")
		return def
	}
	return v
}

func (e envReader) boolean(key string, def bool) bool {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*e.errs = append(*e.errs, key+" must be a boolean")
		return def
	}
	return v
}

func (e envReader) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*e.errs = append(*e.errs, key+" must be a duration")
		return def
	}
	return v
}
