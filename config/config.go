package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"nurtura/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	DB        *gorm.DB
	AppConfig Config
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	FromName string `json:"from_name"`
	From     string `json:"from"`
}

type IMAPConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	Mailbox  string `json:"mailbox"`
}

type OAuthConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"-"`
	RefreshToken string `json:"-"`
	TokenURL     string `json:"token_url"`
}

type Config struct {
	Environment string `json:"environment"`
	ServerPort  string `json:"server_port"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	JWTSecret       string `json:"-"`
	OperatorKeyHash string `json:"-"` // bcrypt hash of the operator API key

	SMTP SMTPConfig `json:"smtp"`
	IMAP IMAPConfig `json:"imap"`
	// Google OAuth for XOAUTH2 IMAP access (Gmail inboxes).
	Google OAuthConfig `json:"google"`

	StripeSecretKey     string `json:"-"`
	StripeWebhookSecret string `json:"-"`

	SlackWebhookURL string `json:"-"`
	SentryDSN       string `json:"-"`

	Redis            RedisConfig `json:"redis"`
	RateLimitTrigger int         `json:"rate_limit_trigger"`

	// TimingProfile selects the delay unit for computed schedules:
	// "production" (hours) or "accelerated" (minutes, for staging).
	TimingProfile string `json:"timing_profile"`

	WorkerPollInterval time.Duration `json:"worker_poll_interval"`
	WorkerMaxAttempts  int           `json:"worker_max_attempts"`
	ReplyPollInterval  time.Duration `json:"reply_poll_interval"`

	// SkipAddressVetting disables MX/disposable checks on trigger input
	// (useful offline and in tests).
	SkipAddressVetting bool `json:"skip_address_vetting"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "nurtura"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		OperatorKeyHash: getEnv("OPERATOR_KEY_HASH", ""),

		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			FromName: getEnv("SMTP_FROM_NAME", "Nurtura"),
			From:     getEnv("SMTP_FROM_EMAIL", ""),
		},
		IMAP: IMAPConfig{
			Enabled:  getEnv("IMAP_HOST", "") != "",
			Host:     getEnv("IMAP_HOST", ""),
			Port:     getEnvAsInt("IMAP_PORT", 993),
			Username: getEnv("IMAP_USERNAME", ""),
			Password: getEnv("IMAP_PASSWORD", ""),
			Mailbox:  getEnv("IMAP_MAILBOX", "INBOX"),
		},
		Google: OAuthConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RefreshToken: getEnv("GOOGLE_REFRESH_TOKEN", ""),
			TokenURL:     getEnv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		},

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
		SentryDSN:       getEnv("SENTRY_DSN", ""),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ADDRESS", "") != "",
			Address:  getEnv("REDIS_ADDRESS", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		RateLimitTrigger: getEnvAsInt("RATE_LIMIT_TRIGGER", 60),

		TimingProfile: getEnv("TIMING_PROFILE", "production"),

		WorkerPollInterval: getEnvAsDuration("WORKER_POLL_INTERVAL", 15*time.Second),
		WorkerMaxAttempts:  getEnvAsInt("WORKER_MAX_ATTEMPTS", 5),
		ReplyPollInterval:  getEnvAsDuration("REPLY_POLL_INTERVAL", 5*time.Minute),

		SkipAddressVetting: getEnv("SKIP_ADDRESS_VETTING", "") == "true",
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if AppConfig.TimingProfile != "production" && AppConfig.TimingProfile != "accelerated" {
		return fmt.Errorf("TIMING_PROFILE must be 'production' or 'accelerated', got %q", AppConfig.TimingProfile)
	}
	if AppConfig.Environment == "production" {
		if AppConfig.SMTP.Host == "" || AppConfig.SMTP.From == "" {
			return fmt.Errorf("SMTP_HOST and SMTP_FROM_EMAIL are required in production")
		}
		if AppConfig.OperatorKeyHash == "" {
			return fmt.Errorf("OPERATOR_KEY_HASH is required in production")
		}
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := migrateDB(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Timing Profile: %s", AppConfig.TimingProfile)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Integrations: SMTP(%t), IMAP(%t), Stripe(%t), Slack(%t), Redis(%t)",
		AppConfig.SMTP.Host != "",
		AppConfig.IMAP.Enabled,
		AppConfig.StripeWebhookSecret != "",
		AppConfig.SlackWebhookURL != "",
		AppConfig.Redis.Enabled)
}

func migrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Recipient{},
		&models.SequenceInstance{},
		&models.SequenceStep{},
		&models.StepTask{},
	)
}
