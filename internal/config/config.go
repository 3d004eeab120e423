package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Host        string `yaml:"host"`
		Port        int    `yaml:"port"`
		Env         string `yaml:"env"`
		FrontendURL string `yaml:"frontend_url"`
	} `yaml:"server"`

	Database struct {
		Driver string `yaml:"driver"` // postgres, mysql
		DSN    string `yaml:"url"`
	} `yaml:"database"`

	Redis struct {
		Addr     string `yaml:"addr"` // пусто - распределенная блокировка квот выключена
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	JWT struct {
		Secret string `yaml:"secret"`
		TTL    int    `yaml:"ttl"` // минуты
	} `yaml:"jwt"`

	Email struct {
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUsername string `yaml:"smtp_user"`
		SMTPPassword string `yaml:"smtp_password"`
		FromEmail    string `yaml:"from_email"`
		FromName     string `yaml:"from_name"`
		UseTLS       bool   `yaml:"use_tls"`
		TemplatesDir string `yaml:"templates_dir"`
	} `yaml:"email"`

	SMS struct {
		AccountSID  string `yaml:"account_sid"`
		AuthToken   string `yaml:"auth_token"`
		PhoneNumber string `yaml:"phone_number"`
	} `yaml:"sms"`

	Stripe struct {
		SecretKey     string `yaml:"secret_key"`
		WebhookSecret string `yaml:"webhook_secret"`
		// tier -> price id, например professional_monthly: price_123
		Prices map[string]string `yaml:"prices"`
	} `yaml:"stripe"`

	OpenAI struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	Storage struct {
		Type       string `yaml:"type"`        // local, s3, cloudflare_r2
		BasePath   string `yaml:"base_path"`   // For local storage
		BaseURL    string `yaml:"base_url"`    // Public URL base
		Bucket     string `yaml:"bucket"`      // For S3/R2
		Region     string `yaml:"region"`      // For S3
		AccessKey  string `yaml:"access_key"`  // For S3/R2
		SecretKey  string `yaml:"secret_key"`  // For S3/R2
		Endpoint   string `yaml:"endpoint"`    // For R2 or custom S3
		UseSSL     bool   `yaml:"use_ssl"`     // For S3/R2
		PublicRead bool   `yaml:"public_read"` // Make files public
	} `yaml:"storage"`

	Trial struct {
		Days int `yaml:"days"`
		// За сколько дней до окончания триала слать предупреждения
		WarningDays []int `yaml:"warning_days"`
		// Окно совпадения для предупреждений в часах (±)
		WindowHours int `yaml:"window_hours"`
	} `yaml:"trial"`

	Quota struct {
		LimitsFile string        `yaml:"limits_file"` // пусто - встроенная таблица
		LockExpiry time.Duration `yaml:"lock_expiry"`
		LockTries  int           `yaml:"lock_tries"`
	} `yaml:"quota"`

	Scheduler struct {
		Enabled           bool   `yaml:"enabled"`
		TrialNotification string `yaml:"trial_notifications"` // cron spec с секундами
	} `yaml:"scheduler"`

	Providers struct {
		Timeout    time.Duration `yaml:"timeout"`
		MaxRetries int           `yaml:"max_retries"`
	} `yaml:"providers"`

	Admin struct {
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"admin"`
}

var AppConfig *Config

func LoadConfig() {
	var cfg Config

	// .env не обязателен, переменные окружения имеют приоритет
	if err := godotenv.Load(); err == nil {
		log.Println("Загружен .env")
	}

	dbURL := os.Getenv("DATABASE_URL")

	if dbURL == "" {
		log.Println("Загрузка из config.yaml (режим НЕ-тест)")

		configPath := os.Getenv("CONFIG_PATH")
		if configPath == "" {
			configPath = "config/config.yaml"
		}

		f, err := os.Open(configPath)
		if err != nil {
			log.Fatalf("Failed to open config file at %s: %v", configPath, err)
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			log.Fatalf("Failed to parse config file at %s: %v", configPath, err)
		}

		applyDefaults(&cfg)
		AppConfig = &cfg
		return
	}

	log.Println("✅ Загрузка конфигурации из ПЕРЕМЕННЫХ ОКРУЖЕНИЯ (режим теста)")

	AppConfig = FromEnv(dbURL)
}

// FromEnv собирает конфиг из переменных окружения (контейнеры и тесты)
func FromEnv(dbURL string) *Config {
	var cfg Config

	cfg.Database.DSN = dbURL
	cfg.Database.Driver = getEnv("DATABASE_DRIVER", "postgres")
	cfg.Server.Env = getEnv("SERVER_ENV", "test")
	cfg.Server.Port = getEnvInt("SERVER_PORT", 8080)
	cfg.Server.FrontendURL = getEnv("FRONTEND_URL", "http://localhost:3000")

	cfg.Redis.Addr = os.Getenv("REDIS_ADDR")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")

	cfg.JWT.Secret = getEnv("JWT_SECRET", "test-secret")
	cfg.JWT.TTL = getEnvInt("JWT_TTL", 60)

	cfg.Email.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.Email.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.Email.SMTPUsername = os.Getenv("SMTP_USER")
	cfg.Email.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.Email.FromEmail = getEnv("FROM_EMAIL", "noreply@crm.local")
	cfg.Email.FromName = getEnv("FROM_NAME", "CRM")

	cfg.SMS.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.SMS.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.SMS.PhoneNumber = os.Getenv("TWILIO_PHONE_NUMBER")

	cfg.Stripe.SecretKey = os.Getenv("STRIPE_SECRET_KEY")
	cfg.Stripe.WebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")

	cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAI.Model = os.Getenv("OPENAI_MODEL")

	cfg.Storage.Type = "local"
	cfg.Storage.BasePath = getEnv("STORAGE_PATH", "./exports")
	cfg.Storage.BaseURL = "/api/v1/files"

	cfg.Quota.LimitsFile = os.Getenv("LIMITS_FILE")

	cfg.Admin.Email = os.Getenv("ADMIN_EMAIL")
	cfg.Admin.Password = os.Getenv("ADMIN_PASSWORD")

	applyDefaults(&cfg)
	return &cfg
}

func GetConfig() *Config {
	if AppConfig == nil {
		LoadConfig()
	}
	return AppConfig
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Некорректное значение %s=%q, используем %d", key, v, fallback)
		return fallback
	}
	return n
}
