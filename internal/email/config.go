package email

import (
	"time"

	"crm_backend/internal/config"
)

// SMTPConfig содержит конфигурацию SMTP сервера
type SMTPConfig struct {
	Host         string
	Port         int
	Username     string
	Password     string
	FromEmail    string
	FromName     string
	UseTLS       bool
	TemplatesDir string
	Timeout      time.Duration
	MaxRetries   int
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *SMTPConfig {
	return &SMTPConfig{
		Port:       587,
		UseTLS:     true,
		Timeout:    10 * time.Second,
		MaxRetries: 3,
	}
}

// ConfigFrom собирает SMTPConfig из конфига приложения
func ConfigFrom(cfg *config.Config) *SMTPConfig {
	c := DefaultConfig()
	c.Host = cfg.Email.SMTPHost
	if cfg.Email.SMTPPort > 0 {
		c.Port = cfg.Email.SMTPPort
	}
	c.Username = cfg.Email.SMTPUsername
	c.Password = cfg.Email.SMTPPassword
	c.FromEmail = cfg.Email.FromEmail
	c.FromName = cfg.Email.FromName
	c.UseTLS = cfg.Email.UseTLS
	c.TemplatesDir = cfg.Email.TemplatesDir
	if cfg.Providers.Timeout > 0 {
		c.Timeout = cfg.Providers.Timeout
	}
	c.MaxRetries = cfg.Providers.MaxRetries
	return c
}
