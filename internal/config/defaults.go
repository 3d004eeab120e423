package config

import "time"

// DefaultTrialDays - длина пробного периода нового аккаунта
const DefaultTrialDays = 30

// applyDefaults заполняет незаданные поля значениями по умолчанию
func applyDefaults(cfg *Config) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.JWT.TTL == 0 {
		cfg.JWT.TTL = 60 * 24
	}
	if cfg.Trial.Days == 0 {
		cfg.Trial.Days = DefaultTrialDays
	}
	if len(cfg.Trial.WarningDays) == 0 {
		cfg.Trial.WarningDays = []int{7, 1}
	}
	if cfg.Trial.WindowHours == 0 {
		cfg.Trial.WindowHours = 12
	}
	if cfg.Quota.LockExpiry == 0 {
		cfg.Quota.LockExpiry = 5 * time.Second
	}
	if cfg.Quota.LockTries == 0 {
		cfg.Quota.LockTries = 32
	}
	if cfg.Scheduler.TrialNotification == "" {
		cfg.Scheduler.TrialNotification = "0 0 9 * * *"
	}
	if cfg.Providers.Timeout == 0 {
		cfg.Providers.Timeout = 10 * time.Second
	}
	if cfg.Providers.MaxRetries == 0 {
		cfg.Providers.MaxRetries = 3
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o-mini"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
}
