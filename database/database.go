// Package database открывает подключение GORM и мигрирует схему CRM.
package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"crm_backend/internal/config"
	"crm_backend/internal/logger"
	"crm_backend/internal/models"
)

// Open подключается к postgres (по умолчанию) или mysql и проверяет соединение
func Open(cfg *config.Config) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	level := gormlogger.Warn
	if cfg.Server.Env == "development" {
		level = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  gormlogger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to GORM: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get *sql.DB from GORM: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database unavailable: %w", err)
	}
	return db, nil
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is empty")
	}
	switch strings.ToLower(driver) {
	case "", "postgres", "postgresql":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// Models - все таблицы схемы, в порядке зависимостей
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Agency{},
		&models.SubAccount{},
		&models.Subscription{},
		&models.PaymentTransaction{},
		&models.UsageRecord{},
		&models.Notification{},
		&models.Contact{},
		&models.ContactActivity{},
		&models.ContactNote{},
		&models.ContactTask{},
		&models.Pipeline{},
		&models.Opportunity{},
		&models.OpportunityActivity{},
		&models.Conversation{},
		&models.Message{},
		&models.Campaign{},
	}
}

// AutoMigrate выполняет миграцию всех моделей
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logger.Info("AutoMigrate completed", "tables", len(Models()))
	return nil
}
