// Package database 负责初始化关系型数据库与 Redis 连接。
package database

import (
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"wet-coach-go/internal/config"
	"wet-coach-go/internal/model"
	"wet-coach-go/pkg/log"
)

var DB *gorm.DB

// Open 按配置的驱动打开 gorm 连接，driver 取值 mysql 或 sqlite。
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.MySQL.DSN)
	case "sqlite", "":
		dialector = sqlite.Open(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.Driver == "mysql" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// SQLite 只允许单个写连接
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Init 打开数据库并设置全局 DB，失败时直接退出进程。
func Init(cfg config.DatabaseConfig) {
	db, err := Open(cfg)
	if err != nil {
		log.Fatal("failed to connect database", err)
	}
	DB = db
	log.Infof("Database connected successfully, driver: %s", cfg.Driver)
}

// AutoMigrate 创建或更新所有表结构。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.Message{},
		&model.FeedbackNote{},
		&model.NoteVote{},
	)
}
