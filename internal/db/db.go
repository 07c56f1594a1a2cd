package db

import (
	"strings"
	"time"

	"radiochat/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Attempts 是启动时连接数据库的最大重试次数。
var Attempts = 10

// Connect 负责建立数据库连接，并带有简单的重试来等待容器就绪。
// DSN 以 "sqlite:" 开头时使用 sqlite（本地开发与测试），否则使用 Postgres。
func Connect(dsn string) (*gorm.DB, error) {
	var gdb *gorm.DB
	var err error
	for i := 0; i < Attempts; i++ {
		gdb, err = open(dsn)
		if err == nil {
			sqlDB, err2 := gdb.DB()
			if err2 == nil {
				err2 = sqlDB.Ping()
			}
			if err2 == nil {
				if isSQLite(dsn) {
					// sqlite 只允许单写者，单连接避免 "database is locked"。
					sqlDB.SetMaxOpenConns(1)
				} else {
					sqlDB.SetMaxIdleConns(5)
					sqlDB.SetMaxOpenConns(20)
					sqlDB.SetConnMaxLifetime(time.Hour)
				}
				return gdb, nil
			}
			err = err2
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("db connect retry")
		if i+1 < Attempts {
			time.Sleep(time.Duration(500+i*200) * time.Millisecond)
		}
	}
	return nil, err
}

func open(dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true}
	if isSQLite(dsn) {
		return gorm.Open(sqlite.Open(strings.TrimPrefix(dsn, "sqlite:")), cfg)
	}
	return gorm.Open(postgres.Open(dsn), cfg)
}

func isSQLite(dsn string) bool { return strings.HasPrefix(dsn, "sqlite:") }

// Migrate 自动迁移全部表结构。
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&models.AuthChallenge{},
		&models.RefreshToken{},
		&models.Room{},
		&models.RoomMember{},
		&models.RoomInvite{},
		&models.Message{},
	)
}
