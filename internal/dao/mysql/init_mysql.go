// Package mysql 建立 MySQL 连接、自动迁移表结构并创建 Repository 层
package mysql

import (
	"fmt"
	"strings"
	"time"

	"roomchat_server/internal/config"
	"roomchat_server/internal/dao/mysql/repository"
	"roomchat_server/internal/model"

	"go.uber.org/zap"
	mysqldriver "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DSN 拼接连接串，parseTime 让 datetime 直接扫描成 time.Time
func DSN(cfg *config.MysqlConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DatabaseName)
}

// Init 按配置连接数据库并返回 Repository 聚合
func Init(cfg *config.MysqlConfig) (*repository.Repositories, error) {
	return Open(DSN(cfg))
}

// Open 使用给定 DSN 连接并迁移，集成测试直接调用它
func Open(dsn string) (*repository.Repositories, error) {
	db, err := gorm.Open(mysqldriver.Open(dsn), &gorm.Config{
		// 把驱动的 1062 等错误翻译成 gorm.ErrDuplicatedKey，幂等写入依赖它
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// AutoMigrate 只建表和补字段，不会删除已有字段或数据
	if err := db.AutoMigrate(
		&model.User{},
		&model.Room{},
		&model.RoomMember{},
		&model.Message{},
		&model.Reaction{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	zap.L().Info("mysql connected", zap.String("dsn_host", dsnHost(dsn)))
	return repository.NewRepositories(db), nil
}

// dsnHost 只取 @ 之后的部分写日志，避免泄露密码
func dsnHost(dsn string) string {
	if i := strings.LastIndex(dsn, "@"); i >= 0 {
		return dsn[i+1:]
	}
	return dsn
}
