// Package model 定义数据库实体模型
package model

import (
	"database/sql"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User 用户
// ID 一经创建不可变；Username 全局唯一且统一小写
type User struct {
	ID          string       `gorm:"column:id;primaryKey;type:varchar(64);comment:用户唯一id"`
	Username    string       `gorm:"column:username;uniqueIndex;type:varchar(32);not null;comment:用户名(小写)"`
	DisplayName string       `gorm:"column:display_name;type:varchar(64);comment:显示名"`
	Password    string       `gorm:"column:password;type:varchar(100);not null;default:'';comment:bcrypt 哈希"`
	LastSeenAt  sql.NullTime `gorm:"column:last_seen_at;type:datetime(3);comment:最近离线时间"`
	CreatedAt   time.Time    `gorm:"column:created_at;type:datetime(3)"`
	UpdatedAt   time.Time    `gorm:"column:updated_at;type:datetime(3)"`

	// RawPassword 明文密码，不落库，在 BeforeSave 中加密
	RawPassword string `gorm:"-" json:"-"`
}

func (User) TableName() string {
	return "user"
}

// BeforeSave 有明文密码时哈希后写入 Password
func (u *User) BeforeSave(tx *gorm.DB) error {
	return u.HashRawPassword()
}

// HashRawPassword 把 RawPassword 哈希到 Password 并清空明文
// 内存存储没有 gorm hook，直接调用它
func (u *User) HashRawPassword() error {
	if u.RawPassword == "" {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(u.RawPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	u.RawPassword = ""
	return nil
}

// CheckPassword 校验密码是否正确
func (u *User) CheckPassword(plaintext string) bool {
	if u.Password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(plaintext)) == nil
}

// Name 优先返回显示名
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
