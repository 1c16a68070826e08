// Package config 提供应用程序的配置加载和管理功能
// 使用 TOML 格式的配置文件，支持多路径查找，缺省字段由 applyDefaults 补齐
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// MainConfig 主配置，包含应用基本信息
type MainConfig struct {
	AppName     string `toml:"appName"`     // 应用名称
	Host        string `toml:"host"`        // 监听地址，如 "0.0.0.0"
	Port        int    `toml:"port"`        // 监听端口，如 8000
	Mode        string `toml:"mode"`        // dev | release
	TLSRedirect bool   `toml:"tlsRedirect"` // 是否把 HTTP 重定向到 HTTPS（由 Nginx 终结 TLS 时关闭）
	Locale      string `toml:"locale"`      // 参数校验提示语言：zh | en
}

// MysqlConfig MySQL 数据库连接配置
type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"` // 无密码留空
	Db       int    `toml:"db"`
}

// LogConfig 日志配置，使用 lumberjack 进行日志轮转
type LogConfig struct {
	LogPath    string `toml:"logPath"`    // 日志文件存储目录
	FileName   string `toml:"fileName"`   // 日志文件名
	MaxSize    int    `toml:"maxSize"`    // 单个日志文件最大大小（MB）
	MaxBackups int    `toml:"maxBackups"` // 保留旧日志文件的最大个数
	MaxAge     int    `toml:"maxAge"`     // 保留旧日志文件的最大天数
	Level      string `toml:"level"`      // debug, info, warn, error
}

// KafkaConfig Kafka 背板配置（backplaneMode = "kafka" 时生效）
type KafkaConfig struct {
	HostPort       string        `toml:"hostPort"`       // 如 "localhost:9092"
	BackplaneTopic string        `toml:"backplaneTopic"` // 房间广播主题
	Timeout        time.Duration `toml:"timeout"`        // 写超时（秒）
	// ConsumerGroup 本实例的消费组，每个实例必须不同；留空时取 roomchat-<主机名>-<端口>
	// 为什么：消费组名固定下来，重启后沿用同一个组，broker 上不会留下孤儿组
	ConsumerGroup string `toml:"consumerGroup"`
}

// JWTConfig JWT 认证配置
type JWTConfig struct {
	Secret             string `toml:"secret"`             // 签名密钥，建议 32 字符以上
	AccessTokenExpiry  int    `toml:"accessTokenExpiry"`  // Access Token 有效期（分钟）
	RefreshTokenExpiry int    `toml:"refreshTokenExpiry"` // Refresh Token 有效期（小时）
}

// SnowflakeConfig 雪花算法配置
type SnowflakeConfig struct {
	MachineID int64 `toml:"machineId"` // 0-1023，分布式部署时每台机器需唯一
}

// GatewayConfig 实时网关配置
type GatewayConfig struct {
	StoreMode           string `toml:"storeMode"`           // mysql | memory
	BackplaneMode       string `toml:"backplaneMode"`       // local | redis | kafka
	HistoryLimit        int    `toml:"historyLimit"`        // room:join 下发的历史条数
	FloodIntervalMs     int    `toml:"floodIntervalMs"`     // 同一连接两次 msg:send 的最小间隔
	SendQueueSize       int    `toml:"sendQueueSize"`       // 每个连接出站队列长度
	OverflowPolicy      string `toml:"overflowPolicy"`      // drop_oldest | disconnect
	PersistTimeoutSec   int    `toml:"persistTimeoutSec"`   // 单次持久化超时
	GroupTimeoutSec     int    `toml:"groupTimeoutSec"`     // 建群事务超时
	HandshakeTimeoutSec int    `toml:"handshakeTimeoutSec"` // 首帧 auth 等待时间
	PingIntervalSec     int    `toml:"pingIntervalSec"`
	PongWaitSec         int    `toml:"pongWaitSec"`
	WriteWaitSec        int    `toml:"writeWaitSec"`
	MaxFrameBytes       int64  `toml:"maxFrameBytes"`
	StrictRoomJoin      bool   `toml:"strictRoomJoin"` // true 时非成员 room:join 返回 forbidden
}

// CacheConfig 读缓存配置
type CacheConfig struct {
	Enabled       bool `toml:"enabled"`
	TTLSeconds    int  `toml:"ttlSeconds"`
	JitterPercent int  `toml:"jitterPercent"`
}

// RateLimitConfig 登录/注册接口限流
type RateLimitConfig struct {
	AuthRps   float64 `toml:"authRps"`
	AuthBurst int     `toml:"authBurst"`
}

// Config 应用程序总配置，聚合所有子配置
type Config struct {
	MainConfig      `toml:"mainConfig"`
	MysqlConfig     `toml:"mysqlConfig"`
	RedisConfig     `toml:"redisConfig"`
	LogConfig       `toml:"logConfig"`
	KafkaConfig     `toml:"kafkaConfig"`
	JWTConfig       `toml:"jwtConfig"`
	SnowflakeConfig `toml:"snowflakeConfig"`
	GatewayConfig   `toml:"gatewayConfig"`
	CacheConfig     `toml:"cacheConfig"`
	RateLimitConfig `toml:"rateLimitConfig"`
}

// 候选配置文件路径（优先加载本地配置）
var searchPaths = []string{
	"configs/config_local.toml",
	"configs/config.toml",
	"../../configs/config_local.toml",
	"../../configs/config.toml",
}

var (
	config     *Config
	configOnce sync.Once
)

// Load 从指定路径解码配置并补齐默认值
func Load(path string) (*Config, error) {
	c := new(Config)
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	c.applyDefaults()
	return c, nil
}

// LoadConfig 按 searchPaths 顺序加载，找到第一个可用的配置文件即停止
func LoadConfig() (*Config, error) {
	for _, path := range searchPaths {
		if c, err := Load(path); err == nil {
			return c, nil
		}
	}
	return nil, fmt.Errorf("could not find configuration file in any of the search paths")
}

// GetConfig 获取全局配置实例（单例模式）
// 找不到配置文件时使用默认值
func GetConfig() *Config {
	configOnce.Do(func() {
		c, err := LoadConfig()
		if err != nil {
			c = Default()
		}
		config = c
	})
	return config
}

// Default 返回全部取默认值的配置
func Default() *Config {
	c := new(Config)
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.AppName == "" {
		c.AppName = "roomchat"
	}
	if c.MainConfig.Host == "" {
		c.MainConfig.Host = "0.0.0.0"
	}
	if c.MainConfig.Port == 0 {
		c.MainConfig.Port = 8000
	}
	if c.Mode == "" {
		c.Mode = "dev"
	}
	if c.Locale == "" {
		c.Locale = "zh"
	}
	if c.MysqlConfig.Port == 0 {
		c.MysqlConfig.Port = 3306
	}
	if c.RedisConfig.Port == 0 {
		c.RedisConfig.Port = 6379
	}
	if c.LogPath == "" {
		c.LogPath = "./logs"
	}
	if c.BackplaneTopic == "" {
		c.BackplaneTopic = "roomchat_backplane"
	}
	if c.KafkaConfig.Timeout == 0 {
		c.KafkaConfig.Timeout = 5
	}
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = defaultConsumerGroup(c.MainConfig.Port)
	}
	if c.Secret == "" {
		c.Secret = "roomchat-dev-secret"
	}
	if c.AccessTokenExpiry == 0 {
		c.AccessTokenExpiry = 30
	}
	if c.RefreshTokenExpiry == 0 {
		c.RefreshTokenExpiry = 168
	}
	if c.MachineID == 0 {
		c.MachineID = 1
	}

	g := &c.GatewayConfig
	if g.StoreMode == "" {
		g.StoreMode = "mysql"
	}
	if g.BackplaneMode == "" {
		g.BackplaneMode = "local"
	}
	if g.HistoryLimit <= 0 {
		g.HistoryLimit = 40
	}
	if g.FloodIntervalMs <= 0 {
		g.FloodIntervalMs = 200
	}
	if g.SendQueueSize <= 0 {
		g.SendQueueSize = 256
	}
	if g.OverflowPolicy == "" {
		g.OverflowPolicy = "drop_oldest"
	}
	if g.PersistTimeoutSec <= 0 {
		g.PersistTimeoutSec = 10
	}
	if g.GroupTimeoutSec <= 0 {
		g.GroupTimeoutSec = 15
	}
	if g.HandshakeTimeoutSec <= 0 {
		g.HandshakeTimeoutSec = 5
	}
	if g.PingIntervalSec <= 0 {
		g.PingIntervalSec = 25
	}
	if g.PongWaitSec <= 0 {
		g.PongWaitSec = 60
	}
	if g.WriteWaitSec <= 0 {
		g.WriteWaitSec = 10
	}
	if g.MaxFrameBytes <= 0 {
		g.MaxFrameBytes = 64 << 10
	}

	if c.TTLSeconds <= 0 {
		c.TTLSeconds = 60
	}
	if c.JitterPercent <= 0 {
		c.JitterPercent = 20
	}
	if c.AuthRps <= 0 {
		c.AuthRps = 5
	}
	if c.AuthBurst <= 0 {
		c.AuthBurst = 10
	}
}

// defaultConsumerGroup 同一主机上的多个实例靠端口区分
func defaultConsumerGroup(port int) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("roomchat-%s-%d", host, port)
}

// 以下方法把秒/毫秒配置转换成 time.Duration，避免调用方重复换算

func (g GatewayConfig) FloodInterval() time.Duration {
	return time.Duration(g.FloodIntervalMs) * time.Millisecond
}

func (g GatewayConfig) PersistTimeout() time.Duration {
	return time.Duration(g.PersistTimeoutSec) * time.Second
}

func (g GatewayConfig) GroupTimeout() time.Duration {
	return time.Duration(g.GroupTimeoutSec) * time.Second
}

func (g GatewayConfig) HandshakeTimeout() time.Duration {
	return time.Duration(g.HandshakeTimeoutSec) * time.Second
}

func (g GatewayConfig) PingInterval() time.Duration {
	return time.Duration(g.PingIntervalSec) * time.Second
}

func (g GatewayConfig) PongWait() time.Duration {
	return time.Duration(g.PongWaitSec) * time.Second
}

func (g GatewayConfig) WriteWait() time.Duration {
	return time.Duration(g.WriteWaitSec) * time.Second
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}
