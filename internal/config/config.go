package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "dev-secret-change-me"

type Config struct {
	Port                  string
	Env                   string
	LogLevel              string
	DatabaseDSN           string
	JWTSecret             string
	AccessTokenTTLMinutes int
	RefreshTokenTTLDays   int
	ChallengeTTLSeconds   int

	HistoryLimit int
	InviteTTL    time.Duration

	WSReadLimitBytes    int64
	WSMessagesPerSecond float64
	WSBurst             int
	CORSOrigins         []string
	MediaMaxBytes       int64
	S3                  S3Config
}

// S3Config 为空 Bucket 时图片上传关闭。
type S3Config struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

var defaults = map[string]any{
	"app_port":                 "8080",
	"app_env":                  "dev",
	"log_level":                "info",
	"database_dsn":             "host=localhost user=postgres password=postgres dbname=radiochat port=5432 sslmode=disable TimeZone=UTC",
	"jwt_secret":               defaultJWTSecret,
	"access_token_ttl_minutes": 15,
	"refresh_token_ttl_days":   7,
	"challenge_ttl_seconds":    120,
	"chat_history_limit":       50,
	"chat_invite_ttl":          "24h",
	"ws_read_limit_bytes":      1 << 20,
	"ws_messages_per_second":   10,
	"ws_burst":                 20,
	"media_max_bytes":          5 << 20,
	"s3_region":                "us-east-1",
}

// Load 读取配置：默认值 < CONFIG_FILE 指定的 yaml < 环境变量。
// 数值非法或不为正时回退到默认值。
func Load() Config {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.AutomaticEnv()
	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			log.Warn().Err(err).Str("file", file).Msg("config file not loaded, using env and defaults")
		}
	}

	return Config{
		Port:                  v.GetString("app_port"),
		Env:                   v.GetString("app_env"),
		LogLevel:              v.GetString("log_level"),
		DatabaseDSN:           v.GetString("database_dsn"),
		JWTSecret:             v.GetString("jwt_secret"),
		AccessTokenTTLMinutes: positiveInt(v, "access_token_ttl_minutes"),
		RefreshTokenTTLDays:   positiveInt(v, "refresh_token_ttl_days"),
		ChallengeTTLSeconds:   positiveInt(v, "challenge_ttl_seconds"),
		HistoryLimit:          positiveInt(v, "chat_history_limit"),
		InviteTTL:             duration(v, "chat_invite_ttl"),
		WSReadLimitBytes:      int64(positiveInt(v, "ws_read_limit_bytes")),
		WSMessagesPerSecond:   positiveFloat(v, "ws_messages_per_second"),
		WSBurst:               positiveInt(v, "ws_burst"),
		CORSOrigins:           splitList(v.GetString("cors_origins")),
		MediaMaxBytes:         int64(positiveInt(v, "media_max_bytes")),
		S3: S3Config{
			Bucket:        v.GetString("s3_bucket"),
			Region:        v.GetString("s3_region"),
			Endpoint:      v.GetString("s3_endpoint"),
			AccessKey:     v.GetString("s3_access_key"),
			SecretKey:     v.GetString("s3_secret_key"),
			PublicBaseURL: v.GetString("s3_public_base_url"),
		},
	}
}

func positiveInt(v *viper.Viper, key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v.GetString(key)))
	if err != nil || n <= 0 {
		return defaults[key].(int)
	}
	return n
}

func positiveFloat(v *viper.Viper, key string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v.GetString(key)), 64)
	if err != nil || f <= 0 {
		return float64(defaults[key].(int))
	}
	return f
}

func duration(v *viper.Viper, key string) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(v.GetString(key)))
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaults[key].(string))
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate 检查启动必需项；非 dev 环境不允许使用默认 JWT 密钥。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("APP_PORT is required")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required")
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if cfg.Env != "dev" && cfg.JWTSecret == defaultJWTSecret {
		return errors.New("JWT_SECRET must be changed outside dev")
	}
	return nil
}
