// Package config 載入服務設定：預設值 → YAML 檔 → 命令列旗標
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Session struct {
		IdleTTL         time.Duration `yaml:"idle_ttl"`         // 從未有人入座的對局保留時間
		CleanupInterval time.Duration `yaml:"cleanup_interval"` // 回收掃描間隔
	} `yaml:"session"`

	WebSocket struct {
		PingPeriod     time.Duration `yaml:"ping_period"`
		PongWait       time.Duration `yaml:"pong_wait"`
		WriteWait      time.Duration `yaml:"write_wait"`
		SendBuffer     int           `yaml:"send_buffer"`
		MaxMessageSize int64         `yaml:"max_message_size"`
	} `yaml:"websocket"`

	Feed struct {
		Driver         string        `yaml:"driver"` // none / nats / redis
		SubjectPrefix  string        `yaml:"subject_prefix"`
		Buffer         int           `yaml:"buffer"`
		PublishTimeout time.Duration `yaml:"publish_timeout"`

		NATS struct {
			URL  string `yaml:"url"`
			Name string `yaml:"name"`
		} `yaml:"nats"`

		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"feed"`

	Archive struct {
		Driver       string        `yaml:"driver"` // none / memory / postgres
		Buffer       int           `yaml:"buffer"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"archive"`

	Postgres struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"`
		SSLMode  string `yaml:"sslmode"`
		MaxConns int32  `yaml:"max_conns"`
		MinConns int32  `yaml:"min_conns"`
	} `yaml:"postgres"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default 預設配置
func Default() *Config {
	cfg := &Config{}

	cfg.Server.Port = 3000
	cfg.Server.ReadTimeout = 10 * time.Second
	cfg.Server.WriteTimeout = 10 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Session.IdleTTL = 10 * time.Minute
	cfg.Session.CleanupInterval = time.Minute

	cfg.WebSocket.PingPeriod = 54 * time.Second
	cfg.WebSocket.PongWait = 60 * time.Second
	cfg.WebSocket.WriteWait = 10 * time.Second
	cfg.WebSocket.SendBuffer = 256
	cfg.WebSocket.MaxMessageSize = 4096

	cfg.Feed.Driver = "none"
	cfg.Feed.SubjectPrefix = "chess.sessions"
	cfg.Feed.Buffer = 1024
	cfg.Feed.PublishTimeout = 2 * time.Second
	cfg.Feed.NATS.URL = "nats://localhost:4222"
	cfg.Feed.NATS.Name = "chess-session"
	cfg.Feed.Redis.Addr = "localhost:6379"

	cfg.Archive.Driver = "memory"
	cfg.Archive.Buffer = 64
	cfg.Archive.WriteTimeout = 5 * time.Second

	cfg.Postgres.Host = "localhost"
	cfg.Postgres.Port = 5432
	cfg.Postgres.User = "postgres"
	cfg.Postgres.DBName = "chess"
	cfg.Postgres.SSLMode = "disable"
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 2

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"

	return cfg
}

// Load 讀取 YAML 設定檔並覆蓋預設值；path 為空時只回傳預設值
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	// #nosec G304 - path 來自啟動參數
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// Validate 檢查設定是否合理
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port 超出範圍: %d", c.Server.Port))
	}
	if c.Session.IdleTTL < 0 || c.Session.CleanupInterval < 0 {
		errs = append(errs, errors.New("session 的時間設定不能為負"))
	}
	if c.WebSocket.PingPeriod <= 0 || c.WebSocket.PongWait <= 0 {
		errs = append(errs, errors.New("websocket.ping_period 與 pong_wait 必須為正"))
	} else if c.WebSocket.PingPeriod >= c.WebSocket.PongWait {
		errs = append(errs, fmt.Errorf("websocket.ping_period (%s) 必須小於 pong_wait (%s)", c.WebSocket.PingPeriod, c.WebSocket.PongWait))
	}
	if c.WebSocket.SendBuffer <= 0 {
		errs = append(errs, errors.New("websocket.send_buffer 必須為正"))
	}

	switch c.Feed.Driver {
	case "", "none":
	case "nats":
		if c.Feed.NATS.URL == "" {
			errs = append(errs, errors.New("feed.nats.url 不能為空"))
		}
	case "redis":
		if c.Feed.Redis.Addr == "" {
			errs = append(errs, errors.New("feed.redis.addr 不能為空"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知的 feed.driver: %q", c.Feed.Driver))
	}

	switch c.Archive.Driver {
	case "", "none", "memory", "postgres":
	default:
		errs = append(errs, fmt.Errorf("未知的 archive.driver: %q", c.Archive.Driver))
	}

	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("未知的 log.format: %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// PostgresDSN 生成 PostgreSQL 連線字串（URL 格式，pgx 與 migrate 共用）
func (c *Config) PostgresDSN() string {
	// 支援環境變數覆蓋（生產環境常用）
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}

	sslmode := c.Postgres.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:     c.Postgres.Host + ":" + strconv.Itoa(c.Postgres.Port),
		Path:     "/" + c.Postgres.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(sslmode),
	}
	return u.String()
}
