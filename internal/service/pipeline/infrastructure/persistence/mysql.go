// internal/service/pipeline/infrastructure/persistence/mysql.go
package persistence

import (
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// MySQLConfig 是 MySQL 存储的连接参数
type MySQLConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	SlowThreshold   time.Duration `yaml:"slow_threshold"`
	LogSQL          bool          `yaml:"log_sql"`
}

// DSN 用驱动自带的 Config 构造连接串，日期列按 UTC 解析
func (c MySQLConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	port := c.Port
	if port == 0 {
		port = 3306
	}
	cfg.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// zerologWriter 把 GORM 的日志转发到全局 zerolog
type zerologWriter struct{}

func (zerologWriter) Printf(format string, args ...interface{}) {
	zlog.Debug().Str("component", "gorm").Msgf(format, args...)
}

// OpenMySQL 建立连接池
func OpenMySQL(c MySQLConfig) (*gorm.DB, error) {
	level := gormlogger.Warn
	if c.LogSQL {
		level = gormlogger.Info
	}
	slow := c.SlowThreshold
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	gl := gormlogger.New(zerologWriter{}, gormlogger.Config{
		SlowThreshold:             slow,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(gormmysql.Open(c.DSN()), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql db")
	}
	if c.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(c.MaxOpenConns)
	}
	if c.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(c.MaxIdleConns)
	}
	if c.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(c.ConnMaxLifetime)
	}
	return db, nil
}
