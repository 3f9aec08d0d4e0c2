package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		AppName          string
		Debug            bool
		TestMode         bool
		SecretKey        string
		RollbarToken     string
		SendgridApiKey   string
		DefaultFromEmail mail.Address
		WorkDir          string

		Server        ServerConfig
		Database      DatabaseConfig
		Redis         RedisConfig
		Scheduler     SchedulerConfig
		Notifications NotificationsConfig
		LateFee       LateFeeConfig
	}

	ServerConfig struct {
		Host               string
		Address            string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// RedisConfig is optional: an empty Addr disables redis-backed features.
	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	SchedulerConfig struct {
		DueDateSpec string // cron expression
		LockTTL     time.Duration
	}

	NotificationsConfig struct {
		DefaultChannel  string
		MaxAttempts     int
		DispatchTimeout time.Duration
	}

	LateFeeConfig struct {
		Formula string // govaluate expression over days_overdue & amount
		Cap     int64  // 0: uncapped
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port))
}

// NewConfig loads config/.env.<env> (if present) then reads every setting from the environment,
// prefixed with the current ENV (eg. DEV_DATABASE_NAME).
func NewConfig() *Config {
	conf := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", env == "DEV" || env == "TEST")
	conf.SetDefault("testMode", env == "TEST")
	conf.SetDefault("build", "develop")
	conf.SetDefault("appName", "Sunrise Academy")
	conf.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("sendgridApiKey", "")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")

	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.debugHost", ":4000")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", 5432)
	conf.SetDefault("database.name", "schoolfees")
	conf.SetDefault("database.user", "schoolfees")
	conf.SetDefault("database.password", "schoolfees")
	conf.SetDefault("database.adminUser", "")
	conf.SetDefault("database.adminPassword", "")
	conf.SetDefault("database.disableTLS", true)

	conf.SetDefault("redis.addr", "")
	conf.SetDefault("redis.password", "")
	conf.SetDefault("redis.db", 0)

	conf.SetDefault("scheduler.dueDateSpec", "0 * * * *") // hourly
	conf.SetDefault("scheduler.lockTTL", 10*time.Minute)

	conf.SetDefault("notifications.defaultChannel", "EMAIL")
	conf.SetDefault("notifications.maxAttempts", 3)
	conf.SetDefault("notifications.dispatchTimeout", 30*time.Second)

	conf.SetDefault("lateFee.formula", "days_overdue * 50")
	conf.SetDefault("lateFee.cap", 0)

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	appName := conf.GetString("appName")
	return &Config{
		Env:              env,
		Build:            conf.GetString("build"),
		AppName:          appName,
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("testMode"),
		SecretKey:        conf.GetString("secretKey"),
		RollbarToken:     conf.GetString("rollbarToken"),
		SendgridApiKey:   conf.GetString("sendgridApiKey"),
		DefaultFromEmail: mail.Address{Name: appName, Address: conf.GetString("defaultFromEmail")},
		WorkDir:          workDir,
		Server: ServerConfig{
			Host:               conf.GetString("server.host"),
			Address:            conf.GetString("server.address"),
			DebugHost:          conf.GetString("server.debugHost"),
			ShutdownTimeout:    conf.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: conf.GetDuration("server.jwtExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetInt("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Addr:     conf.GetString("redis.addr"),
			Password: conf.GetString("redis.password"),
			DB:       conf.GetInt("redis.db"),
		},
		Scheduler: SchedulerConfig{
			DueDateSpec: conf.GetString("scheduler.dueDateSpec"),
			LockTTL:     conf.GetDuration("scheduler.lockTTL"),
		},
		Notifications: NotificationsConfig{
			DefaultChannel:  strings.ToUpper(conf.GetString("notifications.defaultChannel")),
			MaxAttempts:     conf.GetInt("notifications.maxAttempts"),
			DispatchTimeout: conf.GetDuration("notifications.dispatchTimeout"),
		},
		LateFee: LateFeeConfig{
			Formula: conf.GetString("lateFee.formula"),
			Cap:     conf.GetInt64("lateFee.cap"),
		},
	}
}

func (c *Config) String() string {
	return fmt.Sprintf("%s (%s) env=%s", c.AppName, c.Build, c.Env)
}
