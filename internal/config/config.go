package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env              string                  `env:"ENV,default=local"`
	Logger           LoggerConfig            `env:",prefix=LOGGER_"`
	Observability    ObservabilityHTTPConfig `env:",prefix=OBSERVABILITY_"`
	API              APIHTTPConfig           `env:",prefix=API_"`
	ShutdownDuration time.Duration           `env:"SHUTDOWN_DURATION,default=30s"`
	DB               SQLiteConfig            `env:",prefix=DB_"`
	PayHere          PayHereConfig           `env:",prefix=PAYHERE_"`
	Telegram         TelegramConfig          `env:",prefix=TELEGRAM_"`
	Recurring        RecurringConfig         `env:",prefix=RECURRING_"`
}

type PayHereConfig struct {
	MerchantID     string        `env:"MERCHANT_ID,required"`
	MerchantSecret string        `env:"MERCHANT_SECRET,required"`
	BaseURL        string        `env:"BASE_URL,default=https://sandbox.payhere.lk"`
	Timeout        time.Duration `env:"TIMEOUT,default=30s"`
	RateLimit      struct {
		Burst int     `env:"BURST,default=1"`
		RPS   float64 `env:"RPS,default=10.0"`
	} `env:",prefix=RATE_LIMIT_"`
}

type TelegramConfig struct {
	BotToken     string  `env:"BOT_TOKEN"`
	AlertChatIDs []int64 `env:"ALERT_CHAT_IDS"`
}

type RecurringConfig struct {
	ChargeInterval time.Duration `env:"CHARGE_INTERVAL,default=5m"`
	MaxFailures    int           `env:"MAX_FAILURES,default=5"`
}

type LoggerConfig struct {
	Level string `env:"LEVEL,default=debug"`
}

type APIHTTPConfig struct {
	Host         string        `env:"HOST,default=0.0.0.0"`
	Port         uint16        `env:"PORT,default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT,default=1m"`
}

func (a APIHTTPConfig) ADDR() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type ObservabilityHTTPConfig struct {
	Host         string        `env:"HOST,default=127.0.0.1"`
	Port         uint16        `env:"PORT,default=8383"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT,default=1m"`
}

func (a ObservabilityHTTPConfig) ADDR() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type SQLiteConfig struct {
	Path         string        `env:"PATH,default=./data/gymbill.db"`
	MaxOpenConns int           `env:"MAX_OPEN_CONNS,default=25"`
	MaxIdleConns int           `env:"MAX_IDLE_CONNS,default=5"`
	MaxLifetime  time.Duration `env:"MAX_LIFETIME,default=5m"`
}
