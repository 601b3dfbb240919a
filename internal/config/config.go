package config

import (
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	ServiceName string `env:"SERVICE_NAME" envDefault:"session-core"`

	Server    ServerConfig    `envPrefix:"SERVER_"`
	Auth      AuthConfig      `envPrefix:"AUTH_"`
	Admission AdmissionConfig `envPrefix:"ADMISSION_"`
	WS        WSConfig        `envPrefix:"WS_"`
	DB        DBConfig        `envPrefix:"POSTGRES_"`
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	Email     EmailConfig     `envPrefix:"EMAIL_"`
	Jaeger    JaegerConfig    `envPrefix:"JAEGER_"`
}

type ServerConfig struct {
	Mode     string `env:"MODE"      envDefault:"dev"`
	Scheme   string `env:"SCHEME"    envDefault:"http"`
	Domain   string `env:"DOMAIN"    envDefault:"localhost"`
	Port     int    `env:"PORT"      envDefault:"8080"`
	GRPCPort int    `env:"GRPC_PORT" envDefault:"50050"`

	// TrustedProxies lists the CIDRs or addresses whose forwarding headers
	// are believed. Empty means the peer address is always the client.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

type AuthConfig struct {
	JWT     JWTConfig     `envPrefix:"JWT_"`
	Captcha CaptchaConfig `envPrefix:"CAPTCHA_"`
}

type JWTConfig struct {
	Secret string `env:"SECRET,required,notEmpty"`
	Issuer string `env:"ISSUER" envDefault:"session-core"`
}

type CaptchaConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"false"`
	Secret  string `env:"SECRET"`
}

// AdmissionConfig holds the budgets of the admission gate. Every budget is a
// fixed window: Limit hits allowed per Window.
type AdmissionConfig struct {
	RequestLimit  int64         `env:"REQUEST_LIMIT"  envDefault:"10000"`
	RequestWindow time.Duration `env:"REQUEST_WINDOW" envDefault:"90s"`
	LoginLimit    int64         `env:"LOGIN_LIMIT"    envDefault:"5"`
	LoginWindow   time.Duration `env:"LOGIN_WINDOW"   envDefault:"60s"`
	VerifyLimit   int64         `env:"VERIFY_LIMIT"   envDefault:"5"`
	VerifyWindow  time.Duration `env:"VERIFY_WINDOW"  envDefault:"60s"`
	ConnectLimit  int64         `env:"CONNECT_LIMIT"  envDefault:"100"`
	ConnectWindow time.Duration `env:"CONNECT_WINDOW" envDefault:"60s"`
	ConnCap       int64         `env:"CONN_CAP"       envDefault:"50"`
	ConnSlotTTL   time.Duration `env:"CONN_SLOT_TTL"  envDefault:"24h"`
}

// WSConfig tunes persistent connections. FrameRate and FrameBurst bound the
// inbound frames of a single connection.
type WSConfig struct {
	OriginPatterns []string      `env:"ORIGIN_PATTERNS" envSeparator:","`
	FrameRate      float64       `env:"FRAME_RATE"      envDefault:"10"`
	FrameBurst     int           `env:"FRAME_BURST"     envDefault:"20"`
	ReadIdle       time.Duration `env:"READ_IDLE"       envDefault:"2m"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT"   envDefault:"10s"`
}

type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"app_owner"`
	Password string `env:"PASSWORD" envDefault:"app_password"`
	Database string `env:"DB"       envDefault:"app_db"`
}

type RedisConfig struct {
	Addr string `env:"ADDR" envDefault:"localhost:6379"`
	Pass string `env:"PASS"`
	DB   int    `env:"DB"   envDefault:"0"`
}

type EmailConfig struct {
	Server string `env:"SERVER" envDefault:"smtp.gmail.com"`
	Port   int    `env:"PORT"   envDefault:"587"`
	User   string `env:"USER"`
	Pass   string `env:"PASS"`
}

type JaegerConfig struct {
	Sampler struct {
		Type  string  `env:"SAMPLER_TYPE"  envDefault:"const"`
		Param float64 `env:"SAMPLER_PARAM" envDefault:"1"`
	}
	Reporter struct {
		LogSpans           bool   `env:"REPORTER_LOG_SPANS"  envDefault:"false"`
		LocalAgentHostPort string `env:"REPORTER_AGENT_ADDR" envDefault:"localhost:6831"`
	}
}

// MustLoad reads an optional dotenv file and then the process environment.
func MustLoad(path string) Config {
	if err := godotenv.Load(path); err != nil {
		zap.L().Debug("dotenv file not loaded", zap.String("path", path), zap.Error(err))
	}

	conf, err := Load()
	if err != nil {
		zap.L().Fatal("failed to parse config", zap.Error(err))
	}

	return conf
}

func Load() (Config, error) {
	conf := Config{}
	if err := env.Parse(&conf); err != nil {
		return Config{}, err
	}
	return conf, nil
}
