// Package config loads the service configuration from a YAML file with
// environment variable overrides.
package config

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string     `yaml:"env" env:"APP_ENV" env-default:"local"`
	HTTPServer HTTPServer `yaml:"http_server"`
	Docstore   Docstore   `yaml:"docstore"`
	Redis      Redis      `yaml:"redis"`
	Kafka      Kafka      `yaml:"kafka"`
	JWT        JWT        `yaml:"jwt"`
	Stock      Stock      `yaml:"stock"`
	UPI        UPI        `yaml:"upi"`
	Pincodes   Pincodes   `yaml:"pincodes"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"5s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// Docstore selects the document database backend. "memory" needs no
// further settings; "postgres" and "dynamo" read their own sections.
type Docstore struct {
	Backend  string   `yaml:"backend" env-default:"memory"`
	Postgres Postgres `yaml:"postgres"`
	Dynamo   Dynamo   `yaml:"dynamo"`
}

type Postgres struct {
	DSN string `yaml:"-" env:"POSTGRES_DSN"`
}

type Dynamo struct {
	Table    string `yaml:"table" env-default:"agriatoo-documents"`
	Region   string `yaml:"region" env:"AWS_REGION" env-default:"ap-south-1"`
	Endpoint string `yaml:"endpoint" env:"DYNAMO_ENDPOINT"`
}

type Redis struct {
	Enabled  bool   `yaml:"enabled" env-default:"false"`
	Address  string `yaml:"address" env-default:"localhost:6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env-default:"0"`
}

type Kafka struct {
	Enabled bool     `yaml:"enabled" env-default:"false"`
	Brokers []string `yaml:"brokers" env-default:"localhost:9092"`
	Topic   string   `yaml:"topic" env-default:"stock-changes"`
	GroupID string   `yaml:"group_id" env-default:"agriatoo-core"`
}

type JWT struct {
	Secret        string        `yaml:"-" env:"JWT_SECRET" env-required:"true"`
	AccessExpiry  time.Duration `yaml:"access_expiry" env-default:"15m"`
	RefreshExpiry time.Duration `yaml:"refresh_expiry" env-default:"168h"`
}

type Stock struct {
	LowStockThreshold        int  `yaml:"low_stock_threshold" env-default:"5"`
	AssumeInStockWhenUnknown bool `yaml:"assume_in_stock_when_unknown" env-default:"true"`
}

type UPI struct {
	PayeeAddress string `yaml:"payee_address" env:"UPI_PAYEE_ADDRESS" env-required:"true"`
	PayeeName    string `yaml:"payee_name" env-default:"Agriatoo"`
}

// Pincodes configures the serviceable-pincode reference. When Static is
// non-empty the list is used directly; otherwise the docstore collection
// is consulted.
type Pincodes struct {
	Static     []string `yaml:"static"`
	Collection string   `yaml:"collection" env-default:"serviceablePincodes"`
}

// MustLoad reads the config from the path given by the -config flag or
// CONFIG_PATH. With neither set, configuration comes from the environment
// alone.
func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		var cfg Config
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			log.Fatalf("can't read config from environment: %v", err)
		}
		return &cfg
	}
	return MustLoadByPath(configPath)
}

func fetchConfigPath() string {
	var path string

	flag.StringVar(&path, "config", "", "path to config file")
	flag.Parse()

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	return path
}

func MustLoadByPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file not found: " + configPath)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("can't read config file %s: %v", configPath, err)
	}

	return &cfg
}
