package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string        `yaml:"env" env:"ENV" env-default:"local" env-description:"Environment" env-choices:"local,dev,prod"`
	ApiPort   int           `yaml:"api_port" env:"API_PORT" env-default:"8080"`
	ApiHost   string        `yaml:"api_host" env:"API_HOST" env-default:"localhost"`
	JwtSecret string        `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"kodbank-jwt-secret-2024"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"TOKEN_TTL" env-default:"24h"`
	StaticDir string        `yaml:"static_dir" env:"STATIC_DIR" env-default:"./web"`
	Postgres  `yaml:"postgres"`
}

type Postgres struct {
	Host string `yaml:"host" env:"PG_HOST" env-default:"localhost"`
	Port string `yaml:"port" env:"PG_PORT" env-default:"5432"`
	User string `yaml:"user" env:"PG_USER" env-default:"kodbank"`
	Pass string `yaml:"pass" env:"PG_PASS" env-default:"kodbank"`
	Db   string `yaml:"db" env:"PG_DB" env-default:"kodbank"`
}

func MustLoad() *Config {
	path := fetchConfigPath()

	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			panic("Failed to read config from environment: " + err.Error())
		}
		return &cfg
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file does not exist: " + path)
	}

	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("Failed to read config: " + err.Error())
	}

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	return res
}
