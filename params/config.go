package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type API struct {
	Listen         string
	AllowedOrigins []string
}

type Clearing struct {
	// Interval between automatic matching passes. Zero disables the
	// scheduler; clearing then runs only via POST /clearing/run.
	Interval time.Duration
}

type Storage struct {
	DataDir string
}

type Demo struct {
	// Seed lists the sample instruments and funds the sample traders at
	// startup. Meant for development; off in production.
	Seed bool
}

type Config struct {
	API      API
	Clearing Clearing
	Storage  Storage
	Demo     Demo
}

func Default() Config {
	return Config{
		API: API{
			Listen:         ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Clearing: Clearing{Interval: 5 * time.Second},
		Storage:  Storage{DataDir: "data"},
		Demo:     Demo{Seed: false},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if listen := os.Getenv("API_LISTEN"); listen != "" {
		cfg.API.Listen = listen
	}
	if origins := os.Getenv("API_ALLOWED_ORIGINS"); origins != "" {
		cfg.API.AllowedOrigins = strings.Split(origins, ",")
	}
	if interval := os.Getenv("CLEARING_INTERVAL_MS"); interval != "" {
		if ms, err := strconv.Atoi(interval); err == nil && ms >= 0 {
			cfg.Clearing.Interval = time.Duration(ms) * time.Millisecond
		}
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if seed := os.Getenv("DEMO_SEED"); seed != "" {
		cfg.Demo.Seed = seed == "true"
	}

	return cfg
}
