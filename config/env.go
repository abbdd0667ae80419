package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"

	"github.com/HK-Transfield/hkt-aws-ai-idp-prototype/internal/models"
)

var envOnce sync.Once

// loadDotEnv loads .env from the working directory, then from the project root.
// Variables already set in the process environment win.
func loadDotEnv() {
	envOnce.Do(func() {
		_, filename, _, _ := runtime.Caller(0)
		rootDir := filepath.Dir(filepath.Dir(filename))

		for _, path := range []string{".env", filepath.Join(rootDir, ".env")} {
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := godotenv.Load(path); err != nil {
				log.Printf("Warning: failed to load %s: %v", path, err)
			}
			return
		}
	})
}

// getEnv returns the first non-empty variable among keys, or def.
func getEnv(def string, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := getEnv("", key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, invalid(key, err)
	}
	return n, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := getEnv("", key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, invalid(key, err)
	}
	return f, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v := getEnv("", key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, invalid(key, err)
	}
	return d, nil
}

func getEnvList(key string, def []string) []string {
	v := getEnv("", key)
	if v == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// requireEnv collects missing required variables; keys after the first are aliases.
type requireEnv struct {
	missing []string
}

func (r *requireEnv) get(keys ...string) string {
	v := getEnv("", keys...)
	if v == "" {
		r.missing = append(r.missing, keys[0])
	}
	return v
}

func (r *requireEnv) err() error {
	if len(r.missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: missing required environment variables: %s",
		models.ErrConfiguration, strings.Join(r.missing, ", "))
}

func invalid(key string, err error) error {
	return fmt.Errorf("%w: invalid value for %s: %v", models.ErrConfiguration, key, err)
}

// LogLevel returns LOG_LEVEL, defaulting to info.
func LogLevel() string {
	loadDotEnv()
	return getEnv("info", "LOG_LEVEL")
}
