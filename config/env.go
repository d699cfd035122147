package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ApplyEnv loads an optional .env file and applies TURNOVER_* overrides to Settings.
// A missing .env is not an error; scheduler environments usually inject variables directly.
func ApplyEnv(files ...string) {
	_ = godotenv.Load(files...)

	s := &Settings
	s.Debug = getEnvAsBool("TURNOVER_DEBUG", s.Debug)
	s.Instance = getEnv("TURNOVER_INSTANCE", s.Instance)
	s.Table.Path = getEnv("TURNOVER_TABLE_PATH", s.Table.Path)
	s.Scraper.Parallel = getEnvAsBool("TURNOVER_PARALLEL", s.Scraper.Parallel)
	s.Scraper.Threads = getEnvAsInt("TURNOVER_THREADS", s.Scraper.Threads)
	s.Scraper.Renderer = getEnv("TURNOVER_RENDERER", s.Scraper.Renderer)
	s.Scraper.ChromePath = getEnv("TURNOVER_CHROME_PATH", s.Scraper.ChromePath)
	s.Scraper.TestMode = getEnvAsBool("TURNOVER_TEST_MODE", s.Scraper.TestMode)
	s.Scraper.TestSymbols = getEnvAsSlice("TURNOVER_TEST_SYMBOLS", s.Scraper.TestSymbols, ",")
	s.Database.ConnectionString = getEnv("TURNOVER_DB_CONNECTION", s.Database.ConnectionString)
	s.Streaming.Redis.Password = getEnv("TURNOVER_REDIS_PASSWORD", s.Streaming.Redis.Password)
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := getEnv(key, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsSlice(key string, defaultVal []string, sep string) []string {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultVal
	}
	parts := strings.Split(valStr, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
