// Package config reads the service configuration from environment
// variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Env             string
	Port            string
	MaxParticipants int
	RoomIDMaxLen    int
	CORSAllow       string

	// Execution proxy settings. The proxy runs even without a key;
	// requests then fail with a configuration error, matching the
	// original service.
	RapidAPIKey  string
	RapidAPIHost string
	RedisAddr    string
}

// Load builds the config from the environment, applying defaults and
// validating the numeric knobs.
func Load() (*Config, error) {
	maxParticipants, err := getEnvInt("MAX_PARTICIPANTS", 4)
	if err != nil {
		return nil, err
	}
	roomIDMaxLen, err := getEnvInt("ROOM_ID_MAX_LEN", 128)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Env:             getEnvOrDefault("APP_ENV", "dev"),
		Port:            getEnvOrDefault("PORT", "8080"),
		MaxParticipants: maxParticipants,
		RoomIDMaxLen:    roomIDMaxLen,
		CORSAllow:       getEnvOrDefault("CORS_ALLOW", "https://cocreatepizza.vercel.app,http://localhost:5173"),
		RapidAPIKey:     os.Getenv("RAPIDAPI_KEY"),
		RapidAPIHost:    getEnvOrDefault("RAPIDAPI_HOST", "judge0-ce.p.rapidapi.com"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
	}
	if cfg.MaxParticipants < 1 {
		return nil, errors.New("MAX_PARTICIPANTS must be at least 1")
	}
	if cfg.RoomIDMaxLen < 1 {
		return nil, errors.New("ROOM_ID_MAX_LEN must be at least 1")
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, value)
	}
	return n, nil
}
