package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.MaxParticipants != 4 {
		t.Fatalf("expected default capacity 4, got %d", cfg.MaxParticipants)
	}
	if cfg.RoomIDMaxLen != 128 {
		t.Fatalf("expected default room id length 128, got %d", cfg.RoomIDMaxLen)
	}
	if cfg.RapidAPIHost != "judge0-ce.p.rapidapi.com" {
		t.Fatalf("unexpected default host: %s", cfg.RapidAPIHost)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("MAX_PARTICIPANTS", "2")
	t.Setenv("APP_ENV", "prod")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9000" || cfg.MaxParticipants != 2 || cfg.Env != "prod" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("redis addr not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalidCapacity(t *testing.T) {
	t.Setenv("MAX_PARTICIPANTS", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for zero capacity")
	}
}

func TestLoadRejectsUnparsableInt(t *testing.T) {
	t.Setenv("MAX_PARTICIPANTS", "lots")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for non-integer capacity")
	}
	t.Setenv("MAX_PARTICIPANTS", "4")
	t.Setenv("ROOM_ID_MAX_LEN", "long")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for non-integer room id length")
	}
}
