package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("STORE_TIMEOUT", "")
	t.Setenv("QUEUE_BACKEND", "")

	cfg := Load()
	if cfg.StoreBackend != BackendPostgres {
		t.Fatalf("store backend = %q", cfg.StoreBackend)
	}
	if cfg.StoreTimeout != 3*time.Second {
		t.Fatalf("store timeout = %s", cfg.StoreTimeout)
	}
	if cfg.QueueBackend != BackendRedis {
		t.Fatalf("queue backend = %q", cfg.QueueBackend)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("SEED_ON_START", "true")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg := Load()
	if cfg.StoreBackend != BackendMemory {
		t.Fatalf("store backend = %q", cfg.StoreBackend)
	}
	if cfg.StoreTimeout != 750*time.Millisecond {
		t.Fatalf("store timeout = %s", cfg.StoreTimeout)
	}
	if cfg.RateLimitPerMin != 30 || !cfg.SeedOnStart {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	want := []string{"http://a.test", "http://b.test"}
	if !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("STORE_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_PER_MIN", "many")
	t.Setenv("SEED_ON_START", "maybe")

	cfg := Load()
	if cfg.StoreTimeout != 3*time.Second || cfg.RateLimitPerMin != 120 || cfg.SeedOnStart {
		t.Fatalf("fallbacks not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	base := App{
		StoreBackend:     BackendMemory,
		QueueBackend:     BackendMemory,
		RateLimitBackend: BackendMemory,
		StoreTimeout:     time.Second,
		Timezone:         "UTC",
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(a *App){
		"unknown store":        func(a *App) { a.StoreBackend = "mongo" },
		"firestore no project": func(a *App) { a.StoreBackend = BackendFirestore },
		"unknown queue":        func(a *App) { a.QueueBackend = "kafka" },
		"unknown limiter":      func(a *App) { a.RateLimitBackend = "etcd" },
		"zero timeout":         func(a *App) { a.StoreTimeout = 0 },
		"bad timezone":         func(a *App) { a.Timezone = "Mars/Olympus" },
		"prod default jwt key": func(a *App) {
			a.Env = "production"
			a.JWTSigningKey = devSigningKey
		},
		"prod empty jwt key": func(a *App) {
			a.Env = "prod"
			a.JWTSigningKey = ""
		},
	}
	prod := base
	prod.Env = "production"
	prod.JWTSigningKey = "a-real-secret"
	if err := prod.Validate(); err != nil {
		t.Fatalf("production config with a real key rejected: %v", err)
	}
	dev := base
	dev.JWTSigningKey = devSigningKey
	if err := dev.Validate(); err != nil {
		t.Fatalf("dev config with the default key rejected: %v", err)
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLocation(t *testing.T) {
	loc, err := App{Timezone: "Asia/Jakarta"}.Location()
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	if loc.String() != "Asia/Jakarta" {
		t.Fatalf("loc = %s", loc)
	}
	if loc, _ := (App{}).Location(); loc != time.Local {
		t.Fatalf("empty timezone should be local")
	}
}
