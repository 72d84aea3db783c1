package store

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/rs/zerolog"

	"rfidattend/internal/config"
)

func TestMigrateURL(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@db:5432/att?sslmode=disable": "pgx5://u:p@db:5432/att?sslmode=disable",
		"postgresql://db/att":                        "pgx5://db/att",
		"pgx5://db/att":                              "pgx5://db/att",
	}
	for in, want := range cases {
		if got := MigrateURL(in); got != want {
			t.Fatalf("MigrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIgnoreNoChange(t *testing.T) {
	if IgnoreNoChange(migrate.ErrNoChange) != nil {
		t.Fatal("ErrNoChange not ignored")
	}
	boom := errors.New("boom")
	if !errors.Is(IgnoreNoChange(boom), boom) {
		t.Fatal("other error swallowed")
	}
}

func TestNewDBRejectsEmptyURL(t *testing.T) {
	if _, err := NewDB(context.Background(), "", 0); err == nil {
		t.Fatal("expected error")
	}
}

func TestNilHandlesAreSafe(t *testing.T) {
	var db *DB
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
	var r *Redis
	if r.Healthy(context.Background()) {
		t.Fatal("nil redis reported healthy")
	}
}

func TestOpenBackend(t *testing.T) {
	ctx := context.Background()
	s, closeFn, err := OpenBackend(ctx, config.App{StoreBackend: config.BackendMemory}, zerolog.Nop())
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	defer closeFn()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	if _, _, err := OpenBackend(ctx, config.App{StoreBackend: "sqlite"}, zerolog.Nop()); err == nil {
		t.Fatal("unknown backend accepted")
	}
	if _, _, err := OpenBackend(ctx, config.App{StoreBackend: config.BackendPostgres}, zerolog.Nop()); err == nil {
		t.Fatal("postgres without url accepted")
	}
}
