package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"rfidattend/internal/attendance"
	"rfidattend/internal/config"
)

// OpenBackend connects the attendance store selected by STORE_BACKEND. The
// returned close func releases the underlying client.
func OpenBackend(ctx context.Context, cfg config.App, log zerolog.Logger) (attendance.Store, func() error, error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := NewDB(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("backend", cfg.StoreBackend).Msg("store connected")
		return attendance.NewRepository(db.Client), db.Close, nil
	case config.BackendFirestore:
		client, err := NewFirestore(ctx, cfg.FirestoreProject, cfg.FirestoreCreds)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("backend", cfg.StoreBackend).Str("project", cfg.FirestoreProject).Msg("store connected")
		return attendance.NewFirestoreRepository(client), client.Close, nil
	case config.BackendMemory:
		log.Warn().Msg("using in-memory store, data is lost on restart")
		return attendance.NewMemoryStore(), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
