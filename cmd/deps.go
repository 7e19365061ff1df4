package main

import (
	"context"

	"github.com/uptrace/bun"

	"mammo-rag/internal/chromemdb"
	"mammo-rag/internal/config"
	"mammo-rag/internal/db"
	"mammo-rag/internal/rag"
)

func chromemOptions(cfg *config.Config) chromemdb.Options {
	return chromemdb.Options{
		Path:          cfg.RAG.IndexDir,
		Collection:    cfg.RAG.Collection,
		Compress:      cfg.RAG.Compress,
		EncryptionKey: cfg.RAG.EncryptionKey,
	}
}

// newIndex returns an empty index ready to be built.
func newIndex(cfg *config.Config) (rag.VectorIndex, func() error, error) {
	switch cfg.RAG.Backend {
	case config.BackendPostgres:
		bunDB, err := connect(cfg)
		if err != nil {
			return nil, nil, err
		}
		return db.NewStore(bunDB, cfg.Database.Table), bunDB.Close, nil
	default:
		index, err := chromemdb.NewVectorDBManager(chromemOptions(cfg))
		if err != nil {
			return nil, nil, err
		}
		return index, noop, nil
	}
}

// openIndex loads a previously built index.
func openIndex(ctx context.Context, cfg *config.Config) (rag.VectorIndex, func() error, error) {
	switch cfg.RAG.Backend {
	case config.BackendPostgres:
		bunDB, err := connect(cfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := db.Open(ctx, bunDB, cfg.Database.Table)
		if err != nil {
			_ = bunDB.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		index, err := chromemdb.Load(chromemOptions(cfg))
		if err != nil {
			return nil, nil, err
		}
		return index, noop, nil
	}
}

func connect(cfg *config.Config) (*bun.DB, error) {
	sqldb, err := db.ConnectDB(&cfg.Database)
	if err != nil {
		return nil, err
	}
	return db.NewDB(sqldb, cfg.Database.Debug), nil
}

func noop() error { return nil }
