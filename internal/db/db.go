package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"mammo-rag/internal/config"
	"mammo-rag/internal/models"
)

const undefinedTable = "42P01"

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`

	ID             int64             `bun:"id,pk,autoincrement"`
	Seq            int               `bun:"seq,notnull"`
	ChunkID        string            `bun:"chunk_id,notnull"`
	Content        string            `bun:"content,notnull"`
	SourceFilename string            `bun:"source_filename"`
	ChunkIndex     int               `bun:"chunk_index"`
	ChunkStart     int               `bun:"chunk_start"`
	Metadata       map[string]string `bun:"metadata,type:jsonb"`
	Embedding      pgvector.Vector   `bun:"embedding,notnull,type:vector"`
	Similarity     float32           `bun:"similarity,scanonly"`
}

// Store is a pgvector-backed vector index. Rows are durable as soon as Build
// returns.
type Store struct {
	db    *bun.DB
	table string
	count int
}

func NewDB(sqldb *sql.DB, debug bool) *bun.DB {
	db := bun.NewDB(sqldb, pgdialect.New())
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

// ConnectDB opens a connection pool with the configured driver.
func ConnectDB(cfg *config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "pq":
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, models.Wrap(models.ErrConfig, "open postgres", err)
		}
		return sqldb, nil
	case "pgdriver", "":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	default:
		return nil, models.Errorf(models.ErrConfig, "unknown database driver %q", cfg.Driver)
	}
}

// NewStore wraps db. The table is created by Build.
func NewStore(db *bun.DB, table string) *Store {
	if table == "" {
		table = "documents"
	}
	return &Store{db: db, table: table}
}

// Open connects to an existing, populated table.
func Open(ctx context.Context, db *bun.DB, table string) (*Store, error) {
	s := NewStore(db, table)
	n, err := s.query().Count(ctx)
	if err != nil {
		if isUndefinedTable(err) {
			return nil, models.Errorf(models.ErrNotFound, "vector table %s does not exist", s.table)
		}
		return nil, models.Wrap(models.ErrService, "count vector table", err)
	}
	if n == 0 {
		return nil, models.Errorf(models.ErrNotFound, "vector table %s is empty", s.table)
	}
	s.count = n
	log.Info().Str("table", s.table).Int("entries", n).Msg("Vector table opened")
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// InitDB enables pgvector and recreates the table.
func (s *Store) InitDB(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return models.Wrap(models.ErrService, "create vector extension", err)
	}
	if _, err := s.db.NewDropTable().Table(s.table).IfExists().Exec(ctx); err != nil {
		return models.Wrap(models.ErrService, "drop vector table", err)
	}
	if _, err := s.db.NewCreateTable().Model((*Document)(nil)).ModelTableExpr(s.table).Exec(ctx); err != nil {
		return models.Wrap(models.ErrService, "create vector table", err)
	}
	s.count = 0
	return nil
}

// Build replaces the table contents with entries.
func (s *Store) Build(ctx context.Context, entries []models.IndexEntry) error {
	if len(entries) == 0 {
		return models.Errorf(models.ErrValidation, "no documents provided to build the vector index")
	}
	if err := s.InitDB(ctx); err != nil {
		return err
	}

	docs := make([]Document, len(entries))
	for i, e := range entries {
		if len(e.Embedding) == 0 {
			return models.Errorf(models.ErrValidation, "entry %d has no embedding", i)
		}
		docs[i] = Document{
			Seq:            i,
			ChunkID:        e.Chunk.ID,
			Content:        e.Chunk.Content,
			SourceFilename: e.Chunk.Source,
			ChunkIndex:     e.Chunk.Index,
			ChunkStart:     e.Chunk.Start,
			Metadata:       e.Chunk.Metadata,
			Embedding:      pgvector.NewVector(e.Embedding),
		}
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&docs).ModelTableExpr(s.table).Exec(ctx)
		return err
	})
	if err != nil {
		return models.Wrap(models.ErrService, "store documents", err)
	}
	s.count = len(docs)
	log.Info().Int("entries", len(docs)).Str("table", s.table).Msg("Vector table built")
	return nil
}

// Persist is a no-op; inserted rows are already durable.
func (s *Store) Persist(_ context.Context) error { return nil }

// Search orders by cosine distance, then insertion sequence.
func (s *Store) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	if err := models.CheckQuery(query); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []models.SearchResult{}, nil
	}

	vec := pgvector.NewVector(query)
	var docs []Document
	err := s.query().
		ColumnExpr("d.*").
		ColumnExpr("1 - (d.embedding <=> ?) AS similarity", vec).
		OrderExpr("d.embedding <=> ? ASC", vec).
		OrderExpr("d.seq ASC").
		Limit(k).
		Scan(ctx, &docs)
	if err != nil {
		return nil, models.Wrap(models.ErrService, "search documents", err)
	}

	results := make([]models.SearchResult, len(docs))
	for i, d := range docs {
		results[i] = models.SearchResult{
			Chunk: models.Chunk{
				ID:       d.ChunkID,
				Source:   d.SourceFilename,
				Content:  d.Content,
				Index:    d.ChunkIndex,
				Start:    d.ChunkStart,
				Metadata: d.Metadata,
			},
			Similarity: d.Similarity,
		}
	}
	return results, nil
}

func (s *Store) Count() int {
	return s.count
}

func (s *Store) query() *bun.SelectQuery {
	return s.db.NewSelect().Model((*Document)(nil)).ModelTableExpr(fmt.Sprintf("%s AS d", s.table))
}

func isUndefinedTable(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == undefinedTable
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == undefinedTable
	}
	return false
}
