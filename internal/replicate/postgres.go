package replicate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dueskeeper/dueskeeper/internal/dbx"
	"github.com/dueskeeper/dueskeeper/internal/migrations"
	"github.com/dueskeeper/dueskeeper/internal/state"
)

// Postgres replicates the full document as a single keyed row in the
// app_state table: no projection, no field filtering. One row per configured
// state id.
type Postgres struct {
	db      *sql.DB
	stateID string
}

// NewPostgres returns a relational backend writing to db under stateID.
func NewPostgres(db *sql.DB, stateID string) *Postgres {
	return &Postgres{db: db, stateID: stateID}
}

// OpenPostgres opens a pgx/stdlib connection for the given DSN.
func OpenPostgres(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	return db, nil
}

// RunMigrations sets up goose with the embedded migrations and runs them,
// creating the app_state table if it does not exist yet.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (p *Postgres) Name() string { return "postgres" }

// Write upserts the whole document under the state id.
func (p *Postgres) Write(ctx context.Context, doc *state.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	query :=
		`INSERT INTO app_state (id, data, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
		 `

	if _, err := p.db.ExecContext(ctx, query, p.stateID, data); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Load reads the stored document. found is false when no row exists yet.
func (p *Postgres) Load(ctx context.Context) (doc *state.Document, found bool, err error) {
	query :=
		`SELECT data FROM app_state
		 WHERE id = $1
		 `

	var data []byte
	err = p.db.QueryRowContext(ctx, query, p.stateID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("db error: %w", err)
	}

	doc = &state.Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, false, fmt.Errorf("decode state row: %w", err)
	}
	doc.Normalize()
	return doc, true, nil
}

// Bootstrap resolves the boot-time handshake in one transaction: when a row
// exists its content is returned as authoritative; otherwise seed is inserted
// and returned. The row is locked for the duration so two booting processes
// cannot both seed.
func (p *Postgres) Bootstrap(ctx context.Context, seed *state.Document) (doc *state.Document, found bool, err error) {
	err = dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var data []byte
		scanErr := tx.QueryRowContext(ctx,
			`SELECT data FROM app_state WHERE id = $1 FOR UPDATE`, p.stateID).Scan(&data)

		if errors.Is(scanErr, sql.ErrNoRows) {
			encoded, encErr := json.Marshal(seed)
			if encErr != nil {
				return fmt.Errorf("encode seed: %w", encErr)
			}
			_, execErr := tx.ExecContext(ctx,
				`INSERT INTO app_state (id, data, updated_at) VALUES ($1, $2, now())`,
				p.stateID, encoded)
			if execErr != nil {
				return fmt.Errorf("db error: %w", execErr)
			}
			doc = seed
			return nil
		}
		if scanErr != nil {
			return fmt.Errorf("db error: %w", scanErr)
		}

		stored := &state.Document{}
		if decErr := json.Unmarshal(data, stored); decErr != nil {
			return fmt.Errorf("decode state row: %w", decErr)
		}
		stored.Normalize()
		doc = stored
		found = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return doc, found, nil
}
