package repository

import (
	"context"
	"database/sql"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/pagetalk/pkg/model"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS agents (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	system_prompt     TEXT NOT NULL,
	temperature       REAL NOT NULL,
	max_output_tokens INTEGER NOT NULL,
	top_p             REAL NOT NULL,
	position          INTEGER NOT NULL
);
`

const (
	keyAPIKey      = "api_key"
	keyModel       = "model"
	keyActiveAgent = "active_agent"
)

// SQLite is a Repository backed by a local sqlite database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and initializes if needed) the database at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database", goerr.V("path", path))
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "failed to initialize schema")
	}

	return &SQLite{db: db}, nil
}

func (r *SQLite) getValue(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", goerr.Wrap(err, "failed to read setting", goerr.V("key", key))
	}
	return value, nil
}

func (r *SQLite) putValue(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return goerr.Wrap(err, "failed to write setting", goerr.V("key", key))
	}
	return nil
}

func (r *SQLite) GetSettings(ctx context.Context) (*model.Settings, error) {
	apiKey, err := r.getValue(ctx, keyAPIKey)
	if err != nil {
		return nil, err
	}
	modelName, err := r.getValue(ctx, keyModel)
	if err != nil {
		return nil, err
	}
	return &model.Settings{APIKey: apiKey, Model: modelName}, nil
}

func (r *SQLite) PutSettings(ctx context.Context, settings *model.Settings) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := r.putValue(ctx, tx, keyAPIKey, settings.APIKey); err != nil {
		return err
	}
	if err := r.putValue(ctx, tx, keyModel, settings.Model); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit settings")
	}
	return nil
}

func (r *SQLite) ListAgents(ctx context.Context) ([]*model.Agent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, system_prompt, temperature, max_output_tokens, top_p
		 FROM agents ORDER BY position`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list agents")
	}
	defer rows.Close()

	var agents []*model.Agent
	for rows.Next() {
		var a model.Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.SystemPrompt, &a.Temperature, &a.MaxOutputTokens, &a.TopP); err != nil {
			return nil, goerr.Wrap(err, "failed to scan agent row")
		}
		agents = append(agents, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate agent rows")
	}

	return agents, nil
}

func (r *SQLite) SaveAgents(ctx context.Context, agents []*model.Agent, activeID model.AgentID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM agents`); err != nil {
		return goerr.Wrap(err, "failed to clear agents")
	}

	for i, a := range agents {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO agents (id, name, system_prompt, temperature, max_output_tokens, top_p, position)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.Name, a.SystemPrompt, a.Temperature, a.MaxOutputTokens, a.TopP, i)
		if err != nil {
			return goerr.Wrap(err, "failed to insert agent", goerr.V("agent_id", a.ID))
		}
	}

	if err := r.putValue(ctx, tx, keyActiveAgent, string(activeID)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit agents")
	}
	return nil
}

func (r *SQLite) ActiveAgentID(ctx context.Context) (model.AgentID, error) {
	value, err := r.getValue(ctx, keyActiveAgent)
	if err != nil {
		return "", err
	}
	return model.AgentID(value), nil
}

func (r *SQLite) Close() error {
	if err := r.db.Close(); err != nil {
		return goerr.Wrap(err, "failed to close database")
	}
	return nil
}
