package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"ArticlesDB/internal/domain"
	"ArticlesDB/internal/ports"
)

// rowsPerInsert keeps each multi-row INSERT well below the 65535 bind-parameter limit.
const rowsPerInsert = 500

const schema = `
CREATE TABLE IF NOT EXISTS articles (
    position    INTEGER NOT NULL,
    url         TEXT PRIMARY KEY,
    domain      TEXT NOT NULL,
    title       TEXT NOT NULL,
    description TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS article_posts (
    article_url TEXT NOT NULL REFERENCES articles (url) ON DELETE CASCADE,
    position    INTEGER NOT NULL,
    post_id     TEXT NOT NULL,
    author_id   TEXT NOT NULL,
    created_at  TIMESTAMPTZ,
    body        TEXT NOT NULL DEFAULT '',
    retweets    INTEGER NOT NULL DEFAULT 0,
    quotes      INTEGER NOT NULL DEFAULT 0,
    likes       INTEGER NOT NULL DEFAULT 0,
    replies     INTEGER NOT NULL DEFAULT 0,
    followers   INTEGER NOT NULL DEFAULT 0,
    links       TEXT[] NOT NULL DEFAULT '{}',
    PRIMARY KEY (article_url, post_id)
);`

// PostgresWriter mirrors the run's snapshot into Postgres. Each write replaces the
// previous contents in one transaction; there is no history.
type PostgresWriter struct {
	db *sql.DB
	qb sq.StatementBuilderType
}

var _ ports.SnapshotWriter = (*PostgresWriter)(nil)

// Open connects to dsn using the lib/pq driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return db, nil
}

// NewPostgresWriter wires a sql.DB implementation.
func NewPostgresWriter(db *sql.DB) *PostgresWriter {
	return &PostgresWriter{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Name identifies the sink inside the registry.
func (w *PostgresWriter) Name() string {
	return "postgres"
}

// EnsureSchema creates the snapshot tables when missing.
func (w *PostgresWriter) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Write replaces the stored snapshot with articles.
func (w *PostgresWriter) Write(ctx context.Context, articles []domain.Article) error {
	if w.db == nil {
		return fmt.Errorf("postgres writer has no database")
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}

	if err := w.replace(ctx, tx, articles); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (w *PostgresWriter) replace(ctx context.Context, tx *sql.Tx, articles []domain.Article) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM article_posts`); err != nil {
		return fmt.Errorf("clear article posts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM articles`); err != nil {
		return fmt.Errorf("clear articles: %w", err)
	}

	for start := 0; start < len(articles); start += rowsPerInsert {
		end := min(start+rowsPerInsert, len(articles))

		insert := w.qb.Insert("articles").Columns("position", "url", "domain", "title", "description")
		for i := start; i < end; i++ {
			a := articles[i]
			insert = insert.Values(i, a.URL, a.Domain, a.Title, a.Description)
		}
		if err := execBuilder(ctx, tx, insert); err != nil {
			return fmt.Errorf("insert articles: %w", err)
		}
	}

	var (
		insert  sq.InsertBuilder
		pending int
	)
	flush := func() error {
		if pending == 0 {
			return nil
		}
		if err := execBuilder(ctx, tx, insert); err != nil {
			return fmt.Errorf("insert article posts: %w", err)
		}
		pending = 0
		return nil
	}

	for _, a := range articles {
		for pos, p := range a.Posts {
			if pending == 0 {
				insert = w.qb.Insert("article_posts").Columns(
					"article_url", "position", "post_id", "author_id", "created_at", "body",
					"retweets", "quotes", "likes", "replies", "followers", "links",
				)
			}
			var createdAt any
			if !p.CreatedAt.IsZero() {
				createdAt = p.CreatedAt
			}
			insert = insert.Values(
				a.URL, pos, p.ID, p.AuthorID, createdAt, p.Text,
				p.Metrics.Retweets, p.Metrics.Quotes, p.Metrics.Likes, p.Metrics.Replies, p.Metrics.Followers,
				pq.Array(nonNil(p.Links)),
			)
			pending++
			if pending == rowsPerInsert {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	return flush()
}

func execBuilder(ctx context.Context, tx *sql.Tx, b sq.InsertBuilder) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func nonNil(links []string) []string {
	if links == nil {
		return []string{}
	}
	return links
}
