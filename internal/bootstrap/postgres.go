package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/ruokun-niu/drasi-server/internal/model"
)

func init() {
	Register("postgres", newPostgresProvider)
}

// PostgresProviderConfig is the postgres provider's configuration, read
// from the owning source's declarative properties.
type PostgresProviderConfig struct {
	DSN    string
	Tables []string // one or more "label:table" pairs, e.g. "Product:products"
}

// postgresProvider snapshots the configured tables inside one
// repeatable-read transaction, then reads the WAL LSN at that same
// transaction boundary as the coordination watermark (spec §4.3 table):
// live replication resumes only once it has passed this LSN.
type postgresProvider struct {
	cfg PostgresProviderConfig
}

func newPostgresProvider(properties map[string]any) (Provider, error) {
	var cfg PostgresProviderConfig
	if v, ok := properties["dsn"].(string); ok {
		cfg.DSN = v
	}
	switch v := properties["bootstrap_tables"].(type) {
	case []string:
		cfg.Tables = v
	case []any:
		for _, t := range v {
			if s, ok := t.(string); ok {
				cfg.Tables = append(cfg.Tables, s)
			}
		}
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres provider: dsn is required")
	}
	if len(cfg.Tables) == 0 {
		return nil, fmt.Errorf("postgres provider: bootstrap_tables is required")
	}
	return &postgresProvider{cfg: cfg}, nil
}

func (p *postgresProvider) Stream(ctx context.Context, req Request) (<-chan Insert, <-chan Result, <-chan error) {
	inserts := make(chan Insert)
	results := make(chan Result, 1)
	errs := make(chan error, 1)
	filter := toFilterSet(req.LabelFilter)

	go func() {
		defer close(inserts)
		defer close(results)
		defer close(errs)

		db, err := sqlx.ConnectContext(ctx, "postgres", p.cfg.DSN)
		if err != nil {
			errs <- fmt.Errorf("postgres provider: connect: %w", err)
			return
		}
		defer db.Close()

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			errs <- fmt.Errorf("postgres provider: begin tx: %w", err)
			return
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, "SET TRANSACTION ISOLATION LEVEL REPEATABLE READ, READ ONLY"); err != nil {
			errs <- fmt.Errorf("postgres provider: set isolation: %w", err)
			return
		}

		var lsn string
		if err := tx.GetContext(ctx, &lsn, "SELECT pg_current_wal_lsn()::text"); err != nil {
			errs <- fmt.Errorf("postgres provider: read lsn: %w", err)
			return
		}
		watermark := parseLSN(lsn)

		for _, tableSpec := range p.cfg.Tables {
			label, table, ok := splitTableSpec(tableSpec)
			if !ok {
				errs <- fmt.Errorf("postgres provider: malformed bootstrap_tables entry %q", tableSpec)
				return
			}
			if len(filter) > 0 && !filter[label] {
				continue
			}
			if err := streamTable(ctx, tx, label, table, inserts); err != nil {
				errs <- err
				return
			}
		}

		if err := tx.Commit(); err != nil {
			errs <- fmt.Errorf("postgres provider: commit: %w", err)
			return
		}
		results <- Result{Watermark: watermark, HasWatermark: true}
	}()

	return inserts, results, errs
}

func streamTable(ctx context.Context, tx *sqlx.Tx, label, table string, inserts chan<- Insert) error {
	rows, err := tx.QueryxContext(ctx, fmt.Sprintf("SELECT * FROM %s", table))
	if err != nil {
		return fmt.Errorf("postgres provider: query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		rec := make(map[string]any)
		if err := rows.MapScan(rec); err != nil {
			return fmt.Errorf("postgres provider: scan %s: %w", table, err)
		}
		id := fmt.Sprint(rec["id"])
		delete(rec, "id")
		el := model.Element{Kind: model.ElementNode, ID: id, Labels: []string{label}, Properties: rec}
		select {
		case inserts <- Insert{Element: el}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return rows.Err()
}

func splitTableSpec(spec string) (label, table string, ok bool) {
	for i := 0; i < len(spec); i++ {
		if spec[i] == ':' {
			return spec[:i], spec[i+1:], true
		}
	}
	return "", "", false
}

// parseLSN converts a Postgres LSN string ("16/B374D848") into a
// monotonically comparable int64 watermark.
func parseLSN(lsn string) int64 {
	var hi, lo uint32
	if _, err := fmt.Sscanf(lsn, "%X/%X", &hi, &lo); err != nil {
		return 0
	}
	return int64(hi)<<32 | int64(lo)
}
