package fedsync

import (
	"cmp"
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/disaster-recon/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockKey is the advisory lock held while the sink schema changes.
const migrationLockKey int64 = 0x46454d41

const ledgerDDL = `
CREATE SCHEMA IF NOT EXISTS fed_data;
CREATE TABLE IF NOT EXISTS fed_data.schema_migrations (
    version    INTEGER     PRIMARY KEY,
    name       TEXT        NOT NULL,
    checksum   TEXT        NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

var migrationName = regexp.MustCompile(`^(\d{3})_[a-z0-9_]+\.sql$`)

// Migration is one embedded sink schema change.
type Migration struct {
	Version  int
	Name     string
	Checksum string
	SQL      string
}

// LoadMigrations returns the embedded migrations in version order.
func LoadMigrations() ([]Migration, error) {
	return loadMigrations(migrationFS, "migrations")
}

func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, eris.Wrap(err, "fedsync: read migrations")
	}

	byVersion := make(map[int]string, len(entries))
	out := make([]Migration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationName.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, eris.Errorf("fedsync: migration %s is not named NNN_description.sql", e.Name())
		}
		version, _ := strconv.Atoi(m[1])
		if prev, dup := byVersion[version]; dup {
			return nil, eris.Errorf("fedsync: migrations %s and %s share version %d", prev, e.Name(), version)
		}
		byVersion[version] = e.Name()

		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, eris.Wrapf(err, "fedsync: read migration %s", e.Name())
		}
		sum := sha256.Sum256(data)
		out = append(out, Migration{
			Version:  version,
			Name:     e.Name(),
			Checksum: hex.EncodeToString(sum[:]),
			SQL:      string(data),
		})
	}
	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

// Migrate brings the sink schema up to date and returns the names of the
// migrations it applied. An applied migration whose file has since changed
// stops the run.
func Migrate(ctx context.Context, pool db.Pool) ([]string, error) {
	migrations, err := LoadMigrations()
	if err != nil {
		return nil, err
	}
	return applyMigrations(ctx, pool, migrations)
}

func applyMigrations(ctx context.Context, pool db.Pool, migrations []Migration) ([]string, error) {
	log := zap.L().With(zap.String("component", "fedsync.migrate"))

	if _, err := pool.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return nil, eris.Wrap(err, "fedsync: acquire migration lock")
	}
	defer func() {
		if _, err := pool.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockKey); err != nil {
			log.Warn("fedsync: release migration lock", zap.Error(err))
		}
	}()

	if _, err := pool.Exec(ctx, ledgerDDL); err != nil {
		return nil, eris.Wrap(err, "fedsync: ensure migration ledger")
	}
	applied, err := appliedChecksums(ctx, pool)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, m := range migrations {
		if sum, ok := applied[m.Version]; ok {
			if sum != m.Checksum {
				return ran, eris.Errorf("fedsync: migration %s changed after it was applied", m.Name)
			}
			continue
		}
		if err := applyMigration(ctx, pool, m); err != nil {
			return ran, err
		}
		log.Info("migration applied", zap.Int("version", m.Version), zap.String("file", m.Name))
		ran = append(ran, m.Name)
	}

	if len(ran) == 0 {
		log.Info("sink schema up to date", zap.Int("migrations", len(migrations)))
	}
	return ran, nil
}

// applyMigration runs m and records it in one transaction.
func applyMigration(ctx context.Context, pool db.Pool, m Migration) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "fedsync: begin migration %s", m.Name)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return eris.Wrapf(err, "fedsync: apply migration %s", m.Name)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO fed_data.schema_migrations (version, name, checksum) VALUES ($1, $2, $3)`,
		m.Version, m.Name, m.Checksum,
	); err != nil {
		return eris.Wrapf(err, "fedsync: record migration %s", m.Name)
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "fedsync: commit migration %s", m.Name)
	}
	return nil
}

// appliedChecksums maps each recorded migration version to its checksum.
func appliedChecksums(ctx context.Context, pool db.Pool) (map[int]string, error) {
	rows, err := pool.Query(ctx, "SELECT version, checksum FROM fed_data.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "fedsync: query migration ledger")
	}
	defer rows.Close()

	applied := make(map[int]string)
	for rows.Next() {
		var (
			version  int
			checksum string
		)
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, eris.Wrap(err, "fedsync: scan migration ledger")
		}
		applied[version] = checksum
	}
	return applied, rows.Err()
}
