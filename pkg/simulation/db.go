package simulation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/weeklype/tenantrouter/pkg/environment"
	"github.com/weeklype/tenantrouter/pkg/tenant"
)

var (
	// ErrUnsupportedQuery is returned for statements outside the simulated set.
	ErrUnsupportedQuery = errors.New("simulation: unsupported query")
	// ErrProductionForbidden is returned when simulation is requested in production.
	ErrProductionForbidden = errors.New("simulation: not available in production")
)

// Simulator hands out simulated tenant databases.
type Simulator struct {
	mu  sync.Mutex
	dbs map[string]*DB
}

// New creates a simulator. It refuses to run in production.
func New(env environment.Environment) (*Simulator, error) {
	if env.IsProduction() {
		return nil, ErrProductionForbidden
	}
	return &Simulator{dbs: make(map[string]*DB)}, nil
}

// ForTenant returns the simulated database of slug.
func (s *Simulator) ForTenant(slug string) tenant.DB {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, ok := s.dbs[slug]
	if !ok {
		db = NewDB(slug)
		s.dbs[slug] = db
	}
	return db
}

// DB answers the recognized read queries from a fixed in-memory dataset.
type DB struct {
	slug string
	data map[string]table
}

// NewDB builds the dataset of slug.
func NewDB(slug string) *DB {
	return &DB{slug: slug, data: dataset(slug)}
}

// Slug returns the tenant the dataset belongs to.
func (d *DB) Slug() string { return d.slug }

// Query implements tenant.DB.
func (d *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := run(d.data, sql, args)
	if err != nil {
		return nil, err
	}
	return newRows(res), nil
}

// QueryRow implements tenant.DB.
func (d *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	rows, err := d.Query(ctx, sql, args...)
	return &row{rows: rows, err: err}
}

// Exec implements tenant.DB. The dataset is read-only, so only SELECT 1
// succeeds.
func (d *DB) Exec(ctx context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if err := ctx.Err(); err != nil {
		return pgconn.CommandTag{}, err
	}
	if normalize(sql) == "select 1" {
		return pgconn.NewCommandTag("SELECT 1"), nil
	}
	return pgconn.CommandTag{}, fmt.Errorf("%w: %q", ErrUnsupportedQuery, normalize(sql))
}

// Ping implements tenant.DB.
func (d *DB) Ping(ctx context.Context) error {
	return ctx.Err()
}

type rows struct {
	fields []pgconn.FieldDescription
	data   [][]any
	pos    int
	err    error
	closed bool
}

func newRows(res result) *rows {
	fields := make([]pgconn.FieldDescription, len(res.columns))
	for i, c := range res.columns {
		fields[i] = pgconn.FieldDescription{Name: c}
	}
	return &rows{fields: fields, data: res.rows, pos: -1}
}

func (r *rows) Close() { r.closed = true }

func (r *rows) Err() error { return r.err }

func (r *rows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("SELECT %d", len(r.data)))
}

func (r *rows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }

func (r *rows) Next() bool {
	if r.closed || r.err != nil {
		return false
	}
	r.pos++
	if r.pos >= len(r.data) {
		r.closed = true
		return false
	}
	return true
}

func (r *rows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.data) {
		return errors.New("simulation: scan called without a current row")
	}
	row := r.data[r.pos]
	if len(dest) != len(row) {
		r.err = fmt.Errorf("simulation: %d destinations for %d columns", len(dest), len(row))
		return r.err
	}
	for i, d := range dest {
		if err := assign(d, row[i]); err != nil {
			r.err = fmt.Errorf("simulation: column %q: %w", r.fields[i].Name, err)
			return r.err
		}
	}
	return nil
}

func (r *rows) Values() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.data) {
		return nil, errors.New("simulation: no current row")
	}
	return append([]any(nil), r.data[r.pos]...), nil
}

func (r *rows) RawValues() [][]byte {
	if r.pos < 0 || r.pos >= len(r.data) {
		return nil
	}
	raw := make([][]byte, len(r.data[r.pos]))
	for i, v := range r.data[r.pos] {
		raw[i] = []byte(fmt.Sprint(v))
	}
	return raw
}

func (r *rows) Conn() *pgx.Conn { return nil }

type row struct {
	rows pgx.Rows
	err  error
}

func (r *row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	defer r.rows.Close()
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return err
		}
		return pgx.ErrNoRows
	}
	return r.rows.Scan(dest...)
}

func assign(dest, v any) error {
	switch d := dest.(type) {
	case nil:
		return nil
	case *any:
		*d = v
		return nil
	case *string:
		if s, ok := v.(string); ok {
			*d = s
			return nil
		}
	case *int64:
		if n, ok := v.(int64); ok {
			*d = n
			return nil
		}
	case *int:
		if n, ok := v.(int64); ok {
			*d = int(n)
			return nil
		}
	case *int32:
		if n, ok := v.(int64); ok {
			*d = int32(n)
			return nil
		}
	case *time.Time:
		if t, ok := v.(time.Time); ok {
			*d = t
			return nil
		}
	}

	rv := reflect.ValueOf(dest)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		src := reflect.ValueOf(v)
		// Named types over the same kind, e.g. a string-backed enum.
		if src.Kind() == rv.Elem().Kind() && src.Type().ConvertibleTo(rv.Elem().Type()) {
			rv.Elem().Set(src.Convert(rv.Elem().Type()))
			return nil
		}
	}
	return fmt.Errorf("cannot scan %T into %T", v, dest)
}
