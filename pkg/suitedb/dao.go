package suitedb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"benchsuite/pkg/benchmark"
)

var ErrSuiteNotFound = errors.New("benchmark suite not found")

const (
	DefaultSuitesTable  = "benchmark_suites"
	DefaultQueriesTable = "benchmark_queries"
)

type Tables struct {
	Suites  string `json:"suites" yaml:"suites"`
	Queries string `json:"queries" yaml:"queries"`
}

var DefaultTables = Tables{Suites: DefaultSuitesTable, Queries: DefaultQueriesTable}

// WithDefaults fills unset table names.
func (t Tables) WithDefaults() Tables {
	if t.Suites == "" {
		t.Suites = DefaultSuitesTable
	}
	if t.Queries == "" {
		t.Queries = DefaultQueriesTable
	}
	return t
}

// Queryer is implemented by *sql.DB, *sql.Conn and *sql.Tx.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dao reads and writes benchmark suite definitions. It owns the table schema.
type Dao struct {
	db      Queryer
	dialect Dialect
}

func NewDao(db Queryer, dialect Dialect) *Dao {
	return &Dao{db: db, dialect: dialect}
}

func (d *Dao) Dialect() Dialect { return d.dialect }
func (d *Dao) DB() Queryer      { return d.db }

// WithDB returns a Dao using the same dialect on another handle, e.g. a
// transaction.
func (d *Dao) WithDB(db Queryer) *Dao {
	return &Dao{db: db, dialect: d.dialect}
}

// Exec runs a raw statement. Errors are returned as reported by the driver.
func (d *Dao) Exec(ctx context.Context, query string, args ...any) error {
	_, err := d.db.ExecContext(ctx, query, args...)
	return err
}

func (d *Dao) CreateBenchmarkSuitesTable(ctx context.Context, table string) error {
	return d.Exec(ctx, d.suitesTableDDL(table, false))
}

func (d *Dao) CreateBenchmarkQueriesTable(ctx context.Context, table string) error {
	return d.Exec(ctx, d.queriesTableDDL(table, false))
}

// EnsureTables creates the tables unless they exist already.
func (d *Dao) EnsureTables(ctx context.Context, tables Tables) error {
	tables = tables.WithDefaults()
	if err := d.Exec(ctx, d.suitesTableDDL(tables.Suites, true)); err != nil {
		return fmt.Errorf("create table %s: %w", tables.Suites, err)
	}
	if err := d.Exec(ctx, d.queriesTableDDL(tables.Queries, true)); err != nil {
		return fmt.Errorf("create table %s: %w", tables.Queries, err)
	}
	return nil
}

func (d *Dao) DropTables(ctx context.Context, tables Tables) error {
	tables = tables.WithDefaults()
	for _, table := range []string{tables.Suites, tables.Queries} {
		if err := d.Exec(ctx, "DROP TABLE IF EXISTS "+d.dialect.Quote(table)); err != nil {
			return fmt.Errorf("drop table %s: %w", table, err)
		}
	}
	return nil
}

func (d *Dao) createTable(table string, ifNotExists bool) string {
	stmt := "CREATE TABLE "
	if ifNotExists {
		stmt += "IF NOT EXISTS "
	}
	return stmt + d.dialect.Quote(table)
}

func (d *Dao) suitesTableDDL(table string, ifNotExists bool) string {
	q, dl := d.dialect.Quote, d.dialect
	return fmt.Sprintf(`%s (
    %s %s,
    %s %s NOT NULL,
    %s %s NOT NULL,
    %s %s NOT NULL,
    %s %s,
    %s %s NOT NULL,
    %s %s,
    UNIQUE (%s)
)`,
		d.createTable(table, ifNotExists),
		q("id"), dl.autoID,
		q("suite"), dl.stringType,
		q("query_set"), dl.stringType,
		q("phases"), dl.textType,
		q("session_properties"), dl.textType,
		q("created_by"), dl.stringType,
		q("updated_at"), dl.timestamp,
		q("suite"),
	)
}

func (d *Dao) queriesTableDDL(table string, ifNotExists bool) string {
	q, dl := d.dialect.Quote, d.dialect
	return fmt.Sprintf(`%s (
    %s %s,
    %s %s NOT NULL,
    %s %s NOT NULL,
    %s %s NOT NULL,
    %s %s NOT NULL,
    %s %s NOT NULL,
    UNIQUE (%s, %s)
)`,
		d.createTable(table, ifNotExists),
		q("id"), dl.autoID,
		q("query_set"), dl.stringType,
		q("name"), dl.stringType,
		q("catalog"), dl.stringType,
		q("schema"), dl.stringType,
		q("query"), dl.textType,
		q("query_set"), q("name"),
	)
}

// Fixed binds a column to a constant value instead of a parameter.
type Fixed struct {
	Column string
	Value  string
}

// InsertStatement builds a single row parameterized insert. Parameters are
// numbered in column order; fixed columns follow as string literals.
func (d *Dao) InsertStatement(table string, columns []string, fixed ...Fixed) string {
	cols := make([]string, 0, len(columns)+len(fixed))
	values := make([]string, 0, len(columns)+len(fixed))
	for i, c := range columns {
		cols = append(cols, d.dialect.Quote(c))
		values = append(values, d.dialect.Placeholder(i+1))
	}
	for _, f := range fixed {
		cols = append(cols, d.dialect.Quote(f.Column))
		values = append(values, d.dialect.StringLiteral(f.Value))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.dialect.Quote(table), strings.Join(cols, ", "), strings.Join(values, ", "))
}

func (d *Dao) InsertBenchmarkSuite(ctx context.Context, table string, info benchmark.BenchmarkSuiteInfo, createdBy string) error {
	phases, err := benchmark.MarshalPhases(info.Phases)
	if err != nil {
		return err
	}
	props, err := info.SessionProperties.MarshalJSON()
	if err != nil {
		return err
	}

	stmt := d.InsertStatement(table,
		[]string{"suite", "query_set", "phases", "session_properties", "created_by"})
	return d.Exec(ctx, stmt, info.Suite, info.QuerySet, string(phases), string(props), createdBy)
}

func (d *Dao) InsertBenchmarkQuery(ctx context.Context, table string, query benchmark.BenchmarkQuery) error {
	stmt := d.InsertStatement(table,
		[]string{"query_set", "name", "catalog", "schema", "query"})
	return d.Exec(ctx, stmt, query.QuerySet, query.Name, query.Catalog, query.Schema, query.Query)
}

func (d *Dao) GetBenchmarkSuiteInfo(ctx context.Context, table, suite string) (info benchmark.BenchmarkSuiteInfo, err error) {
	q := d.dialect.Quote
	stmt := fmt.Sprintf("SELECT %s, %s, %s, %s FROM %s WHERE %s = %s",
		q("suite"), q("query_set"), q("phases"), q("session_properties"),
		q(table), q("suite"), d.dialect.Placeholder(1))

	var (
		name, querySet string
		phasesRaw      string
		propsRaw       sql.NullString
	)
	err = d.db.QueryRowContext(ctx, stmt, suite).Scan(&name, &querySet, &phasesRaw, &propsRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return info, fmt.Errorf("%w: %s", ErrSuiteNotFound, suite)
	}
	if err != nil {
		return info, fmt.Errorf("read suite %s: %w", suite, err)
	}

	phases, err := benchmark.UnmarshalPhases([]byte(phasesRaw))
	if err != nil {
		return info, fmt.Errorf("suite %s: %w", suite, err)
	}
	props, err := benchmark.UnmarshalSessionProperties([]byte(propsRaw.String))
	if err != nil {
		return info, fmt.Errorf("suite %s: decode session properties: %w", suite, err)
	}

	return benchmark.NewBenchmarkSuiteInfo(name, querySet, phases, props), nil
}

func (d *Dao) GetBenchmarkQueries(ctx context.Context, table, querySet string) ([]benchmark.BenchmarkQuery, error) {
	q := d.dialect.Quote
	stmt := fmt.Sprintf("SELECT %s, %s, %s, %s, %s FROM %s WHERE %s = %s ORDER BY %s",
		q("query_set"), q("name"), q("catalog"), q("schema"), q("query"),
		q(table), q("query_set"), d.dialect.Placeholder(1), q("name"))

	rows, err := d.db.QueryContext(ctx, stmt, querySet)
	if err != nil {
		return nil, fmt.Errorf("read queries of %s: %w", querySet, err)
	}
	defer rows.Close()

	var queries []benchmark.BenchmarkQuery
	for rows.Next() {
		var bq benchmark.BenchmarkQuery
		if err := rows.Scan(&bq.QuerySet, &bq.Name, &bq.Catalog, &bq.Schema, &bq.Query); err != nil {
			return nil, err
		}
		queries = append(queries, bq)
	}
	return queries, rows.Err()
}

func (d *Dao) ListSuites(ctx context.Context, table string) ([]string, error) {
	q := d.dialect.Quote
	rows, err := d.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", q("suite"), q(table), q("suite")))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var suites []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		suites = append(suites, name)
	}
	return suites, rows.Err()
}
