package simulation

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	whitespace = regexp.MustCompile(`\s+`)
	selectStmt = regexp.MustCompile(`^select (.+?) from ([a-z_]+)(?: where id = \$1)?(?: order by ([a-z_]+)( desc| asc)?)?(?: limit (\d+))?$`)
)

// normalize lower-cases the statement and collapses whitespace.
func normalize(sql string) string {
	s := strings.ToLower(strings.TrimSpace(sql))
	s = strings.TrimSuffix(s, ";")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

type result struct {
	columns []string
	rows    [][]any
}

func run(data map[string]table, sql string, args []any) (result, error) {
	q := normalize(sql)
	if q == "select 1" {
		return result{columns: []string{"?column?"}, rows: [][]any{{int64(1)}}}, nil
	}

	m := selectStmt.FindStringSubmatch(q)
	if m == nil {
		return result{}, fmt.Errorf("%w: %q", ErrUnsupportedQuery, q)
	}
	cols, name, orderBy, dir, limit := m[1], m[2], m[3], strings.TrimSpace(m[4]), m[5]

	t, ok := data[name]
	if !ok {
		return result{}, fmt.Errorf("%w: unknown table %q", ErrUnsupportedQuery, name)
	}

	rows := slices.Clone(t.rows)
	if strings.Contains(q, " where id = $1") {
		if len(args) != 1 {
			return result{}, fmt.Errorf("%w: expected 1 argument, got %d", ErrUnsupportedQuery, len(args))
		}
		id, err := toInt64(args[0])
		if err != nil {
			return result{}, err
		}
		rows = slices.DeleteFunc(rows, func(r []any) bool { return r[0].(int64) != id })
	}

	if orderBy != "" {
		idx := t.column(orderBy)
		if idx < 0 {
			return result{}, fmt.Errorf("%w: unknown column %q", ErrUnsupportedQuery, orderBy)
		}
		slices.SortStableFunc(rows, func(a, b []any) int {
			c := compare(a[idx], b[idx])
			if dir == "desc" {
				return -c
			}
			return c
		})
	}

	if limit != "" {
		n, _ := strconv.Atoi(limit)
		if n < len(rows) {
			rows = rows[:n]
		}
	}

	if cols == "count(*)" {
		return result{columns: []string{"count"}, rows: [][]any{{int64(len(rows))}}}, nil
	}
	return project(t, cols, rows)
}

func project(t table, cols string, rows [][]any) (result, error) {
	if cols == "*" {
		return result{columns: t.columns, rows: rows}, nil
	}

	names := strings.Split(cols, ",")
	idx := make([]int, len(names))
	for i, n := range names {
		names[i] = strings.TrimSpace(n)
		if idx[i] = t.column(names[i]); idx[i] < 0 {
			return result{}, fmt.Errorf("%w: unknown column %q", ErrUnsupportedQuery, names[i])
		}
	}

	out := make([][]any, len(rows))
	for r, row := range rows {
		out[r] = make([]any, len(idx))
		for c, i := range idx {
			out[r][c] = row[i]
		}
	}
	return result{columns: names, rows: out}, nil
}

func compare(a, b any) int {
	switch x := a.(type) {
	case int64:
		return cmp.Compare(x, b.(int64))
	case string:
		return strings.Compare(x, b.(string))
	case time.Time:
		return x.Compare(b.(time.Time))
	}
	return 0
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	}
	return 0, fmt.Errorf("%w: unsupported argument type %T", ErrUnsupportedQuery, v)
}
