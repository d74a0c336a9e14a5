package supabase

import (
	"fmt"
	"net/url"
)

// Filter is a conjunction of PostgREST equality conditions. The zero
// value matches every row.
type Filter struct {
	conds []cond
}

type cond struct {
	column string
	value  string
}

// Eq returns a filter matching rows where column equals value.
func Eq(column string, value any) Filter {
	return Filter{}.Eq(column, value)
}

// Eq adds column = value to the filter.
func (f Filter) Eq(column string, value any) Filter {
	conds := make([]cond, len(f.conds), len(f.conds)+1)
	copy(conds, f.conds)
	f.conds = append(conds, cond{column: column, value: fmt.Sprint(value)})
	return f
}

// Empty reports whether the filter has no conditions.
func (f Filter) Empty() bool {
	return len(f.conds) == 0
}

// Values renders the filter as query parameters (column=eq.value).
func (f Filter) Values() url.Values {
	q := url.Values{}
	for _, c := range f.conds {
		q.Add(c.column, "eq."+c.value)
	}
	return q
}

// String renders the filter for logs.
func (f Filter) String() string {
	return f.Values().Encode()
}
