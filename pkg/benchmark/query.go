// Package benchmark holds the value types describing benchmark suites: the
// queries of a query set, the phases a suite executes and the session
// properties applied while running them.
package benchmark

// BenchmarkQuery is a single named SQL statement of a query set.
type BenchmarkQuery struct {
	QuerySet string `json:"query_set"`
	Name     string `json:"name"`
	Query    string `json:"query"`
	Catalog  string `json:"catalog"`
	Schema   string `json:"schema"`
}

func NewBenchmarkQuery(querySet, name, query, catalog, schema string) BenchmarkQuery {
	return BenchmarkQuery{
		QuerySet: querySet,
		Name:     name,
		Query:    query,
		Catalog:  catalog,
		Schema:   schema,
	}
}
