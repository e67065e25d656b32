package benchmark

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var ErrInvalidSuite = errors.New("invalid benchmark suite")

type BenchmarkSuiteInfo struct {
	Suite             string
	QuerySet          string
	Phases            []PhaseSpecification
	SessionProperties SessionProperties
}

func NewBenchmarkSuiteInfo(
	suite, querySet string,
	phases []PhaseSpecification,
	sessionProperties SessionProperties,
) BenchmarkSuiteInfo {
	return BenchmarkSuiteInfo{
		Suite:             suite,
		QuerySet:          querySet,
		Phases:            slices.Clone(phases),
		SessionProperties: sessionProperties,
	}
}

// BenchmarkSuite pairs a suite definition with the queries of its query set.
type BenchmarkSuite struct {
	Info    BenchmarkSuiteInfo
	Queries []BenchmarkQuery
}

func NewBenchmarkSuite(info BenchmarkSuiteInfo, queries []BenchmarkQuery) BenchmarkSuite {
	return BenchmarkSuite{Info: info, Queries: slices.Clone(queries)}
}

func (s *BenchmarkSuite) Query(name string) (BenchmarkQuery, bool) {
	idx := slices.IndexFunc(s.Queries, func(q BenchmarkQuery) bool { return q.Name == name })
	if idx < 0 {
		return BenchmarkQuery{}, false
	}
	return s.Queries[idx], true
}

// QueryMap indexes the suite queries by name.
func (s *BenchmarkSuite) QueryMap() map[string]BenchmarkQuery {
	m := make(map[string]BenchmarkQuery, len(s.Queries))
	for _, q := range s.Queries {
		m[q.Name] = q
	}
	return m
}

// Validate checks that query names are unique, that all queries belong to
// the suite query set and that every query referenced by a phase exists.
func (s *BenchmarkSuite) Validate() error {
	var problems []string

	if s.Info.Suite == "" {
		problems = append(problems, "suite name is missing")
	}

	seen := make(map[string]struct{}, len(s.Queries))
	for _, q := range s.Queries {
		if _, dup := seen[q.Name]; dup {
			problems = append(problems, fmt.Sprintf("duplicate query %s", q.Name))
		}
		seen[q.Name] = struct{}{}
		if q.QuerySet != s.Info.QuerySet {
			problems = append(problems, fmt.Sprintf("query %s belongs to query set %s, expected %s", q.Name, q.QuerySet, s.Info.QuerySet))
		}
	}

	phaseNames := make(map[string]struct{}, len(s.Info.Phases))
	for _, p := range s.Info.Phases {
		if _, dup := phaseNames[p.PhaseName()]; dup {
			problems = append(problems, fmt.Sprintf("duplicate phase %s", p.PhaseName()))
		}
		phaseNames[p.PhaseName()] = struct{}{}

		var missing []string
		for _, name := range p.QueryNames() {
			if _, ok := seen[name]; !ok {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			problems = append(problems, fmt.Sprintf("phase %s references unknown queries: %s", p.PhaseName(), strings.Join(missing, ", ")))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w %s: %s", ErrInvalidSuite, s.Info.Suite, strings.Join(problems, "; "))
	}
	return nil
}
