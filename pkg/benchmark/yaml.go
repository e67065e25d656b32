package benchmark

import (
	"fmt"
	"io"

	"github.com/goccy/go-yaml"
)

type suiteDoc struct {
	Suite             string            `yaml:"suite"`
	QuerySet          string            `yaml:"query_set"`
	SessionProperties map[string]string `yaml:"session_properties,omitempty"`
	Phases            []phaseDoc        `yaml:"phases"`
	Queries           []queryDoc        `yaml:"queries"`
}

type queryDoc struct {
	Name    string `yaml:"name"`
	Catalog string `yaml:"catalog"`
	Schema  string `yaml:"schema"`
	Query   string `yaml:"query"`
}

// DecodeSuiteYAML reads a suite document. Queries inherit the document query
// set.
func DecodeSuiteYAML(r io.Reader) (suite BenchmarkSuite, err error) {
	var doc suiteDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return suite, fmt.Errorf("decode suite document: %w", err)
	}

	phases, err := fromPhaseDocs(doc.Phases)
	if err != nil {
		return suite, fmt.Errorf("suite %s: %w", doc.Suite, err)
	}

	queries := make([]BenchmarkQuery, len(doc.Queries))
	for i, q := range doc.Queries {
		queries[i] = NewBenchmarkQuery(doc.QuerySet, q.Name, q.Query, q.Catalog, q.Schema)
	}

	info := NewBenchmarkSuiteInfo(doc.Suite, doc.QuerySet, phases, NewSessionProperties(doc.SessionProperties))
	return NewBenchmarkSuite(info, queries), nil
}

func EncodeSuiteYAML(w io.Writer, suite BenchmarkSuite) error {
	phases, err := toPhaseDocs(suite.Info.Phases)
	if err != nil {
		return err
	}

	doc := suiteDoc{
		Suite:    suite.Info.Suite,
		QuerySet: suite.Info.QuerySet,
		Phases:   phases,
		Queries:  make([]queryDoc, len(suite.Queries)),
	}
	if suite.Info.SessionProperties.Len() > 0 {
		doc.SessionProperties = suite.Info.SessionProperties.Map()
	}
	for i, q := range suite.Queries {
		doc.Queries[i] = queryDoc{Name: q.Name, Catalog: q.Catalog, Schema: q.Schema, Query: q.Query}
	}

	return yaml.NewEncoder(w).Encode(doc)
}
