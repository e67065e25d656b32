package suiterun

import (
	"context"
	"errors"

	"benchsuite/api/benchdriverapi"
	"benchsuite/pkg/benchmark"
	"benchsuite/pkg/suitedb"
)

// Describe loads the suite named by req from the store without running it.
// Unknown suites are reported as not found.
func (f *Factory) Describe(ctx context.Context, req benchdriverapi.BenchmarkSuiteConfig) (desc benchdriverapi.SuiteDescription, err error) {
	if req.Suite == "" {
		return desc, benchdriverapi.ErrorBadRequest(errors.New("suite name is required"))
	}

	bench, err := f.open(tablesFromAPI(&req))
	if err != nil {
		return desc, err
	}
	defer bench.Close()

	suite, err := bench.Load(ctx, req.Suite)
	switch {
	case errors.Is(err, suitedb.ErrSuiteNotFound):
		return desc, benchdriverapi.ErrorNotFound(err)
	case err != nil:
		return desc, err
	}
	return describeSuite(&suite), nil
}

func describeSuite(suite *benchmark.BenchmarkSuite) benchdriverapi.SuiteDescription {
	desc := benchdriverapi.SuiteDescription{
		Suite:    suite.Info.Suite,
		QuerySet: suite.Info.QuerySet,
		Phases:   make([]benchdriverapi.PhaseDescription, 0, len(suite.Info.Phases)),
		Queries:  make([]string, 0, len(suite.Queries)),
	}
	if suite.Info.SessionProperties.Len() > 0 {
		desc.SessionProperties = suite.Info.SessionProperties.Map()
	}
	for _, p := range suite.Info.Phases {
		desc.Phases = append(desc.Phases, benchdriverapi.PhaseDescription{
			Name:     p.PhaseName(),
			Strategy: string(p.ExecutionStrategy()),
			Queries:  p.QueryNames(),
		})
	}
	for _, q := range suite.Queries {
		desc.Queries = append(desc.Queries, q.Name)
	}
	return desc
}
