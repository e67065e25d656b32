package benchmark

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

type ExecutionStrategy string

const (
	StrategyStream     ExecutionStrategy = "STREAM"
	StrategyConcurrent ExecutionStrategy = "CONCURRENT"
)

// PhaseSpecification is one stage of a suite run. The set of implementations
// is closed: StreamExecutionPhase and ConcurrentExecutionPhase.
type PhaseSpecification interface {
	PhaseName() string
	ExecutionStrategy() ExecutionStrategy

	// QueryNames returns every query referenced by the phase, in first
	// reference order and without duplicates.
	QueryNames() []string

	isPhaseSpecification()
}

// StreamExecutionPhase runs each stream as an ordered list of queries.
type StreamExecutionPhase struct {
	Name    string
	Streams [][]string
}

func NewStreamExecutionPhase(name string, streams [][]string) StreamExecutionPhase {
	cp := make([][]string, len(streams))
	for i, s := range streams {
		cp[i] = slices.Clone(s)
	}
	return StreamExecutionPhase{Name: name, Streams: cp}
}

func (p StreamExecutionPhase) PhaseName() string                    { return p.Name }
func (p StreamExecutionPhase) ExecutionStrategy() ExecutionStrategy { return StrategyStream }
func (StreamExecutionPhase) isPhaseSpecification()                  {}

func (p StreamExecutionPhase) QueryNames() []string {
	var names []string
	for _, s := range p.Streams {
		names = appendUnique(names, s...)
	}
	return names
}

// ConcurrentExecutionPhase runs a set of queries without ordering guarantees.
// Queries is kept deduplicated and sorted, so two phases over the same set
// compare equal.
type ConcurrentExecutionPhase struct {
	Name    string
	Queries []string
}

func NewConcurrentExecutionPhase(name string, queries []string) ConcurrentExecutionPhase {
	set := slices.Clone(queries)
	slices.Sort(set)
	return ConcurrentExecutionPhase{Name: name, Queries: slices.Compact(set)}
}

func (p ConcurrentExecutionPhase) PhaseName() string                    { return p.Name }
func (p ConcurrentExecutionPhase) ExecutionStrategy() ExecutionStrategy { return StrategyConcurrent }
func (ConcurrentExecutionPhase) isPhaseSpecification()                  {}

func (p ConcurrentExecutionPhase) QueryNames() []string {
	return slices.Clone(p.Queries)
}

func appendUnique(dst []string, names ...string) []string {
	for _, n := range names {
		if !slices.Contains(dst, n) {
			dst = append(dst, n)
		}
	}
	return dst
}

// phaseDoc is the serialized form shared by the JSON column payload and the
// YAML suite documents.
type phaseDoc struct {
	Name              string            `json:"name" yaml:"name"`
	ExecutionStrategy ExecutionStrategy `json:"executionStrategy" yaml:"execution_strategy"`
	Streams           [][]string        `json:"streams,omitempty" yaml:"streams,omitempty"`
	Queries           []string          `json:"queries,omitempty" yaml:"queries,omitempty"`
}

func toPhaseDoc(p PhaseSpecification) (phaseDoc, error) {
	switch p := p.(type) {
	case StreamExecutionPhase:
		return phaseDoc{Name: p.Name, ExecutionStrategy: StrategyStream, Streams: p.Streams}, nil
	case ConcurrentExecutionPhase:
		return phaseDoc{Name: p.Name, ExecutionStrategy: StrategyConcurrent, Queries: p.Queries}, nil
	default:
		return phaseDoc{}, fmt.Errorf("unsupported phase type %T", p)
	}
}

func (d *phaseDoc) toPhase() (PhaseSpecification, error) {
	if d.Name == "" {
		return nil, errors.New("phase name is missing")
	}

	switch d.ExecutionStrategy {
	case StrategyStream:
		if len(d.Queries) > 0 {
			return nil, fmt.Errorf("phase %s: stream phase must not set queries", d.Name)
		}
		if len(d.Streams) == 0 {
			return nil, fmt.Errorf("phase %s: stream phase has no streams", d.Name)
		}
		for i, stream := range d.Streams {
			if len(stream) == 0 {
				return nil, fmt.Errorf("phase %s: stream %d is empty", d.Name, i)
			}
		}
		return NewStreamExecutionPhase(d.Name, d.Streams), nil
	case StrategyConcurrent:
		if len(d.Streams) > 0 {
			return nil, fmt.Errorf("phase %s: concurrent phase must not set streams", d.Name)
		}
		if len(d.Queries) == 0 {
			return nil, fmt.Errorf("phase %s: concurrent phase has no queries", d.Name)
		}
		return NewConcurrentExecutionPhase(d.Name, d.Queries), nil
	default:
		return nil, fmt.Errorf("phase %s: unknown execution strategy %q", d.Name, d.ExecutionStrategy)
	}
}

func toPhaseDocs(phases []PhaseSpecification) ([]phaseDoc, error) {
	docs := make([]phaseDoc, len(phases))
	for i, p := range phases {
		doc, err := toPhaseDoc(p)
		if err != nil {
			return nil, err
		}
		docs[i] = doc
	}
	return docs, nil
}

func fromPhaseDocs(docs []phaseDoc) ([]PhaseSpecification, error) {
	phases := make([]PhaseSpecification, len(docs))
	for i := range docs {
		p, err := docs[i].toPhase()
		if err != nil {
			return nil, err
		}
		phases[i] = p
	}
	return phases, nil
}

// MarshalPhases encodes phases into the payload stored in the suites table.
func MarshalPhases(phases []PhaseSpecification) ([]byte, error) {
	docs, err := toPhaseDocs(phases)
	if err != nil {
		return nil, err
	}
	return json.Marshal(docs)
}

func UnmarshalPhases(b []byte) ([]PhaseSpecification, error) {
	var docs []phaseDoc
	if err := json.Unmarshal(b, &docs); err != nil {
		return nil, fmt.Errorf("decode phases: %w", err)
	}
	return fromPhaseDocs(docs)
}
