package benchdriverapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultJSON(t *testing.T) {
	cases := map[string]struct {
		in   Result[SuiteRunStats]
		want string
	}{
		"error": {
			in:   Result[SuiteRunStats]{Value: SuiteRunStats{Suite: "S"}, Error: errors.New("boom")},
			want: `{"error":"boom"}`,
		},
		"zero": {
			in:   Result[SuiteRunStats]{},
			want: `{}`,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			b, err := json.Marshal(tc.in)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(b))
		})
	}

	in := Result[SuiteRunStats]{Value: SuiteRunStats{
		RunID:    "r1",
		Suite:    "S",
		Duration: Duration{Duration: 1500 * time.Millisecond},
	}}
	b, err := json.Marshal(&in)
	require.NoError(t, err)

	var out Result[SuiteRunStats]
	require.NoError(t, json.Unmarshal(b, &out))
	assert.NoError(t, out.Error)
	assert.Equal(t, "S", out.Value.Suite)
	assert.Equal(t, 1500*time.Millisecond, out.Value.Duration.Duration)

	require.NoError(t, json.Unmarshal([]byte(`{"error":"boom"}`), &out))
	assert.EqualError(t, out.Error, "boom")
	assert.Empty(t, out.Value.Suite)
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	require.NoError(t, json.Unmarshal([]byte(`"2m3s"`), &d))
	assert.Equal(t, 123*time.Second, d.Duration)

	require.NoError(t, json.Unmarshal([]byte(`1000`), &d))
	assert.Equal(t, time.Microsecond, d.Duration)

	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`true`), &d))

	b, err := json.Marshal(Duration{Duration: 90 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(b))
}

func TestCollectValues(t *testing.T) {
	statuses := []SuiteWorkerStatus{
		{Code: StatusIdle, Last: &Result[SuiteRunStats]{Value: SuiteRunStats{Suite: "A"}}},
		{Code: StatusIdle, Last: &Result[SuiteRunStats]{Error: errors.New("boom")}},
		{Code: StatusBusy},
	}
	values := CollectValues(statuses)
	require.Len(t, values, 1)
	assert.Equal(t, "A", values[0].Suite)
}

func TestIsolationLevel(t *testing.T) {
	level, err := IsolationLevelSerializable.SQLLevel()
	require.NoError(t, err)
	assert.Equal(t, "Serializable", level.String())

	_, err = IsolationLevel("chaos").SQLLevel()
	assert.ErrorContains(t, err, "chaos")
}

func TestStatusError(t *testing.T) {
	cause := errors.New("worker is busy")
	err := ErrorBusy(cause)
	assert.Equal(t, http.StatusConflict, err.StatusCode())
	assert.ErrorIs(t, err, cause)

	err.Display = errors.New("try later")
	b, jerr := json.Marshal(err)
	require.NoError(t, jerr)
	assert.JSONEq(t, `{"error":"try later"}`, string(b))
}

func TestSuiteRunFailed(t *testing.T) {
	stats := SuiteRunStats{Phases: []PhaseRunStats{{Queries: []QueryRunStats{{Name: "Q1"}}}}}
	assert.False(t, stats.Failed())
	stats.Phases[0].Queries = append(stats.Phases[0].Queries, QueryRunStats{Name: "Q2", Error: "boom"})
	assert.True(t, stats.Failed())
}
