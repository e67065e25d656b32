package benchdriverapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"
)

type WorkerStatus[T any] struct {
	Code StatusCode `json:"code"`
	Task TaskName   `json:"task,omitempty"`
	Last *T         `json:"last,omitempty"`
}

func CollectValues[T any](status []WorkerStatus[Result[T]]) []T {
	results := make([]T, 0, len(status))
	for _, s := range status {
		if s.Last != nil && s.Last.Error == nil {
			results = append(results, s.Last.Value)
		}
	}
	return results
}

type APIWorkerStatus = WorkerStatus[Result[any]]

type StatusCode string

const (
	StatusIdle         StatusCode = "Idle"
	StatusBusy         StatusCode = "Busy"
	StatusDisconnected StatusCode = "Disconnected"
)

type TaskName string

// Result is the outcome of a task. On the wire a failed result carries only
// the error text and a zero value is omitted.
type Result[T any] struct {
	Value T     `json:"value,omitempty"`
	Error error `json:"error,omitempty"`
}

type resultJSON[T any] struct {
	Value *T      `json:"value,omitempty"`
	Error *string `json:"error,omitempty"`
}

func (r Result[T]) MarshalJSON() ([]byte, error) {
	var wire resultJSON[T]
	switch {
	case r.Error != nil:
		msg := r.Error.Error()
		wire.Error = &msg
	case !reflect.ValueOf(&r.Value).Elem().IsZero():
		wire.Value = &r.Value
	}
	return json.Marshal(wire)
}

func (r *Result[T]) UnmarshalJSON(b []byte) error {
	var wire resultJSON[T]
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}

	*r = Result[T]{}
	if wire.Value != nil {
		r.Value = *wire.Value
	}
	if wire.Error != nil {
		r.Error = errors.New(*wire.Error)
	}
	return nil
}

// Duration encodes as a Go duration string. Plain numbers are read as
// nanoseconds.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		d.Duration = v
		return nil
	}

	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", b)
	}
	d.Duration = time.Duration(n)
	return nil
}

type IsolationLevel string

const (
	IsolationLevelDefault         IsolationLevel = "default"
	IsolationLevelReadCommitted   IsolationLevel = "read_committed"
	IsolationLevelReadUncommitted IsolationLevel = "read_uncommitted"
	IsolationLevelRepeatableRead  IsolationLevel = "repeatable_read"
	IsolationLevelSnapshot        IsolationLevel = "snapshot"
	IsolationLevelSerializable    IsolationLevel = "serializable"
	IsolationLevelLinearizable    IsolationLevel = "linearizable"
)

var isolationLevels = map[IsolationLevel]sql.IsolationLevel{
	"":                            sql.LevelDefault,
	IsolationLevelDefault:         sql.LevelDefault,
	IsolationLevelReadCommitted:   sql.LevelReadCommitted,
	IsolationLevelReadUncommitted: sql.LevelReadUncommitted,
	IsolationLevelRepeatableRead:  sql.LevelRepeatableRead,
	IsolationLevelSnapshot:        sql.LevelSnapshot,
	IsolationLevelSerializable:    sql.LevelSerializable,
	IsolationLevelLinearizable:    sql.LevelLinearizable,
}

// SQLLevel maps the wire value to the database/sql isolation level.
func (l IsolationLevel) SQLLevel() (sql.IsolationLevel, error) {
	level, ok := isolationLevels[l]
	if !ok {
		return sql.LevelDefault, fmt.Errorf("unknown isolation level %q", l)
	}
	return level, nil
}

func GetOptValue[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}
