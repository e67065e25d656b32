package benchmark

import (
	"encoding/json"
	"iter"
	"maps"
	"slices"
)

// SessionProperties is an immutable mapping of session property names to
// values. The zero value is an empty mapping.
type SessionProperties struct {
	m map[string]string
}

func NewSessionProperties(m map[string]string) SessionProperties {
	if len(m) == 0 {
		return SessionProperties{}
	}
	return SessionProperties{m: maps.Clone(m)}
}

// SessionPropertiesOf builds properties from alternating name/value pairs.
// A trailing name without value is ignored.
func SessionPropertiesOf(kv ...string) SessionProperties {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return NewSessionProperties(m)
}

func (s SessionProperties) Get(name string) (string, bool) {
	v, ok := s.m[name]
	return v, ok
}

func (s SessionProperties) Len() int { return len(s.m) }

func (s SessionProperties) Keys() []string {
	return slices.Sorted(maps.Keys(s.m))
}

// All iterates the properties ordered by name.
func (s SessionProperties) All() iter.Seq2[string, string] {
	return func(yield func(string, string) bool) {
		for _, k := range s.Keys() {
			if !yield(k, s.m[k]) {
				return
			}
		}
	}
}

// Map returns a copy of the properties.
func (s SessionProperties) Map() map[string]string {
	m := make(map[string]string, len(s.m))
	maps.Copy(m, s.m)
	return m
}

func (s SessionProperties) Equal(o SessionProperties) bool {
	return maps.Equal(s.m, o.m)
}

func (s SessionProperties) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

func (s *SessionProperties) UnmarshalJSON(b []byte) error {
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*s = NewSessionProperties(m)
	return nil
}

// UnmarshalSessionProperties decodes the session properties column. Empty
// payloads and JSON null decode to an empty mapping.
func UnmarshalSessionProperties(b []byte) (SessionProperties, error) {
	var s SessionProperties
	if len(b) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return s, err
	}
	return s, nil
}
