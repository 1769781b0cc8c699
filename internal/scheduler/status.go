package scheduler

import (
	"encoding"
	"encoding/json"
	"fmt"
)

// Status is the review stage of a (learner, fact) pair.
type Status int

const (
	StatusNew      Status = iota + 1 // Never meaningfully engaged with.
	StatusLearning                   // Active review cycle.
	StatusHard                       // Demoted after a skip; resurfaces quickly.
	StatusMastered                   // Long interval; still decays and resurfaces.
)

var (
	statusNames = [...]string{
		StatusNew:      "new",
		StatusLearning: "learning",
		StatusHard:     "hard",
		StatusMastered: "mastered",
	}
	statusByName = map[string]Status{
		"new":      StatusNew,
		"learning": StatusLearning,
		"hard":     StatusHard,
		"mastered": StatusMastered,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = Status(0)
	_ json.Marshaler           = Status(0)
	_ json.Unmarshaler         = (*Status)(nil)
	_ encoding.TextMarshaler   = Status(0)
	_ encoding.TextUnmarshaler = (*Status)(nil)
)

func (s Status) isValid() bool {
	return s >= StatusNew && s <= StatusMastered
}

// String returns the wire name of the status ("new", "learning", "hard",
// "mastered"). For invalid values it returns "Status(n)".
func (s Status) String() string {
	if s.isValid() {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ParseStatus converts a wire name back into a Status.
func ParseStatus(name string) (Status, error) {
	s, ok := statusByName[name]
	if !ok {
		return 0, fmt.Errorf("scheduler: invalid status: %q", name)
	}
	return s, nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	if !s.isValid() {
		return nil, fmt.Errorf("scheduler: invalid status: %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	v, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MarshalJSON implements json.Marshaler. Status serializes as a JSON string.
func (s Status) MarshalJSON() ([]byte, error) {
	text, err := s.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Expects a JSON string.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("scheduler: invalid status: %s", data)
	}
	return s.UnmarshalText([]byte(str))
}
