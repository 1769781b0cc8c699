package scheduler

import (
	"encoding"
	"encoding/json"
	"fmt"
	"time"
)

// Kind is the engagement signal a gesture carries. The set is closed: unknown
// kinds are rejected at the boundary, not deep in transition logic.
type Kind int

const (
	KindLike Kind = iota + 1 // Explicit mild positive.
	KindSave                 // Explicit strong positive; forces mastered.
	KindLoop                 // Rewatched the clip; difficulty, not mastery.
	KindSkip                 // Swiped past before a loop completed.
)

var (
	kindNames = [...]string{
		KindLike: "like",
		KindSave: "save",
		KindLoop: "loop",
		KindSkip: "skip",
	}
	kindByName = map[string]Kind{
		"like": KindLike,
		"save": KindSave,
		"loop": KindLoop,
		"skip": KindSkip,
	}
)

// Compile-time interface checks.
var (
	_ fmt.Stringer             = Kind(0)
	_ json.Marshaler           = Kind(0)
	_ json.Unmarshaler         = (*Kind)(nil)
	_ encoding.TextMarshaler   = Kind(0)
	_ encoding.TextUnmarshaler = (*Kind)(nil)
)

func (k Kind) isValid() bool {
	return k >= KindLike && k <= KindSkip
}

// String returns the wire name of the kind ("like", "save", "loop", "skip").
// For invalid values it returns "Kind(n)".
func (k Kind) String() string {
	if k.isValid() {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind converts a wire name back into a Kind.
func ParseKind(name string) (Kind, error) {
	k, ok := kindByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return k, nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.isValid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	v, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// MarshalJSON implements json.Marshaler. Kind serializes as a JSON string.
func (k Kind) MarshalJSON() ([]byte, error) {
	text, err := k.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON implements json.Unmarshaler. Expects a JSON string.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownKind, data)
	}
	return k.UnmarshalText([]byte(str))
}

// Gesture is one engagement signal against one (learner, fact) pair. Only
// loop gestures carry LoopCount (the cumulative loop count the presentation
// layer observed this sitting); the other kinds leave it zero.
type Gesture struct {
	Kind       Kind      `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
	LoopCount  int       `json:"loop_count,omitempty"`
}

// Validate rejects malformed gestures before they reach transition logic.
func (g Gesture) Validate() error {
	if !g.Kind.isValid() {
		return fmt.Errorf("%w: %d", ErrUnknownKind, int(g.Kind))
	}
	if g.OccurredAt.IsZero() {
		return fmt.Errorf("scheduler: gesture missing occurred_at")
	}
	if g.Kind != KindLoop && g.LoopCount != 0 {
		return fmt.Errorf("scheduler: loop_count is only valid on loop gestures")
	}
	if g.Kind == KindLoop && g.LoopCount < 1 {
		return fmt.Errorf("scheduler: loop gesture requires loop_count >= 1")
	}
	return nil
}
