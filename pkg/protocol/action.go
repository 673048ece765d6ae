package protocol

import "fmt"

// Action is the DOM operation a patch envelope asks the client to perform.
type Action uint8

// Patch actions.
const (
	ActionAppend Action = iota + 1 // Append inside the target
	ActionPrepend                  // Prepend inside the target
	ActionBefore                   // Insert before the target
	ActionAfter                    // Insert after the target
	ActionUpdate                   // Replace the target's content
	ActionReplace                  // Replace the target element
	ActionRemove                   // Remove the target element
)

var actionNames = [...]string{
	ActionAppend:  "append",
	ActionPrepend: "prepend",
	ActionBefore:  "before",
	ActionAfter:   "after",
	ActionUpdate:  "update",
	ActionReplace: "replace",
	ActionRemove:  "remove",
}

// String returns the wire name of the action.
func (a Action) String() string {
	if a.Valid() {
		return actionNames[a]
	}
	return "unknown"
}

// Valid reports whether a is one of the defined actions.
func (a Action) Valid() bool {
	return a >= ActionAppend && a <= ActionRemove
}

// NeedsFragment reports whether operations with this action render a fragment.
func (a Action) NeedsFragment() bool {
	return a.Valid() && a != ActionRemove
}

// ParseAction returns the action with the given wire name.
func ParseAction(name string) (Action, error) {
	for a := ActionAppend; a <= ActionRemove; a++ {
		if actionNames[a] == name {
			return a, nil
		}
	}
	return 0, &ValidationError{Field: "action", Value: name, Reason: "unknown action", Index: -1}
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("protocol: cannot marshal action %d", uint8(a))
	}
	return []byte(actionNames[a]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
