package protocol

import "fmt"

// Props is the property map passed to a page or fragment.
type Props map[string]any

// Selector addresses the DOM element(s) a patch applies to. Exactly one of
// Target (a single element id) and Targets (a multi-element CSS selector)
// must be set.
type Selector struct {
	Target  string
	Targets string
}

// Target returns a selector addressing a single element.
func Target(id string) Selector {
	return Selector{Target: id}
}

// Targets returns a selector addressing every element matching css.
func Targets(css string) Selector {
	return Selector{Targets: css}
}

// Attr returns the envelope attribute name and value for the selector.
func (s Selector) Attr() (name, value string) {
	if s.Targets != "" {
		return "targets", s.Targets
	}
	return "target", s.Target
}

// Validate checks that exactly one of Target and Targets is set.
func (s Selector) Validate() error {
	switch {
	case s.Target == "" && s.Targets == "":
		return &ValidationError{Field: "selector", Reason: "one of target or targets is required", Index: -1}
	case s.Target != "" && s.Targets != "":
		return &ValidationError{Field: "selector", Reason: "target and targets are mutually exclusive", Index: -1}
	}
	_, v := s.Attr()
	if len(v) > MaxSelectorLength {
		return &ValidationError{Field: "selector", Value: v, Reason: fmt.Sprintf("longer than %d bytes", MaxSelectorLength), Index: -1}
	}
	return nil
}

// PatchOperation is one entry of a stream render request.
type PatchOperation struct {
	Action   Action
	Selector Selector
	Fragment string // empty for ActionRemove
	Props    Props  // nil for ActionRemove
}

// NewOperation builds and validates a patch operation. For ActionRemove the
// fragment and props are ignored.
func NewOperation(action Action, sel Selector, fragment string, props Props) (PatchOperation, error) {
	op := PatchOperation{Action: action, Selector: sel}
	if action.NeedsFragment() {
		op.Fragment = fragment
		op.Props = props
		if op.Props == nil {
			op.Props = Props{}
		}
	}
	if err := op.Validate(); err != nil {
		return PatchOperation{}, err
	}
	return op, nil
}

// Validate checks the operation's action, selector and fragment identifier.
func (op PatchOperation) Validate() error {
	if !op.Action.Valid() {
		return &ValidationError{Field: "action", Value: op.Action.String(), Reason: "unknown action", Index: -1}
	}
	if err := op.Selector.Validate(); err != nil {
		return err
	}
	if op.Action.NeedsFragment() {
		if err := ValidateIdentifier("fragment", op.Fragment); err != nil {
			return err
		}
	}
	return nil
}

// operationWire is the JSON shape of a PatchOperation.
type operationWire struct {
	Action   Action `json:"action"`
	Target   string `json:"target,omitempty"`
	Targets  string `json:"targets,omitempty"`
	Fragment string `json:"fragment,omitempty"`
	Props    *Props `json:"props,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (op PatchOperation) MarshalJSON() ([]byte, error) {
	w := operationWire{
		Action:  op.Action,
		Target:  op.Selector.Target,
		Targets: op.Selector.Targets,
	}
	if op.Action.NeedsFragment() {
		props := op.Props
		if props == nil {
			props = Props{}
		}
		w.Fragment = op.Fragment
		w.Props = &props
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. It does not validate; callers
// run Validate so the error can carry the operation index.
func (op *PatchOperation) UnmarshalJSON(data []byte) error {
	var w operationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*op = PatchOperation{
		Action:   w.Action,
		Selector: Selector{Target: w.Target, Targets: w.Targets},
	}
	if w.Action.NeedsFragment() {
		op.Fragment = w.Fragment
		op.Props = Props{}
		if w.Props != nil && *w.Props != nil {
			op.Props = *w.Props
		}
	}
	return nil
}
