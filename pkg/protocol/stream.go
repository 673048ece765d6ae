package protocol

// Stream accumulates patch operations, one call per patch, for submission
// as a single StreamRenderRequest. Each call validates its operation and
// leaves the stream unchanged on error.
//
// A Stream is not safe for concurrent use.
type Stream struct {
	ops []PatchOperation
}

// NewStream returns an empty stream.
func NewStream() *Stream {
	return &Stream{}
}

// Append renders fragment and appends it inside sel.
func (s *Stream) Append(sel Selector, fragment string, props Props) error {
	return s.push(ActionAppend, sel, fragment, props)
}

// Prepend renders fragment and prepends it inside sel.
func (s *Stream) Prepend(sel Selector, fragment string, props Props) error {
	return s.push(ActionPrepend, sel, fragment, props)
}

// Before renders fragment and inserts it before sel.
func (s *Stream) Before(sel Selector, fragment string, props Props) error {
	return s.push(ActionBefore, sel, fragment, props)
}

// After renders fragment and inserts it after sel.
func (s *Stream) After(sel Selector, fragment string, props Props) error {
	return s.push(ActionAfter, sel, fragment, props)
}

// Update renders fragment and replaces the content of sel with it.
func (s *Stream) Update(sel Selector, fragment string, props Props) error {
	return s.push(ActionUpdate, sel, fragment, props)
}

// Replace renders fragment and replaces sel with it.
func (s *Stream) Replace(sel Selector, fragment string, props Props) error {
	return s.push(ActionReplace, sel, fragment, props)
}

// Remove removes sel. No fragment is rendered.
func (s *Stream) Remove(sel Selector) error {
	return s.push(ActionRemove, sel, "", nil)
}

// Add validates and appends a prebuilt operation.
func (s *Stream) Add(op PatchOperation) error {
	if err := op.Validate(); err != nil {
		return err
	}
	if len(s.ops) >= MaxOperations {
		return &ValidationError{Field: "operations", Reason: "too many operations", Index: len(s.ops)}
	}
	s.ops = append(s.ops, op)
	return nil
}

func (s *Stream) push(action Action, sel Selector, fragment string, props Props) error {
	op, err := NewOperation(action, sel, fragment, props)
	if err != nil {
		if ve, ok := err.(*ValidationError); ok {
			ve.Index = len(s.ops)
		}
		return err
	}
	return s.Add(op)
}

// Len returns the number of accumulated operations.
func (s *Stream) Len() int {
	return len(s.ops)
}

// Operations returns a copy of the accumulated operations in call order.
func (s *Stream) Operations() []PatchOperation {
	out := make([]PatchOperation, len(s.ops))
	copy(out, s.ops)
	return out
}

// Request returns the accumulated operations as a stream render request.
func (s *Stream) Request() StreamRenderRequest {
	return StreamRenderRequest{Operations: s.Operations()}
}
