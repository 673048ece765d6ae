// Package protocol defines the messages exchanged between the controller side
// and the render service.
//
// Only two message shapes exist:
//
//   - PageRenderRequest: render a page inside the application layout.
//   - StreamRenderRequest: render an ordered batch of patch operations.
//
// Both are encoded as JSON through a single codec (EncodePageRequest,
// EncodeStreamRequest, DecodePageRequest, DecodeStreamRequest).
//
// # Patch Operations
//
// A PatchOperation names an Action, a Selector and, for every action except
// ActionRemove, a fragment identifier and its props:
//
//	s := protocol.NewStream()
//	if err := s.Update(protocol.Target("flash"), "components/Flash", protocol.Props{"message": "hi"}); err != nil {
//	    return err
//	}
//	if err := s.Remove(protocol.Targets(".row")); err != nil {
//	    return err
//	}
//	req := s.Request()
//
// Builder calls validate eagerly, so an unsafe fragment identifier never
// leaves the controller side.
//
// # Envelopes
//
// The render service answers a stream request with one envelope per
// operation, concatenated in input order:
//
//	<patch action="update" target="flash"><template>...</template></patch>
//	<patch action="remove" targets=".row"></patch>
package protocol
