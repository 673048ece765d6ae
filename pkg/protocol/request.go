package protocol

import (
	"bytes"
	"fmt"
	"io"
)

// Render service endpoints.
const (
	PathRender       = "/render"
	PathRenderStream = "/render_stream"
	PathHealth       = "/healthz"
)

// PageRenderRequest asks the render service for a full page.
type PageRenderRequest struct {
	Page  string `json:"page"`
	Props Props  `json:"props"`
}

// Validate checks the page identifier.
func (r PageRenderRequest) Validate() error {
	return ValidateIdentifier("page", r.Page)
}

// StreamRenderRequest asks the render service for an ordered batch of patch
// envelopes.
type StreamRenderRequest struct {
	Operations []PatchOperation `json:"operations"`
}

// Validate rejects an empty batch, then checks every operation in order and
// returns the first failure.
func (r StreamRenderRequest) Validate() error {
	if len(r.Operations) == 0 {
		return &ValidationError{Field: "operations", Reason: "batch is empty", Index: -1}
	}
	if len(r.Operations) > MaxOperations {
		return &ValidationError{Field: "operations", Reason: fmt.Sprintf("more than %d operations", MaxOperations), Index: -1}
	}
	for i, op := range r.Operations {
		if err := op.Validate(); err != nil {
			if ve, ok := err.(*ValidationError); ok {
				ve.Index = i
			}
			return err
		}
	}
	return nil
}

// EncodePageRequest encodes a page render request body.
func EncodePageRequest(r PageRenderRequest) ([]byte, error) {
	if r.Props == nil {
		r.Props = Props{}
	}
	return json.Marshal(r)
}

// EncodeStreamRequest encodes a stream render request body.
func EncodeStreamRequest(r StreamRenderRequest) ([]byte, error) {
	if r.Operations == nil {
		r.Operations = []PatchOperation{}
	}
	return json.Marshal(r)
}

// DecodePageRequest decodes a page render request body. It does not
// validate the page identifier.
func DecodePageRequest(r io.Reader) (PageRenderRequest, error) {
	var req PageRenderRequest
	if err := decodeJSON(r, &req); err != nil {
		return PageRenderRequest{}, err
	}
	if req.Props == nil {
		req.Props = Props{}
	}
	return req, nil
}

// DecodeStreamRequest decodes a stream render request body. It does not
// validate the operations.
func DecodeStreamRequest(r io.Reader) (StreamRenderRequest, error) {
	var req StreamRenderRequest
	if err := decodeJSON(r, &req); err != nil {
		return StreamRenderRequest{}, err
	}
	return req, nil
}

func decodeJSON(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return &ValidationError{Field: "body", Reason: "empty request body", Index: -1}
	}
	if err := json.Unmarshal(data, v); err != nil {
		if ve, ok := err.(*ValidationError); ok {
			return ve
		}
		return &ValidationError{Field: "body", Reason: "malformed JSON: " + err.Error(), Index: -1}
	}
	return nil
}
