package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/vango-dev/viewbridge/pkg/protocol"
	"github.com/vango-dev/viewbridge/pkg/render"
)

func testViews() fstest.MapFS {
	return fstest.MapFS{
		"layouts/Application.html": {Data: []byte(`<html><head><title>{{.page}}</title></head><body>{{.content}}</body></html>`)},
		"pages/home.html":          {Data: []byte(`<h1>Hello {{.name}}</h1>`)},
		"components/Flash.html":    {Data: []byte(`{{define "component"}}<div class="flash">{{.message}}</div>{{end}}`)},
		"components/Row.html":      {Data: []byte(`<tr><td>{{.id}}</td></tr>`)},
		"components/Helpers.html":  {Data: []byte("{{define \"helper\"}}x{{end}}\n")},
		"components/Fails.html":    {Data: []byte(`{{index .items 5}}`)},
	}
}

// countingViews records every artifact the service resolves. Resolving the
// page "panic" panics.
type countingViews struct {
	render.ViewRenderer

	mu       sync.Mutex
	resolved []string
}

func (v *countingViews) Resolve(ctx context.Context, kind render.Kind, id string) (*render.Artifact, error) {
	v.mu.Lock()
	v.resolved = append(v.resolved, kind.String()+":"+id)
	v.mu.Unlock()
	if kind == render.KindPage && id == "panic" {
		panic("boom")
	}
	return v.ViewRenderer.Resolve(ctx, kind, id)
}

func (v *countingViews) calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.resolved...)
}

func newTestServer(t *testing.T, config *Config) (*Server, *countingViews) {
	t.Helper()
	tr := render.NewTemplateRenderer(render.NewFSSource(testViews()), render.TemplateConfig{})
	views := &countingViews{ViewRenderer: tr}
	return New(config, views), views
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleRender(t *testing.T) {
	s, _ := newTestServer(t, &Config{
		Bootstrap: render.Bootstrap{Imports: []string{"htmx"}},
	})

	rec := do(t, s, http.MethodPost, "/render", `{"page":"home","props":{"name":"<Ada>"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != protocol.ContentTypeHTML {
		t.Errorf("Content-Type = %q", ct)
	}
	if st := rec.Header().Get("Server-Timing"); !strings.HasPrefix(st, "render;dur=") {
		t.Errorf("Server-Timing = %q", st)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"<!DOCTYPE html>",
		"<title>home</title>",
		"<h1>Hello &lt;Ada&gt;</h1>",
		`<script type="importmap">`,
		`"/assets/vendor/htmx"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
	if strings.Index(body, "importmap") > strings.Index(body, "</head>") {
		t.Errorf("import map not injected into head:\n%s", body)
	}
}

func TestHandleRenderErrors(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
		body   string
		status int
		want   string
	}{
		{"missing page", nil, `{"page":"nope","props":{}}`, http.StatusNotFound, "not found"},
		{"unsafe page", nil, `{"page":"../secret","props":{}}`, http.StatusBadRequest, "invalid page"},
		{"absolute page", nil, `{"page":"/etc/passwd"}`, http.StatusBadRequest, "invalid page"},
		{"malformed body", nil, `{"page":`, http.StatusBadRequest, "malformed JSON"},
		{"empty body", nil, ``, http.StatusBadRequest, "empty request body"},
		{"missing layout", &Config{Layout: "Missing"}, `{"page":"home"}`, http.StatusInternalServerError, "Internal Server Error"},
		{"body too large", &Config{MaxBodyBytes: 16}, `{"page":"home","props":{"pad":"xxxxxxxxxxxxxxxx"}}`, http.StatusBadRequest, "too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, tt.config)
			rec := do(t, s, http.MethodPost, "/render", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tt.status, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body = %q, want substring %q", rec.Body.String(), tt.want)
			}
		})
	}
}

func TestHandleRenderRejectsBeforeResolving(t *testing.T) {
	s, views := newTestServer(t, nil)
	rec := do(t, s, http.MethodPost, "/render", `{"page":"pages/../../etc"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if calls := views.calls(); len(calls) != 0 {
		t.Errorf("resolved %v for an invalid page", calls)
	}
}

func TestHandleRenderStreamOrder(t *testing.T) {
	s, _ := newTestServer(t, nil)

	forward := `{"operations":[
		{"action":"append","target":"rows","fragment":"components/Row","props":{"id":1}},
		{"action":"update","target":"flash","fragment":"components/Flash","props":{"message":"hi"}},
		{"action":"append","target":"rows","fragment":"components/Row","props":{"id":2}}
	]}`
	reversed := `{"operations":[
		{"action":"append","target":"rows","fragment":"components/Row","props":{"id":2}},
		{"action":"update","target":"flash","fragment":"components/Flash","props":{"message":"hi"}},
		{"action":"append","target":"rows","fragment":"components/Row","props":{"id":1}}
	]}`

	row1 := `<patch action="append" target="rows"><template><tr><td>1</td></tr></template></patch>`
	flash := `<patch action="update" target="flash"><template><div class="flash">hi</div></template></patch>`
	row2 := `<patch action="append" target="rows"><template><tr><td>2</td></tr></template></patch>`

	rec := do(t, s, http.MethodPost, "/render_stream", forward)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if got, want := rec.Body.String(), row1+flash+row2; got != want {
		t.Errorf("forward body =\n%s\nwant\n%s", got, want)
	}
	if ct := rec.Header().Get("Content-Type"); ct != protocol.ContentTypePatchStream {
		t.Errorf("Content-Type = %q", ct)
	}

	rec = do(t, s, http.MethodPost, "/render_stream", reversed)
	if got, want := rec.Body.String(), row2+flash+row1; got != want {
		t.Errorf("reversed body =\n%s\nwant\n%s", got, want)
	}
}

func TestHandleRenderStreamRemoveSkipsLookup(t *testing.T) {
	s, views := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/render_stream", `{"operations":[{"action":"remove","targets":".row"}]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if got, want := rec.Body.String(), `<patch action="remove" targets=".row"></patch>`; got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
	if calls := views.calls(); len(calls) != 0 {
		t.Errorf("remove resolved %v", calls)
	}
}

func TestHandleRenderStreamValidatesWholeBatchFirst(t *testing.T) {
	s, views := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/render_stream", `{"operations":[
		{"action":"update","target":"flash","fragment":"components/Flash","props":{}},
		{"action":"append","target":"rows","fragment":"../components/Row","props":{}}
	]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "operation 1") {
		t.Errorf("body = %q, want the failing index", rec.Body.String())
	}
	if calls := views.calls(); len(calls) != 0 {
		t.Errorf("resolved %v before rejecting the batch", calls)
	}
}

func TestHandleRenderStreamStopsAfterFailure(t *testing.T) {
	s, views := newTestServer(t, &Config{Concurrency: 1})

	rec := do(t, s, http.MethodPost, "/render_stream", `{"operations":[
		{"action":"update","target":"a","fragment":"components/Nope","props":{}},
		{"action":"update","target":"flash","fragment":"components/Flash","props":{"message":"hi"}},
		{"action":"append","target":"rows","fragment":"components/Row","props":{"id":1}}
	]}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "operation 0") {
		t.Errorf("body = %q, want the failing index", rec.Body.String())
	}
	if calls := views.calls(); len(calls) != 1 || calls[0] != "fragment:components/Nope" {
		t.Errorf("resolved %v, want only the failing fragment", calls)
	}
}

func TestHandleRenderStreamRejectsEmptyBatch(t *testing.T) {
	for _, body := range []string{`{}`, `{"operations":null}`, `{"operations":[]}`} {
		s, views := newTestServer(t, nil)
		rec := do(t, s, http.MethodPost, "/render_stream", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, body %q", body, rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), "batch is empty") {
			t.Errorf("%s: body = %q", body, rec.Body.String())
		}
		if calls := views.calls(); len(calls) != 0 {
			t.Errorf("%s: resolved %v", body, calls)
		}
	}
}

func TestHandleRenderStreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		debug  bool
		ops    string
		status int
		want   string
	}{
		{"missing fragment", false, `{"action":"update","target":"a","fragment":"components/Nope"}`, http.StatusNotFound, "not found"},
		{"no component", false, `{"action":"update","target":"a","fragment":"components/Helpers"}`, http.StatusInternalServerError, "Internal Server Error"},
		{"no component debug", true, `{"action":"update","target":"a","fragment":"components/Helpers"}`, http.StatusInternalServerError, "no renderable component"},
		{"exec failure", false, `{"action":"update","target":"a","fragment":"components/Fails","props":{"items":[]}}`, http.StatusInternalServerError, "Internal Server Error"},
		{"both selectors", false, `{"action":"update","target":"a","targets":".b","fragment":"components/Flash"}`, http.StatusBadRequest, "mutually exclusive"},
		{"no selector", false, `{"action":"remove"}`, http.StatusBadRequest, "one of target or targets"},
		{"unknown action", false, `{"action":"explode","target":"a"}`, http.StatusBadRequest, "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, &Config{Debug: tt.debug})
			body := `{"operations":[{"action":"update","target":"flash","fragment":"components/Flash","props":{"message":"ok"}},` + tt.ops + `]}`
			rec := do(t, s, http.MethodPost, "/render_stream", body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %q)", rec.Code, tt.status, rec.Body.String())
			}
			got := rec.Body.String()
			if !strings.Contains(got, tt.want) {
				t.Errorf("body = %q, want substring %q", got, tt.want)
			}
			if strings.Contains(got, "<patch") {
				t.Errorf("failed batch leaked partial output: %q", got)
			}
		})
	}
}

func TestProductionBodiesHideDetail(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodPost, "/render_stream",
		`{"operations":[{"action":"update","target":"a","fragment":"components/Fails","props":{"items":[]}}]}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "Internal Server Error" {
		t.Errorf("body = %q", got)
	}
}

func TestRecovererHonoursDebug(t *testing.T) {
	for _, debug := range []bool{false, true} {
		s, _ := newTestServer(t, &Config{Debug: debug})
		rec := do(t, s, http.MethodPost, "/render", `{"page":"panic"}`)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("debug=%v: status = %d", debug, rec.Code)
		}
		if leaked := strings.Contains(rec.Body.String(), "boom"); leaked != debug {
			t.Errorf("debug=%v: body = %q", debug, rec.Body.String())
		}
	}
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	health, err := protocol.DecodeHealth(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("DecodeHealth: %v", err)
	}
	if health.Protocol != protocol.Version {
		t.Errorf("protocol = %q, want %q", health.Protocol, protocol.Version)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	do(t, s, http.MethodPost, "/render_stream", `{"operations":[{"action":"remove","target":"a"},{"action":"remove","target":"b"}]}`)

	rec := do(t, s, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`viewbridge_requests_total{path="/render_stream",status="200"} 1`,
		`viewbridge_patches_rendered_total 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec := do(t, s, http.MethodGet, "/render", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}
