// Package errors provides coded, actionable errors for viewbridge tooling.
//
// Each error carries a code (e.g. "E120") that maps to a registered template
// with a category, a short message and a longer explanation:
//
//	err := errors.New("E120").
//	    WithDetail("Failed to parse viewbridge.json: unexpected EOF").
//	    WithSuggestion("Check that viewbridge.json is valid JSON")
//
//	fmt.Println(err.Format())
//
// # Categories
//
//   - config: configuration file errors
//   - transport: render socket errors surfaced by the CLI
//   - render: view artifact errors surfaced by the CLI
//   - cli: command line usage errors
//
// Errors crossing the render socket are not represented here; see
// pkg/ipc.RendererError.
package errors
