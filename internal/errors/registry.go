package errors

// Template defines a registered error type.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// ============================================
	// Configuration Errors (E120-E139)
	// ============================================

	"E120": {
		Category: CategoryConfig,
		Message:  "Invalid configuration file",
		Detail:   "The viewbridge configuration file is malformed.",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Missing required configuration",
		Detail:   "A required configuration value is not set.",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration value is out of range or not recognised.",
	},
	"E123": {
		Category: CategoryConfig,
		Message:  "Unsupported configuration format",
		Detail:   "Configuration files must end in .json or .toml.",
	},
	"E141": {
		Category: CategoryConfig,
		Message:  "Configuration file not found",
		Detail:   "No viewbridge.json or viewbridge.toml was found.",
	},

	// ============================================
	// Transport Errors (E160-E179)
	// ============================================

	"E160": {
		Category: CategoryTransport,
		Message:  "Render service unavailable",
		Detail:   "The render socket does not exist or refused the connection.",
	},
	"E161": {
		Category: CategoryTransport,
		Message:  "Render socket already in use",
		Detail:   "Another process is listening on the configured socket path.",
	},

	// ============================================
	// Render Errors (E180-E199)
	// ============================================

	"E180": {
		Category: CategoryRender,
		Message:  "Render failed",
		Detail:   "The render service returned an error status.",
	},
	"E181": {
		Category: CategoryRender,
		Message:  "Invalid patch operation",
		Detail:   "A stream patch operation failed validation before it was sent.",
	},

	// ============================================
	// CLI Errors (E200-E219)
	// ============================================

	"E200": {
		Category: CategoryCLI,
		Message:  "Invalid props",
		Detail:   "Props must be a JSON object.",
	},
	"E201": {
		Category: CategoryCLI,
		Message:  "Invalid operations",
		Detail:   "Operations must be a JSON array of patch operations.",
	},
}

// Lookup returns the template registered for code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
