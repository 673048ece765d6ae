package protocol

// Size limits enforced while validating requests.
const (
	// MaxIdentifierLength limits the length of page and fragment identifiers.
	MaxIdentifierLength = 256

	// MaxSelectorLength limits the length of target and targets selectors.
	MaxSelectorLength = 1024

	// MaxOperations limits the number of operations in one stream request.
	MaxOperations = 1000
)
