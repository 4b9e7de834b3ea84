package errz

// ErrorCode represents a unique identifier for heap error types.
// Codes are organized by category:
//   - G1xxx: Allocation errors
//   - G2xxx: Handle and scope errors
//   - G3xxx: Collector errors
type ErrorCode string

const (
	// Allocation errors (G1xxx)
	G1001 ErrorCode = "G1001" // Out of memory
	G1002 ErrorCode = "G1002" // Invalid capacity
	G1003 ErrorCode = "G1003" // Heap closed

	// Handle errors (G2xxx)
	G2001 ErrorCode = "G2001" // Type mismatch
	G2002 ErrorCode = "G2002" // Scope closed
	G2003 ErrorCode = "G2003" // Stale handle
	G2004 ErrorCode = "G2004" // Invalid handle
	G2005 ErrorCode = "G2005" // Scope order violation

	// Collector errors (G3xxx)
	G3001 ErrorCode = "G3001" // Collection in progress
	G3002 ErrorCode = "G3002" // Finalizer failed
)

var codeDescriptions = map[ErrorCode]string{
	G1001: "out of memory",
	G1002: "invalid capacity",
	G1003: "heap closed",

	G2001: "type mismatch",
	G2002: "scope closed",
	G2003: "stale handle",
	G2004: "invalid handle",
	G2005: "scope order violation",

	G3001: "collection in progress",
	G3002: "finalizer failed",
}

// Description returns the short description for an error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}

// String returns the error code as a string.
func (c ErrorCode) String() string {
	return string(c)
}

// Category returns the error category based on the code prefix.
func (c ErrorCode) Category() string {
	if len(c) < 2 {
		return "unknown"
	}
	switch c[1] {
	case '1':
		return "allocation"
	case '2':
		return "handle"
	case '3':
		return "collector"
	default:
		return "unknown"
	}
}
