package domain

// SubjectType differentiates the callers allowed on the API.
type SubjectType string

const (
	// SubjectOperator is a human running the coordinator (teardown, stats export).
	SubjectOperator SubjectType = "OPERATOR"
	// SubjectAdapter is the chat adapter process attached to the gateway.
	SubjectAdapter SubjectType = "ADAPTER"
)

// Valid reports whether s is a known subject type.
func (s SubjectType) Valid() bool {
	return s == SubjectOperator || s == SubjectAdapter
}
