package mode

// Mode is the search strategy.
type Mode string

// Search mode constants.
const (
	// Hybrid combines vector similarity with attribute filtering (default, recommended).
	Hybrid Mode = "hybrid"
	// Semantic runs a pure vector similarity search.
	Semantic Mode = "semantic"
	// Attribute runs a substring match over title/description plus filters.
	// The wire value "sql" is kept for compatibility with the platform API.
	Attribute Mode = "sql"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Hybrid || m == Semantic || m == Attribute
}
