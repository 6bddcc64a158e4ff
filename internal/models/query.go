package models

const (
	DefaultLimit = 10
	MaxLimit     = 1000
)

// CandidateQuery selects entity ids. Either Query (query-string syntax) or
// Field + Keyword must be set. Near restricts a keyword query to a radius around a point.
type CandidateQuery struct {
	Field   string    `json:"field,omitempty"`
	Keyword string    `json:"keyword,omitempty"`
	Query   string    `json:"query,omitempty"`
	Near    *GeoPoint `json:"near,omitempty"`
	// RadiusKm is required with Near.
	RadiusKm float64 `json:"radius_km,omitempty"`
	Offset   int     `json:"offset,omitempty"`
	Limit    int     `json:"limit,omitempty"`
}

// Validate ensures the query is well formed and normalizes offset and limit.
func (q *CandidateQuery) Validate() error {
	switch {
	case q.Query != "" && q.Keyword != "":
		return invalidf("keyword and query are mutually exclusive")
	case q.Query == "" && q.Keyword == "":
		return invalidf("keyword or query is required")
	case q.Keyword != "" && q.Field == "":
		return invalidf("keyword requires a field")
	}
	if q.Near != nil {
		if q.Keyword == "" {
			return invalidf("geo restriction requires a keyword")
		}
		if err := q.Near.Validate(); err != nil {
			return err
		}
		if q.RadiusKm <= 0 {
			return invalidf("radius must be positive")
		}
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return nil
}
