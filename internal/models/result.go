package models

// Cell is one non-zero matrix element.
type Cell struct {
	Row    int     `json:"row"`
	Column int     `json:"column"`
	Label  string  `json:"label,omitempty"`
	Value  float64 `json:"value"`
}

// RowResponse is the sparse content of one matrix row.
type RowResponse struct {
	ID    int     `json:"id"`
	Cells []*Cell `json:"cells"`
}

// ColumnResponse is the sparse content of one matrix column.
type ColumnResponse struct {
	Column int     `json:"column"`
	Label  string  `json:"label"`
	Cells  []*Cell `json:"cells"`
}

// Segment describes one adjoined segment of the matrix.
type Segment struct {
	Field  string `json:"field"`
	Kind   string `json:"kind"`
	Offset int    `json:"offset"`
	Width  int    `json:"width"`
}

// MatrixInfo describes the composite matrix shape.
type MatrixInfo struct {
	Rows     int        `json:"rows"`
	Cols     int        `json:"cols"`
	Segments []*Segment `json:"segments"`
}

// ScoredEntity is a similarity or recommendation hit.
type ScoredEntity struct {
	ID    int     `json:"id"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// CandidatesResponse is the response for a candidate query.
type CandidatesResponse struct {
	IDs       []int  `json:"ids"`
	Total     int    `json:"total"`
	QueryTime int64  `json:"query_time_ms"`
	Query     string `json:"query,omitempty"`
}

// SimilarResponse is the response for similarity and recommendation requests.
type SimilarResponse struct {
	ID        int             `json:"id"`
	Results   []*ScoredEntity `json:"results"`
	QueryTime int64           `json:"query_time_ms"`
}

// StatusResponse summarizes the database for the status endpoint and command.
type StatusResponse struct {
	Entities       int64  `json:"entities"`
	Sources        int64  `json:"sources"`
	Indexed        uint64 `json:"indexed"`
	Vectors        int    `json:"vectors"`
	Rows           int    `json:"rows"`
	Cols           int    `json:"cols"`
	Segments       int    `json:"segments"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
}
