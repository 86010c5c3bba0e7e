package dto

// Result represents a generic API result
type Result struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// GraphSummary is the read-only view of the current graph version.
type GraphSummary struct {
	MaterialSet string `json:"material_set"`
	Version     uint64 `json:"version"`
	Nodes       int    `json:"nodes"`
	Edges       int    `json:"edges"`
	Clusters    int    `json:"clusters"`
	Checksum    string `json:"checksum"`
}
