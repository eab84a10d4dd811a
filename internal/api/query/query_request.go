package api

type ContextRequest struct {
	Query     string `json:"query"`
	MaxChunks *int   `json:"max_chunks,omitempty"`
}

type ContextResponse struct {
	Context string `json:"context"`
}
