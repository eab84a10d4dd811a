package api

type SimpleQueryResponseContent struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Similarity float64 `json:"similarity"`
}

type SimpleQueryResponse struct {
	Results []SimpleQueryResponseContent `json:"results"`
}
