package models

// Page is the extracted text of one PDF page (1-based)
type Page struct {
	Number int    `json:"page_number"`
	Text   string `json:"text"`
}

// ChunkMetadata locates a chunk inside its source document.
// CharStart/CharEnd are a half-open rune range in the trimmed page text.
type ChunkMetadata struct {
	DocID      string `json:"doc_id"`
	PageNumber int    `json:"page_number"`
	ChunkIndex int    `json:"chunk_index"`
	CharStart  int    `json:"char_start"`
	CharEnd    int    `json:"char_end"`
}

// Chunk is the unit of retrieval. Stored one per line in the chunk store.
type Chunk struct {
	ChunkID  string        `json:"chunk_id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// SyllabusTopic is a topic with its ordered subtopics
type SyllabusTopic struct {
	Title     string   `json:"title" yaml:"title"`
	Subtopics []string `json:"subtopics" yaml:"subtopics"`
}

// Syllabus is the topic structure extracted from study material
type Syllabus struct {
	Topics []SyllabusTopic `json:"topics" yaml:"topics"`
}
