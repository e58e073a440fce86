package store

import "time"

// DocType tags which source document a chunk came from.
type DocType string

const (
	DocTypeResume         DocType = "resume"
	DocTypeJobDescription DocType = "job_description"
	DocTypeOther          DocType = "other"
)

// ParseDocType maps unknown tags to DocTypeOther.
func ParseDocType(s string) DocType {
	switch DocType(s) {
	case DocTypeResume, DocTypeJobDescription:
		return DocType(s)
	default:
		return DocTypeOther
	}
}

type Session struct {
	ID             string    `json:"id"` // UUID
	ResumeText     string    `json:"-"`
	JobDescription string    `json:"-"`
	MatchScore     *float64  `json:"match_score"` // Nullable until analysed
	Strengths      []string  `json:"strengths"`
	Gaps           []string  `json:"gaps"`
	Insights       string    `json:"insights"`
	CreatedAt      time.Time `json:"created_at"`
}

type Chunk struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	DocType   DocType   `json:"doc_type"`
	Index     int       `json:"index"` // position within its own document
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
}

// RetrievedChunk records one chunk passed to generation for a chat turn.
type RetrievedChunk struct {
	ChunkIndex int     `json:"chunk_index"`
	DocType    DocType `json:"doc_type"`
	Score      float64 `json:"score"`
	Preview    string  `json:"preview"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a session's conversation log.
type Message struct {
	ID        string           `json:"id"` // UUID
	Seq       int64            `json:"-"`
	SessionID string           `json:"session_id"`
	Role      string           `json:"role"` // "user" or "assistant"
	Question  string           `json:"question"`
	Answer    string           `json:"answer,omitempty"`
	Retrieved []RetrievedChunk `json:"retrieved_chunks"`
	CreatedAt time.Time        `json:"created_at"`
}
