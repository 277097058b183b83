package model

// Join types supported by the merge engine (standard relational semantics).
type JoinType string

const (
	JoinLeft  JoinType = "left"
	JoinRight JoinType = "right"
	JoinInner JoinType = "inner"
	JoinOuter JoinType = "outer"
)

// FileUploadResponse is returned after a merge-tool file upload.
type FileUploadResponse struct {
	Success      bool                `json:"success"`
	FileID       string              `json:"fileId"`
	FileName     string              `json:"fileName"`
	FileType     string              `json:"fileType"`
	Columns      []string            `json:"columns"`
	DTypes       map[string]string   `json:"dtypes"`
	RowCount     int                 `json:"rowCount"`
	Preview      []map[string]string `json:"preview"`
	UniqueCounts map[string]int      `json:"uniqueCounts"`
}

type PreviewMatchRequest struct {
	FileAID string `json:"fileAId" validate:"required"`
	FileBID string `json:"fileBId" validate:"required"`
	KeyA    string `json:"keyA" validate:"required"`
	KeyB    string `json:"keyB" validate:"required"`
}

type PreviewMatchResponse struct {
	Success      bool    `json:"success"`
	UniqueA      int     `json:"uniqueA"`
	UniqueB      int     `json:"uniqueB"`
	MatchCount   int     `json:"matchCount"`
	MatchPercent float64 `json:"matchPercent"`
}

type MergeRequest struct {
	FileAID         string   `json:"fileAId" validate:"required"`
	FileBID         string   `json:"fileBId" validate:"required"`
	JoinType        JoinType `json:"joinType" validate:"omitempty,oneof=left right inner outer"`
	LeftKey         string   `json:"leftKey" validate:"required"`
	RightKey        string   `json:"rightKey" validate:"required"`
	SelectedColumns []string `json:"selectedColumns,omitempty"`
}

// R2 variants accept object-store keys instead of local file identifiers so
// large files can bypass the application server for upload.

type R2PreviewRequest struct {
	Key string `json:"key" validate:"required"`
}

type R2MergeRequest struct {
	KeyA            string   `json:"keyA" validate:"required"`
	KeyB            string   `json:"keyB" validate:"required"`
	JoinType        JoinType `json:"joinType" validate:"omitempty,oneof=left right inner outer"`
	LeftKey         string   `json:"leftKey" validate:"required"`
	RightKey        string   `json:"rightKey" validate:"required"`
	SelectedColumns []string `json:"selectedColumns,omitempty"`
}

type MergeJobResponse struct {
	JobID string `json:"jobId"`
}

// MergeStats summarizes a completed merge.
type MergeStats struct {
	LeftRows   int    `json:"leftRows"`
	RightRows  int    `json:"rightRows"`
	OutputRows int    `json:"outputRows"`
	Matched    int    `json:"matched"`
	LeftOnly   int    `json:"leftOnly"`
	RightOnly  int    `json:"rightOnly"`
	JoinType   string `json:"joinType"`
}
