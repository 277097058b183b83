package model

// MergeJobPayload is the task body for a merge job. Exactly one of the
// local-path pair and the R2-key pair is set.
type MergeJobPayload struct {
	PathA string `json:"pathA,omitempty"`
	PathB string `json:"pathB,omitempty"`
	KeyA  string `json:"keyA,omitempty"`
	KeyB  string `json:"keyB,omitempty"`

	JoinType        JoinType `json:"joinType"`
	LeftKey         string   `json:"leftKey"`
	RightKey        string   `json:"rightKey"`
	SelectedColumns []string `json:"selectedColumns,omitempty"`
}

// ValidationJobPayload is the task body for an email validation job. Key is
// set for files staged in R2, Path for direct multipart uploads.
type ValidationJobPayload struct {
	Key         string `json:"key,omitempty"`
	Path        string `json:"path,omitempty"`
	EmailColumn string `json:"emailColumn"`
}
