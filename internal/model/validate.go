package model

// ValidateRequest is the synchronous small-batch MX validation request.
type ValidateRequest struct {
	Domains []string `json:"domains" validate:"required,min=1"`
}

type ValidateResponse struct {
	Results map[string]bool `json:"results"`
}

type UploadURLRequest struct {
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"contentType"`
}

type UploadURLResponse struct {
	UploadURL string `json:"uploadUrl"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expiresIn"`
}

type FilePreviewRequest struct {
	Key string `json:"key" validate:"required"`
}

type FilePreviewResponse struct {
	Columns  []string            `json:"columns"`
	RowCount int                 `json:"rowCount"`
	Preview  []map[string]string `json:"preview"`
}

// ValidationJobRequest starts a validation job over a file already in R2.
type ValidationJobRequest struct {
	Key         string `json:"key" validate:"required"`
	EmailColumn string `json:"emailColumn" validate:"required"`
}

type ValidationJobResponse struct {
	JobID string `json:"jobId"`
}

type DownloadURLResponse struct {
	DownloadURL string `json:"downloadUrl"`
}

// ValidationStats summarizes a completed email validation run.
type ValidationStats struct {
	Total          int `json:"total"`
	Valid          int `json:"valid"`
	InvalidFormat  int `json:"invalidFormat"`
	NoMX           int `json:"noMx"`
	DomainsChecked int `json:"domainsChecked"`
}
