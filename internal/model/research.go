package model

// Field types for structured research output.
type FieldType string

const (
	FieldText       FieldType = "text"
	FieldNumeric    FieldType = "numeric"
	FieldYesNo      FieldType = "yes_no"
	FieldURL        FieldType = "url"
	FieldBoolean    FieldType = "boolean"
	FieldCustomEnum FieldType = "custom_enum"
)

// FieldTypeDescriptions backs the /field-types endpoint.
var FieldTypeDescriptions = map[FieldType]string{
	FieldText:       "Text (any string)",
	FieldNumeric:    "Number (integer or decimal)",
	FieldYesNo:      "Yes/No/Unknown",
	FieldURL:        "Website URL",
	FieldBoolean:    "True/False",
	FieldCustomEnum: "Custom dropdown (define options)",
}

// ResearchField configures one output column of a research run.
type ResearchField struct {
	Name        string    `json:"name" validate:"required"`
	Type        FieldType `json:"type" validate:"omitempty,oneof=text numeric yes_no url boolean custom_enum"`
	Description string    `json:"description,omitempty"`
	Optional    bool      `json:"optional,omitempty"`
	EnumValues  []string  `json:"enumValues,omitempty"`
}

type CSVUploadResponse struct {
	SessionID  string     `json:"sessionId"`
	TotalRows  int        `json:"totalRows"`
	SampleData [][]string `json:"sampleData"`
	HasHeader  bool       `json:"hasHeader"`
}

// RunResearchRequest starts a research run. Rows come either from a prior
// upload session or inline.
type RunResearchRequest struct {
	SessionID string          `json:"sessionId,omitempty"`
	CSVData   [][]string      `json:"csvData,omitempty"`
	Fields    []ResearchField `json:"fields" validate:"required,min=1,dive"`
}

type RunResearchResponse struct {
	RunID string `json:"runId"`
}

// ResearchProgress is the live batch progress of one run.
type ResearchProgress struct {
	Total            int `json:"total"`
	Completed        int `json:"completed"`
	BatchesTotal     int `json:"batchesTotal"`
	BatchesCompleted int `json:"batchesCompleted"`
}

type ResearchResultsResponse struct {
	Results []map[string]string `json:"results"`
	Total   int                 `json:"total"`
}

type StopResearchResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ResearchStats is attached to the terminal job update of a research run.
type ResearchStats struct {
	TotalRecords int    `json:"totalRecords"`
	ResultsCount int    `json:"resultsCount"`
	Filename     string `json:"filename,omitempty"`
}

type RunHistoryEntry struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	TotalRecords int    `json:"totalRecords"`
	ResultsCount int    `json:"resultsCount"`
	Status       string `json:"status"`
	Filename     string `json:"filename,omitempty"`
}

type CacheStats struct {
	MirrorEnabled bool   `json:"mirrorEnabled"`
	Bucket        string `json:"bucket,omitempty"`
}

type HistoryResponse struct {
	Runs       []RunHistoryEntry `json:"runs"`
	CacheStats CacheStats        `json:"cacheStats"`
}

type DeleteRunsRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

type DeleteRunsResponse struct {
	Success      bool `json:"success"`
	DeletedCount int  `json:"deletedCount"`
}
