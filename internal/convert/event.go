package convert

import "encoding/json"

// EventType discriminates the messages both transports deliver. The values
// match the wire discriminator field.
type EventType string

const (
	EventProgress   EventType = "progress"
	EventLiveOutput EventType = "docling_output"
	EventError      EventType = "error"
	EventCompletion EventType = "completion"
)

// Progress is an incremental update for an active job. Percent and StageIndex
// are pointers because the backend omits them on some stages.
type Progress struct {
	Stage             string
	Percent           *float64
	StageIndex        *int
	CurrentPage       int
	TotalPages        int
	TransactionsFound int
}

// LiveOutput is a line of raw extraction output streamed while a page is
// being processed.
type LiveOutput struct {
	Content   string
	Page      int
	Timestamp string
}

// TableInfo describes one detected table in the converted document.
type TableInfo struct {
	Number     int              `json:"table_number"`
	Columns    []string         `json:"columns"`
	RowCount   int              `json:"row_count"`
	SampleRows []map[string]any `json:"sample_data,omitempty"`
}

// Result is the payload of a completion event. Per-format payloads are
// mutually optional; ExcelData is base64-encoded.
type Result struct {
	ConversionID      string          `json:"conversion_id"`
	Status            string          `json:"status"`
	CSVData           string          `json:"csv_data,omitempty"`
	ExcelData         string          `json:"excel_data,omitempty"`
	JSONData          json.RawMessage `json:"json_data,omitempty"`
	PagesProcessed    int             `json:"pages_processed"`
	CreditsUsed       int             `json:"credits_used"`
	ProcessingMethod  string          `json:"processing_method,omitempty"`
	ProcessingSeconds float64         `json:"processing_time_seconds,omitempty"`
	Tables            []TableInfo     `json:"table_info,omitempty"`
}

// Event is one decoded transport message. Exactly one of the variant fields
// is set, according to Type.
type Event struct {
	Type     EventType
	Progress *Progress
	Output   *LiveOutput
	Message  string // error text, EventError only
	Result   *Result
}

// Terminal reports whether the event ends the job.
func (e Event) Terminal() bool {
	return e.Type == EventError || e.Type == EventCompletion
}
