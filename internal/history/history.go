package history

import "time"

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Conversion is one locally recorded job: what was submitted, over which
// transport, and how it ended.
type Conversion struct {
	ID           int64     `json:"id"`
	FileName     string    `json:"fileName"`
	Formats      string    `json:"formats"`
	Mode         string    `json:"mode"`
	Transport    string    `json:"transport"`
	Status       Status    `json:"status"`
	ConversionID string    `json:"conversionId,omitempty"`
	Pages        int       `json:"pages"`
	CreditsUsed  int       `json:"creditsUsed"`
	Duration     float64   `json:"durationSeconds"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
