package convert

import (
	"fmt"

	"github.com/google/uuid"
)

// Mode selects the backend processing pipeline.
type Mode string

const (
	ModeFast     Mode = "fast"
	ModeAccurate Mode = "accurate"
	ModeStandard Mode = "standard"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeFast, ModeAccurate, ModeStandard:
		return true
	}
	return false
}

// Output formats understood by the backend.
const (
	FormatCSV   = "csv"
	FormatExcel = "excel"
	FormatJSON  = "json"
)

// Job is one user-initiated conversion request. The session identifier is
// generated client-side before any network activity and stays fixed for the
// life of the job.
type Job struct {
	FileName  string
	MediaType string
	Data      []byte
	Formats   []string
	Mode      Mode
	SessionID string
}

func NewJob(fileName, mediaType string, data []byte, formats []string, mode Mode) (*Job, error) {
	if fileName == "" {
		return nil, fmt.Errorf("file name cannot be empty")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("file payload cannot be empty")
	}
	if len(formats) == 0 {
		formats = []string{FormatCSV}
	}
	if mode == "" {
		mode = ModeFast
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid processing mode: %s", mode)
	}
	return &Job{
		FileName:  fileName,
		MediaType: mediaType,
		Data:      data,
		Formats:   formats,
		Mode:      mode,
		SessionID: uuid.NewString(),
	}, nil
}
