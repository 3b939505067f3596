package convert

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyFrame marks a frame with no payload; read loops skip these
	// without logging.
	ErrEmptyFrame = errors.New("empty frame")
	// ErrUnknownType marks a well-formed frame whose discriminator is not in
	// the known set; read loops log and continue.
	ErrUnknownType = errors.New("unknown message type")
)

// wireMessage covers both transports' shapes: the chunked stream carries
// progress fields inline, the socket nests them under "data".
type wireMessage struct {
	Type       string            `json:"type"`
	Stage      string            `json:"stage"`
	Percent    *float64          `json:"progress"`
	StageIndex *int              `json:"stage_index"`
	Data       *wireProgressData `json:"data"`
	Content    string            `json:"content"`
	Page       int               `json:"page"`
	Timestamp  string            `json:"timestamp"`
	Error      string            `json:"error"`
	Result     *Result           `json:"result"`
}

type wireProgressData struct {
	Percent           *float64 `json:"progress"`
	StageIndex        *int     `json:"stage_index"`
	CurrentPage       int      `json:"current_page"`
	TotalPages        int      `json:"total_pages"`
	PagesTotal        int      `json:"pages_total"`
	TransactionsFound int      `json:"transactions_found"`
}

// Decode parses one text frame into an Event. It is a pure transform: the
// same frame always yields the same event, and no frame makes it panic.
func Decode(frame []byte) (*Event, error) {
	trimmed := strings.TrimSpace(string(frame))
	if trimmed == "" {
		return nil, ErrEmptyFrame
	}

	var msg wireMessage
	if err := json.Unmarshal([]byte(trimmed), &msg); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch EventType(msg.Type) {
	case EventProgress:
		p := &Progress{
			Stage:      msg.Stage,
			Percent:    msg.Percent,
			StageIndex: msg.StageIndex,
		}
		if d := msg.Data; d != nil {
			if d.Percent != nil {
				p.Percent = d.Percent
			}
			if d.StageIndex != nil {
				p.StageIndex = d.StageIndex
			}
			p.CurrentPage = d.CurrentPage
			p.TotalPages = d.TotalPages
			if p.TotalPages == 0 {
				p.TotalPages = d.PagesTotal
			}
			p.TransactionsFound = d.TransactionsFound
		}
		return &Event{Type: EventProgress, Progress: p}, nil
	case EventLiveOutput:
		return &Event{Type: EventLiveOutput, Output: &LiveOutput{
			Content:   msg.Content,
			Page:      msg.Page,
			Timestamp: msg.Timestamp,
		}}, nil
	case EventError:
		return &Event{Type: EventError, Message: msg.Error}, nil
	case EventCompletion:
		if msg.Result == nil {
			return nil, fmt.Errorf("decode frame: completion without result")
		}
		return &Event{Type: EventCompletion, Result: msg.Result}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}

// startMessage is the socket transport's job-start request.
type startMessage struct {
	Type          string   `json:"type"`
	Token         string   `json:"token"`
	FileData      string   `json:"file_data"`
	OutputFormats []string `json:"output_formats"`
}

// EncodeStart serializes the request that begins a conversion over the socket
// transport. The file payload is sent base64-encoded with no data-URI prefix.
func EncodeStart(j *Job, token string) ([]byte, error) {
	if token == "" {
		return nil, fmt.Errorf("encode start: missing auth token")
	}
	return json.Marshal(startMessage{
		Type:          "start_conversion",
		Token:         token,
		FileData:      base64.StdEncoding.EncodeToString(j.Data),
		OutputFormats: j.Formats,
	})
}

// DecodeFileData reverses a text-safe file payload. It tolerates a data-URI
// prefix (data:<mime>;base64,) so payloads round-trip regardless of which
// side encoded them.
func DecodeFileData(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.IndexByte(s, ','); i >= 0 {
			s = s[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode file data: %w", err)
	}
	return data, nil
}
