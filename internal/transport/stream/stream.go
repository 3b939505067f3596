// Package stream implements the chunked-response transport: a single request
// whose response body is consumed incrementally as a sequence of blank-line
// delimited frames. It is single-shot; a drop mid-stream is not retried.
package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/007jayesh/parsesaas-go/internal/apperror"
	"github.com/007jayesh/parsesaas-go/internal/convert"
	"github.com/007jayesh/parsesaas-go/internal/transport"
)

const (
	defaultEndpoint = "http://localhost:8000/streaming/convert"

	// Frames of interest carry their JSON payload behind this marker.
	frameMarker    = "data: "
	frameDelimiter = "\n\n"

	readChunkSize = 4096
)

type Transport struct {
	client   *http.Client
	endpoint string
	token    string
}

func New(token string, opts ...Option) *Transport {
	t := &Transport{
		client:   http.DefaultClient,
		endpoint: defaultEndpoint,
		token:    token,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

type Option func(*Transport)

func WithClient(c *http.Client) Option {
	return func(t *Transport) { t.client = c }
}

func WithEndpoint(url string) Option {
	return func(t *Transport) { t.endpoint = url }
}

func (t *Transport) Name() string { return "stream" }

func (t *Transport) Streaming() bool { return true }

func (t *Transport) Run(ctx context.Context, job *convert.Job, emit func(convert.Event)) error {
	body, contentType, err := multipartBody(job)
	if err != nil {
		return fmt.Errorf("build request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+t.token)

	res, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("stream request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		msg := strings.TrimSpace(string(detail))
		if msg == "" {
			msg = fmt.Sprintf("unexpected status %d", res.StatusCode)
		}
		return apperror.FromStatus(res.StatusCode, msg)
	}

	slog.Debug("stream connected", "endpoint", t.endpoint, "session", job.SessionID)
	return t.readFrames(ctx, res.Body, emit)
}

// readFrames buffers partial data across reads and only decodes complete
// delimiter-terminated frames; the remainder stays buffered for the next read.
func (t *Transport) readFrames(ctx context.Context, body io.Reader, emit func(convert.Event)) error {
	var buf []byte
	chunk := make([]byte, readChunkSize)

	for {
		n, readErr := body.Read(chunk)
		buf = append(buf, chunk[:n]...)

		for {
			i := bytes.Index(buf, []byte(frameDelimiter))
			if i < 0 {
				break
			}
			frame := buf[:i]
			buf = buf[i+len(frameDelimiter):]

			ev, ok := decodeFrame(frame)
			if !ok {
				continue
			}
			emit(ev)
			if ev.Terminal() {
				return nil
			}
		}

		if readErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(readErr, io.EOF) {
				// End of body without a terminal event is a disconnect, not
				// a completion.
				return transport.ErrDisconnected
			}
			return fmt.Errorf("read stream: %w", readErr)
		}
	}
}

func decodeFrame(frame []byte) (convert.Event, bool) {
	line := strings.TrimSpace(string(frame))
	if !strings.HasPrefix(line, frameMarker) {
		return convert.Event{}, false
	}

	ev, err := convert.Decode([]byte(strings.TrimPrefix(line, frameMarker)))
	if err != nil {
		if !errors.Is(err, convert.ErrEmptyFrame) {
			slog.Debug("dropping undecodable frame", "error", err)
		}
		return convert.Event{}, false
	}
	return *ev, true
}

func multipartBody(job *convert.Job) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, job.FileName))
	if job.MediaType != "" {
		header.Set("Content-Type", job.MediaType)
	}
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(job.Data); err != nil {
		return nil, "", err
	}

	if err := w.WriteField("output_formats", strings.Join(job.Formats, ",")); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
