// Package api is the client for the backend's plain REST surface: accounts,
// credit balance, the non-streaming conversion endpoint, and result download.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/007jayesh/parsesaas-go/internal/apperror"
	"github.com/007jayesh/parsesaas-go/internal/convert"
)

const defaultBaseURL = "http://localhost:8000"

type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Credits   int    `json:"credits"`
	Plan      string `json:"plan"`
	CreatedAt string `json:"created_at"`
}

// Session is the authenticated session returned by login and registration.
type Session struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

func New(opts ...Option) *Client {
	c := &Client{
		baseURL: defaultBaseURL,
		http:    http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// SetToken replaces the bearer credential used on authenticated calls.
func (c *Client) SetToken(token string) { c.token = token }

func (c *Client) Register(ctx context.Context, name, email, password string) (*Session, error) {
	body := map[string]string{"name": name, "email": email, "password": password}
	var s Session
	if err := c.postJSON(ctx, "/auth/register", body, &s); err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	c.token = s.AccessToken
	return &s, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	var s Session
	if err := c.postJSON(ctx, "/auth/login", body, &s); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	c.token = s.AccessToken
	return &s, nil
}

// Me returns the current account, including the credit balance.
func (c *Client) Me(ctx context.Context) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/me", nil)
	if err != nil {
		return nil, err
	}
	c.setAuth(req)

	var u User
	if err := c.do(req, &u); err != nil {
		return nil, fmt.Errorf("get current user: %w", err)
	}
	return &u, nil
}

// Convert runs a conversion over the plain request/response endpoint. No
// intermediate events are delivered; the call blocks until the backend
// returns the finished result.
func (c *Client) Convert(ctx context.Context, job *convert.Job) (*convert.Result, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, job.FileName))
	if job.MediaType != "" {
		header.Set("Content-Type", job.MediaType)
	}
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := part.Write(job.Data); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if err := w.WriteField("output_formats", strings.Join(job.Formats, ",")); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if err := w.WriteField("config", string(job.Mode)); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/table-convert/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	c.setAuth(req)

	slog.Debug("uploading for conversion", "file", job.FileName, "formats", job.Formats, "mode", job.Mode)

	var result convert.Result
	if err := c.do(req, &result); err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}
	return &result, nil
}

// Download fetches a finished conversion in the given format.
func (c *Client) Download(ctx context.Context, conversionID, format string) ([]byte, error) {
	url := fmt.Sprintf("%s/convert/download/%s/%s", c.baseURL, conversionID, format)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	c.setAuth(req)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: %w", statusError(res))
	}
	return io.ReadAll(res.Body)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusUnauthorized {
		return apperror.New(apperror.Auth, "token expired")
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return statusError(res)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// statusError extracts the backend's detail message, falling back to a
// generic one when the body carries none.
func statusError(res *http.Response) error {
	var er errorResponse
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	if err := json.Unmarshal(body, &er); err == nil && er.Detail != "" {
		return apperror.FromStatus(res.StatusCode, er.Detail)
	}
	return apperror.FromStatus(res.StatusCode, fmt.Sprintf("request failed with status %d", res.StatusCode))
}

func (c *Client) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
