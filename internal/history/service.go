package history

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/007jayesh/parsesaas-go/internal/convert"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// RecoverInterrupted marks records left in the running state by an earlier
// process as failed. Called once at startup.
func (s *Service) RecoverInterrupted(ctx context.Context) error {
	n, err := s.repo.RecoverInterrupted(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("marked interrupted conversions as failed", "count", n)
	}
	return nil
}

// Begin records a freshly submitted job as running and returns the record.
func (s *Service) Begin(ctx context.Context, job *convert.Job, transport string) (*Conversion, error) {
	c := &Conversion{
		FileName:  job.FileName,
		Formats:   strings.Join(job.Formats, ","),
		Mode:      string(job.Mode),
		Transport: transport,
		Status:    StatusRunning,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Complete finalizes a record with the outcome of its job. The result is nil
// for failed and cancelled jobs.
func (s *Service) Complete(ctx context.Context, c *Conversion, status Status, result *convert.Result, errMsg string) error {
	c.Status = status
	c.Error = errMsg
	c.Duration = time.Since(c.CreatedAt).Seconds()
	if result != nil {
		c.ConversionID = result.ConversionID
		c.Pages = result.PagesProcessed
		c.CreditsUsed = result.CreditsUsed
		if result.ProcessingSeconds > 0 {
			c.Duration = result.ProcessingSeconds
		}
	}
	return s.repo.Update(ctx, c)
}

func (s *Service) Get(ctx context.Context, req GetRequest) (*Conversion, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, req.ID)
}

func (s *Service) List(ctx context.Context, req ListRequest) ([]Conversion, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, req.Status, req.Limit)
}
