package history

import "github.com/007jayesh/parsesaas-go/internal/apperror"

type GetRequest struct {
	ID int64
}

func (r GetRequest) Validate() *apperror.AppError {
	if r.ID <= 0 {
		return apperror.New(apperror.BadRequest, "invalid conversion id")
	}
	return nil
}

type ListRequest struct {
	Status string
	Limit  int
}

func (r ListRequest) Validate() *apperror.AppError {
	switch Status(r.Status) {
	case "", StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
	default:
		return apperror.New(apperror.BadRequest, "invalid status filter")
	}
	if r.Limit < 0 {
		return apperror.New(apperror.BadRequest, "invalid limit")
	}
	return nil
}
