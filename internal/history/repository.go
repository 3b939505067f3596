package history

import "context"

type Repository interface {
	Create(ctx context.Context, c *Conversion) error
	Update(ctx context.Context, c *Conversion) error
	Get(ctx context.Context, id int64) (*Conversion, error)
	List(ctx context.Context, status string, limit int) ([]Conversion, error)
	RecoverInterrupted(ctx context.Context) (int64, error)
}
