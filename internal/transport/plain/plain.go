// Package plain adapts the request/response conversion endpoint to the
// transport contract. It delivers no intermediate events; the controller
// synthesizes progress while the single request is in flight.
package plain

import (
	"context"

	"github.com/007jayesh/parsesaas-go/internal/api"
	"github.com/007jayesh/parsesaas-go/internal/convert"
)

type Transport struct {
	client *api.Client
}

func New(client *api.Client) *Transport {
	return &Transport{client: client}
}

func (t *Transport) Name() string { return "plain" }

func (t *Transport) Streaming() bool { return false }

func (t *Transport) Run(ctx context.Context, job *convert.Job, emit func(convert.Event)) error {
	result, err := t.client.Convert(ctx, job)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	emit(convert.Event{Type: convert.EventCompletion, Result: result})
	return nil
}
