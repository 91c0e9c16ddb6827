// Package browser is the request/response channel to the live map page.
// At most one call is in flight at a time.
package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/maps-harvest/internal/model"
)

// Action names a page-context command.
type Action string

const (
	ActionExtractData        Action = "extractData"
	ActionClickNext          Action = "clickNext"
	ActionCheckProfileLoaded Action = "checkProfileLoaded"
)

// Request is one page-context command. Index is only used by clickNext.
type Request struct {
	Action Action `json:"action"`
	Index  int    `json:"index,omitempty"`
}

// Response carries the answer to a Request; which field is meaningful
// depends on the action.
type Response struct {
	Data     *model.BusinessRecord `json:"data,omitempty"`
	Success  bool                  `json:"success"`
	IsLoaded bool                  `json:"isLoaded"`
}

// Channel delivers requests to the page and awaits the response.
type Channel interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// ErrChannelUnavailable matches every *ChannelError via errors.Is.
var ErrChannelUnavailable = eris.New("page channel unavailable")

// ChannelError reports that the page could not be reached or the command
// failed inside it.
type ChannelError struct {
	Action Action
	Err    error
}

func (e *ChannelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("page channel %s: unavailable", e.Action)
	}
	return fmt.Sprintf("page channel %s: %v", e.Action, e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

// Is lets callers test errors.Is(err, ErrChannelUnavailable).
func (e *ChannelError) Is(target error) bool { return target == ErrChannelUnavailable }

// Client wraps a Channel with typed calls.
type Client struct {
	ch Channel
}

// NewClient creates a Client over ch.
func NewClient(ch Channel) *Client {
	return &Client{ch: ch}
}

// ExtractData runs the field extractor in the page. A page without a place
// profile yields a record with an empty name.
func (c *Client) ExtractData(ctx context.Context) (model.BusinessRecord, error) {
	resp, err := c.send(ctx, Request{Action: ActionExtractData})
	if err != nil || resp.Data == nil {
		return model.BusinessRecord{}, err
	}
	return *resp.Data, nil
}

// ClickNext focuses the result at index. It reports false when the results
// list has no item there.
func (c *Client) ClickNext(ctx context.Context, index int) (bool, error) {
	resp, err := c.send(ctx, Request{Action: ActionClickNext, Index: index})
	return resp.Success, err
}

// CheckProfileLoaded reports whether the detail pane shows the item most
// recently focused.
func (c *Client) CheckProfileLoaded(ctx context.Context) (bool, error) {
	resp, err := c.send(ctx, Request{Action: ActionCheckProfileLoaded})
	return resp.IsLoaded, err
}

func (c *Client) send(ctx context.Context, req Request) (Response, error) {
	if c == nil || c.ch == nil {
		return Response{}, &ChannelError{Action: req.Action}
	}
	resp, err := c.ch.Send(ctx, req)
	if err != nil {
		var ce *ChannelError
		if !errors.As(err, &ce) {
			err = &ChannelError{Action: req.Action, Err: err}
		}
		return Response{}, err
	}
	return resp, nil
}
