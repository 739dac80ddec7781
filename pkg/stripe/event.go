package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
)

// GetEvent fetches an event by id. Events read back from the API are
// authentic, so callers can skip signature checks for them.
func (c *Client) GetEvent(ctx context.Context, id string) (*stripe.Event, error) {
	if c == nil || c.events == nil {
		return nil, errors.New("stripe client not initialized")
	}
	id = strings.TrimSpace(id)
	if !strings.HasPrefix(id, "evt_") {
		return nil, fmt.Errorf("invalid stripe event id %q", id)
	}
	params := &stripe.EventParams{}
	params.Context = ctx
	evt, err := c.events.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get stripe event: %w", err)
	}
	return evt, nil
}
