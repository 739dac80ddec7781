package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
)

// GetSubscription returns the provider's current view of a subscription.
func (c *Client) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	if c == nil || c.subscriptions == nil {
		return nil, errors.New("stripe client not initialized")
	}
	id = strings.TrimSpace(id)
	if !strings.HasPrefix(id, "sub_") {
		return nil, fmt.Errorf("invalid stripe subscription id %q", id)
	}
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := c.subscriptions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get stripe subscription: %w", err)
	}
	return sub, nil
}
