package stripe

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v84"
)

// Checkout session modes.
const (
	ModePayment      = string(stripe.CheckoutSessionModePayment)
	ModeSubscription = string(stripe.CheckoutSessionModeSubscription)
)

// CheckoutLineItem describes a single purchasable line. Either PriceID or the
// inline price fields (Currency, UnitAmount, ProductName) are set.
type CheckoutLineItem struct {
	PriceID       string
	Currency      string
	UnitAmount    int64
	ProductName   string
	ProductImages []string
	Quantity      int64
}

// CheckoutSessionRequest is the provider-neutral shape of a hosted checkout session.
type CheckoutSessionRequest struct {
	Mode                 string
	CustomerID           string
	PaymentMethodTypes   []string
	LineItems            []CheckoutLineItem
	SuccessURL           string
	CancelURL            string
	Metadata             map[string]string
	SubscriptionMetadata map[string]string
}

// CheckoutSession is the subset of the provider response callers need.
// URL may be empty when the provider does not return a hosted page.
type CheckoutSession struct {
	ID  string
	URL string
}

// CreateCheckoutSession submits the request to Stripe. Each call creates a new session.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error) {
	if c == nil || c.sessions == nil {
		return nil, errors.New("stripe client not initialized")
	}
	params, err := BuildCheckoutSessionParams(req)
	if err != nil {
		return nil, err
	}
	params.Context = ctx

	sess, err := c.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// BuildCheckoutSessionParams translates a request into Stripe API params.
func BuildCheckoutSessionParams(req CheckoutSessionRequest) (*stripe.CheckoutSessionParams, error) {
	switch req.Mode {
	case ModePayment, ModeSubscription:
	default:
		return nil, fmt.Errorf("unsupported checkout mode %q", req.Mode)
	}
	if len(req.LineItems) == 0 {
		return nil, errors.New("checkout session requires at least one line item")
	}

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(req.Mode),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if len(req.PaymentMethodTypes) > 0 {
		params.PaymentMethodTypes = stripe.StringSlice(req.PaymentMethodTypes)
	}
	for _, item := range req.LineItems {
		lineItem, err := buildLineItem(item)
		if err != nil {
			return nil, err
		}
		params.LineItems = append(params.LineItems, lineItem)
	}
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}
	if len(req.SubscriptionMetadata) > 0 {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: req.SubscriptionMetadata,
		}
	}
	return params, nil
}

func buildLineItem(item CheckoutLineItem) (*stripe.CheckoutSessionLineItemParams, error) {
	quantity := item.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	if item.PriceID != "" {
		return &stripe.CheckoutSessionLineItemParams{
			Price:    stripe.String(item.PriceID),
			Quantity: stripe.Int64(quantity),
		}, nil
	}
	if item.Currency == "" {
		return nil, errors.New("line item currency is required")
	}
	if item.UnitAmount < 0 {
		return nil, errors.New("line item unit amount must not be negative")
	}
	productData := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
		Name: stripe.String(item.ProductName),
	}
	if len(item.ProductImages) > 0 {
		productData.Images = stripe.StringSlice(item.ProductImages)
	}
	return &stripe.CheckoutSessionLineItemParams{
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:    stripe.String(item.Currency),
			UnitAmount:  stripe.Int64(item.UnitAmount),
			ProductData: productData,
		},
		Quantity: stripe.Int64(quantity),
	}, nil
}
