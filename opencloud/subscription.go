package opencloud

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"rblxcloud/utils"
)

// SubscriptionState is the renewal state of a subscription
type SubscriptionState int

const (
	SubscriptionStateUnknown SubscriptionState = iota
	SubscriptionStateActive
	SubscriptionStatePendingCancelation
	SubscriptionStatePendingRenewal
	SubscriptionStateExpired
)

var subscriptionStateStrings = map[string]SubscriptionState{
	"SUBSCRIBED_WILL_RENEW":              SubscriptionStateActive,
	"SUBSCRIBED_WILL_NOT_RENEW":          SubscriptionStatePendingCancelation,
	"SUBSCRIBED_RENEWAL_PAYMENT_PENDING": SubscriptionStatePendingRenewal,
	"EXPIRED":                            SubscriptionStateExpired,
}

// PaymentProvider is how a subscription was paid for
type PaymentProvider int

const (
	PaymentProviderUnknown PaymentProvider = iota
	PaymentProviderRobloxCredit
	PaymentProviderStripe
	PaymentProviderGoogle
	PaymentProviderApple
)

var paymentProviderStrings = map[string]PaymentProvider{
	"ROBLOX_CREDIT": PaymentProviderRobloxCredit,
	"STRIPE":        PaymentProviderStripe,
	"GOOGLE":        PaymentProviderGoogle,
	"APPLE":         PaymentProviderApple,
}

// Platform is the device a subscription was purchased on
type Platform int

const (
	PlatformUnknown Platform = iota
	PlatformDesktop
	PlatformMobile
)

var platformStrings = map[string]Platform{
	"DESKTOP": PlatformDesktop,
	"MOBILE":  PlatformMobile,
}

// SubscriptionExpirationReason explains why a subscription ended
type SubscriptionExpirationReason int

const (
	ExpirationReasonUnknown SubscriptionExpirationReason = iota
	ExpirationReasonCancelled
	ExpirationReasonRefunded
	ExpirationReasonLapsed
	ExpirationReasonProductInactive
	ExpirationReasonProductDeleted
)

var expirationReasonStrings = map[string]SubscriptionExpirationReason{
	"SUBSCRIBER_CANCELLED": ExpirationReasonCancelled,
	"SUBSCRIBER_REFUNDED":  ExpirationReasonRefunded,
	"LAPSED":               ExpirationReasonLapsed,
	"PRODUCT_INACTIVE":     ExpirationReasonProductInactive,
	"PRODUCT_DELETED":      ExpirationReasonProductDeleted,
}

// Subscription is a user's subscription to an experience subscription product
type Subscription struct {
	UserID           int64
	ProductID        string
	Active           bool
	WillRenew        bool
	State            SubscriptionState
	Created          time.Time
	Updated          time.Time
	LastBilled       time.Time
	PeriodEnd        time.Time
	PaymentProvider  PaymentProvider
	PurchasePlatform Platform
	// ExpirationReason is nil unless the subscription expired or a reason was given
	ExpirationReason *SubscriptionExpirationReason
}

type rawSubscription struct {
	Path              string `json:"path"`
	Active            bool   `json:"active"`
	WillRenew         bool   `json:"willRenew"`
	State             string `json:"state"`
	CreateTime        string `json:"createTime"`
	UpdateTime        string `json:"updateTime"`
	LastBillingTime   string `json:"lastBillingTime"`
	ExpireTime        string `json:"expireTime"`
	NextRenewTime     string `json:"nextRenewTime"`
	PaymentProvider   string `json:"paymentProvider"`
	PurchasePlatform  string `json:"purchasePlatform"`
	ExpirationDetails struct {
		Reason string `json:"reason"`
	} `json:"expirationDetails"`
}

func decodeSubscription(body []byte) (*Subscription, error) {
	var data rawSubscription
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("failed to decode subscription: %w", err)
	}

	sub := &Subscription{
		Active:           data.Active,
		WillRenew:        data.WillRenew,
		State:            subscriptionStateStrings[data.State],
		Created:          parseTime(data.CreateTime),
		Updated:          parseTime(data.UpdateTime),
		LastBilled:       parseTime(data.LastBillingTime),
		PaymentProvider:  paymentProviderStrings[data.PaymentProvider],
		PurchasePlatform: platformStrings[data.PurchasePlatform],
	}
	if data.ExpireTime != "" {
		sub.PeriodEnd = parseTime(data.ExpireTime)
	} else {
		sub.PeriodEnd = parseTime(data.NextRenewTime)
	}

	if rp, err := utils.ParseResourcePath(data.Path); err == nil {
		sub.UserID, _ = rp.ID("subscriptions")
		sub.ProductID, _ = rp.Get("subscription-products")
	}

	reason := data.ExpirationDetails.Reason
	if reason != "" && (sub.State == SubscriptionStateExpired || reason != "EXPIRATION_REASON_UNSPECIFIED") {
		r := expirationReasonStrings[reason]
		sub.ExpirationReason = &r
	}
	return sub, nil
}

// FetchSubscription fetches a user's subscription to productID
func (e *Experience) FetchSubscription(ctx context.Context, productID string, userID int64) (*Subscription, error) {
	resp, err := e.client.Do(ctx, &Request{
		Method: http.MethodGet,
		Path: fmt.Sprintf("/universes/%d/subscription-products/%s/subscriptions/%d",
			e.ID, url.PathEscape(productID), userID),
		Query:          Params{"view": "FULL"},
		ExpectedStatus: []int{http.StatusOK},
	})
	if err != nil {
		return nil, err
	}
	return decodeSubscription(resp.Body)
}
