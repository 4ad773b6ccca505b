package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// webhookChangeType is the only change type Graph supports for drive-item
// subscriptions ("updated" covers create/update/delete notifications alike;
// there is no finer granularity).
const webhookChangeType = "updated"

// subscriptionRequest is the JSON body for POST /subscriptions.
type subscriptionRequest struct {
	ChangeType         string    `json:"changeType"`
	NotificationURL    string    `json:"notificationUrl"`
	Resource           string    `json:"resource"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
	ClientState        string    `json:"clientState"`
}

// subscriptionResponse mirrors the Graph API subscription resource shape.
type subscriptionResponse struct {
	ID                 string    `json:"id"`
	Resource           string    `json:"resource"`
	ChangeType         string    `json:"changeType"`
	NotificationURL    string    `json:"notificationUrl"`
	ExpirationDateTime time.Time `json:"expirationDateTime"`
	ClientState        string    `json:"clientState"`
}

func (s *subscriptionResponse) toSubscription() Subscription {
	return Subscription{
		ID:                 s.ID,
		Resource:           s.Resource,
		ChangeType:         s.ChangeType,
		NotificationURL:    s.NotificationURL,
		ExpirationDateTime: s.ExpirationDateTime,
		ClientState:        s.ClientState,
	}
}

// CreateSubscription registers a webhook for changes under resource (e.g.
// "/drives/{id}/root"), to be notified at notificationURL until expiration.
// clientState is generated internally (a random UUID) so the caller never
// has to manage CSRF-style correlation state itself; the returned
// Subscription.ClientState is what the receiver must echo-validate on each
// notification.
func (c *Client) CreateSubscription(
	ctx context.Context, resource, notificationURL string, expiration time.Time,
) (*Subscription, error) {
	clientState := uuid.NewString()

	c.logger.Info("creating webhook subscription",
		slog.String("resource", resource),
		slog.String("notification_url", notificationURL),
		slog.Time("expiration", expiration),
	)

	reqBody := subscriptionRequest{
		ChangeType:         webhookChangeType,
		NotificationURL:    notificationURL,
		Resource:           resource,
		ExpirationDateTime: expiration,
		ClientState:        clientState,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling subscription request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, "/subscriptions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var sr subscriptionResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&sr); decErr != nil {
		return nil, fmt.Errorf("graph: decoding subscription response: %w", decErr)
	}

	sub := sr.toSubscription()

	return &sub, nil
}

// renewSubscriptionRequest is the JSON body for PATCH subscriptionUrl/{id}:
// only the expiration is renewable.
type renewSubscriptionRequest struct {
	ExpirationDateTime time.Time `json:"expirationDateTime"`
}

// RenewSubscription extends an existing subscription's expiration.
func (c *Client) RenewSubscription(ctx context.Context, subscriptionID string, newExpiration time.Time) (*Subscription, error) {
	c.logger.Info("renewing webhook subscription",
		slog.String("subscription_id", subscriptionID),
		slog.Time("new_expiration", newExpiration),
	)

	path := "/subscriptions/" + subscriptionID

	bodyBytes, err := json.Marshal(renewSubscriptionRequest{ExpirationDateTime: newExpiration})
	if err != nil {
		return nil, fmt.Errorf("graph: marshaling renew-subscription request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPatch, path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var sr subscriptionResponse
	if decErr := json.NewDecoder(resp.Body).Decode(&sr); decErr != nil {
		return nil, fmt.Errorf("graph: decoding renewed subscription response: %w", decErr)
	}

	sub := sr.toSubscription()

	return &sub, nil
}

// DeleteSubscription cancels a webhook subscription.
func (c *Client) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	c.logger.Info("deleting webhook subscription", slog.String("subscription_id", subscriptionID))

	resp, err := c.Do(ctx, http.MethodDelete, "/subscriptions/"+subscriptionID, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return nil
}
