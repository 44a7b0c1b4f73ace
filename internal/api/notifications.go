package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/nhle/agriassist/internal/model"
)

// ListNotifications fetches the caller's notification history. Records
// that fail validation are logged and skipped.
func (c *Client) ListNotifications(ctx context.Context) ([]model.Notification, error) {
	var data json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/notifications", nil, &data); err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}

	ns, skipped, err := DecodeNotifications(data)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	for _, e := range skipped {
		c.log.Warn().Err(e).Msg("skipping notification")
	}
	return ns, nil
}

// MarkNotificationRead marks a single notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	path := "/notifications/" + url.PathEscape(id)
	if err := c.call(ctx, http.MethodPut, path, nil, nil); err != nil {
		return fmt.Errorf("marking notification %s read: %w", id, err)
	}
	return nil
}

// ClearNotifications deletes every notification of the caller.
func (c *Client) ClearNotifications(ctx context.Context) error {
	if err := c.call(ctx, http.MethodDelete, "/notifications", nil, nil); err != nil {
		return fmt.Errorf("clearing notifications: %w", err)
	}
	return nil
}
