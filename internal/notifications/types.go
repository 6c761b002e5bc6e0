package notifications

import (
	"fmt"
	"strings"
)

// Supported topics.
const (
	TopicOrders = "orders_v2"
	TopicItems  = "items"
)

// Notification is the webhook payload sent by the marketplace.
type Notification struct {
	ID            string `json:"_id,omitempty"`
	Topic         string `json:"topic" validate:"required,oneof=orders_v2 items"`
	Resource      string `json:"resource" validate:"required,startswith=/"`
	UserID        int64  `json:"user_id,omitempty"`
	ApplicationID int64  `json:"application_id,omitempty"`
	Attempts      int    `json:"attempts,omitempty"`
	Sent          string `json:"sent,omitempty"`
	Received      string `json:"received,omitempty"`
}

// Target is the resource a valid notification points at.
type Target struct {
	Topic string
	ID    string
}

// Key is the serialization key for work on this target.
func (t Target) Key() string {
	if t.Topic == TopicItems {
		return "item:" + t.ID
	}
	return "order:" + t.ID
}

// ValidationError marks a notification that can never be processed.
// It is logged and dropped, never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid notification %s: %s", e.Field, e.Reason)
}

var resourcePrefix = map[string]string{
	TopicOrders: "orders",
	TopicItems:  "items",
}

// resourceID extracts the id from "/orders/{id}" or "/items/{id}".
func resourceID(topic, resource string) (string, bool) {
	if i := strings.IndexAny(resource, "?#"); i >= 0 {
		resource = resource[:i]
	}
	parts := strings.Split(strings.Trim(resource, "/"), "/")
	if len(parts) != 2 || parts[0] != resourcePrefix[topic] || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
