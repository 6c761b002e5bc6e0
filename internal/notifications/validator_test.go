package notifications

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Valid(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		n       Notification
		wantID  string
		wantKey string
	}{
		{"order", Notification{Topic: TopicOrders, Resource: "/orders/2000001234"}, "2000001234", "order:2000001234"},
		{"order with query", Notification{Topic: TopicOrders, Resource: "/orders/555?attempt=2"}, "555", "order:555"},
		{"item", Notification{Topic: TopicItems, Resource: "/items/MLA123"}, "MLA123", "item:MLA123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := v.Validate(tt.n)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, target.ID)
			assert.Equal(t, tt.wantKey, target.Key())
		})
	}
}

func TestValidate_Invalid(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name      string
		n         Notification
		wantField string
	}{
		{"unsupported topic", Notification{Topic: "questions", Resource: "/questions/1"}, "topic"},
		{"missing topic", Notification{Resource: "/orders/1"}, "topic"},
		{"missing resource", Notification{Topic: TopicOrders}, "resource"},
		{"relative resource", Notification{Topic: TopicOrders, Resource: "orders/1"}, "resource"},
		{"topic mismatch", Notification{Topic: TopicOrders, Resource: "/items/MLA1"}, "resource"},
		{"missing id", Notification{Topic: TopicItems, Resource: "/items/"}, "resource"},
		{"nested path", Notification{Topic: TopicOrders, Resource: "/orders/1/billing_info"}, "resource"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.n)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

func TestDecode(t *testing.T) {
	v := NewValidator()

	n, target, err := v.Decode([]byte(`{"topic":"orders_v2","resource":"/orders/555","user_id":123,"attempts":1}`))
	require.NoError(t, err)
	assert.Equal(t, int64(123), n.UserID)
	assert.Equal(t, "555", target.ID)

	_, _, err = v.Decode([]byte(`not json`))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "body", ve.Field)
}

func TestBind(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := NewValidator()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"topic":"items","resource":"/items/MLA9"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	_, target, err := Bind(c, v)
	require.NoError(t, err)
	assert.Equal(t, "item:MLA9", target.Key())
	assert.False(t, c.Writer.Written())
}
