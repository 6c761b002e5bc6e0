package notifications

import (
	"github.com/gin-gonic/gin"
)

// Bind decodes the request body into a Notification and validates it.
// It never writes a response; the webhook answers 200 whatever happens.
func Bind(c *gin.Context, v *Validator) (Notification, Target, error) {
	var n Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		return n, Target{}, &ValidationError{Field: "body", Reason: err.Error()}
	}
	t, err := v.Validate(n)
	return n, t, err
}
