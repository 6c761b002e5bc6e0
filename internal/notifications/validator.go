package notifications

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// Validator checks notifications and resolves their target.
type Validator struct {
	v *validatorv10.Validate
}

// NewValidator returns a validator with the resource/topic rule registered.
func NewValidator() *Validator {
	v := validatorv10.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterStructValidation(resourceMatchesTopic, Notification{})
	return &Validator{v: v}
}

func resourceMatchesTopic(sl validatorv10.StructLevel) {
	n := sl.Current().Interface().(Notification)
	if _, ok := resourcePrefix[n.Topic]; !ok {
		return
	}
	if _, ok := resourceID(n.Topic, n.Resource); !ok {
		sl.ReportError(n.Resource, "resource", "Resource", "resource_matches_topic", n.Topic)
	}
}

// Validate returns the notification's target or a *ValidationError.
func (v *Validator) Validate(n Notification) (Target, error) {
	if err := v.v.Struct(n); err != nil {
		return Target{}, toValidationError(err)
	}
	id, _ := resourceID(n.Topic, n.Resource)
	return Target{Topic: n.Topic, ID: id}, nil
}

// Decode parses a queued notification body and validates it.
func (v *Validator) Decode(body []byte) (Notification, Target, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return n, Target{}, &ValidationError{Field: "body", Reason: err.Error()}
	}
	t, err := v.Validate(n)
	return n, t, err
}

func toValidationError(err error) *ValidationError {
	var ve validatorv10.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		return &ValidationError{Field: fe.Field(), Reason: fe.Tag()}
	}
	return &ValidationError{Field: "notification", Reason: err.Error()}
}
