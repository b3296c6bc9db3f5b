package registry

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"keyledger/internal/model"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// IssueRequest is the input for IssueKey.
type IssueRequest struct {
	Name         string          `json:"name" validate:"min=3"`
	Type         model.KeyType   `json:"type" validate:"oneof=dev prod"`
	Status       model.KeyStatus `json:"status" validate:"oneof=active inactive"`
	MonthlyLimit int64           `json:"monthlyLimit" validate:"gte=1"`
}

// UpdateRequest is a partial edit. Nil fields are left unchanged.
type UpdateRequest struct {
	Name         *string          `json:"name,omitempty" validate:"omitempty,min=3"`
	Type         *model.KeyType   `json:"type,omitempty" validate:"omitempty,oneof=dev prod"`
	Status       *model.KeyStatus `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
	MonthlyLimit *int64           `json:"monthlyLimit,omitempty" validate:"omitempty,gte=1"`
}

// ListRequest selects a page of keys.
type ListRequest struct {
	Page   int    `json:"page" validate:"gte=1"`
	Limit  int    `json:"limit" validate:"gte=1,lte=100"`
	Search string `json:"search"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: []FieldError{{Field: "request", Message: err.Error()}}}
	}
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldError{Field: fe.Field(), Message: describe(fe)})
	}
	return &ValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func (r *IssueRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
}

func (r *UpdateRequest) normalize() {
	if r.Name != nil {
		trimmed := strings.TrimSpace(*r.Name)
		r.Name = &trimmed
	}
}

func (r *UpdateRequest) fields() map[string]any {
	fields := map[string]any{}
	if r.Name != nil {
		fields["name"] = *r.Name
	}
	if r.Type != nil {
		fields["type"] = *r.Type
	}
	if r.Status != nil {
		fields["status"] = *r.Status
	}
	if r.MonthlyLimit != nil {
		fields["monthly_limit"] = *r.MonthlyLimit
	}
	return fields
}
