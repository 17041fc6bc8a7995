package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/dto"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
	appErrors "github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/errors"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/phone"
)

// ReferenceValidator checks a submitted batch and returns normalised
// candidates. It performs no I/O.
type ReferenceValidator struct {
	validator *validator.Validate
}

// NewReferenceValidator constructs the validator. A nil validate gets a fresh instance.
func NewReferenceValidator(validate *validator.Validate) *ReferenceValidator {
	if validate == nil {
		validate = validator.New()
	}
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &ReferenceValidator{validator: validate}
}

// Validate collects every problem in the batch into one validation error.
// voterContact is the owner's own number, used for self-reference rejection.
func (v *ReferenceValidator) Validate(voterContact string, req dto.SubmitReferencesRequest) ([]models.NewReference, error) {
	trimmed := dto.SubmitReferencesRequest{References: make([]dto.ReferenceInput, len(req.References))}
	for i, item := range req.References {
		trimmed.References[i] = dto.ReferenceInput{
			Name:    strings.TrimSpace(item.Name),
			Contact: strings.TrimSpace(item.Contact),
		}
	}
	if req.References == nil {
		trimmed.References = nil
	}

	var details []appErrors.FieldError
	flagged := make(map[string]bool)
	if err := v.validator.Struct(trimmed); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
		}
		for _, fe := range verrs {
			field := fieldPath(fe.Namespace())
			flagged[field] = true
			details = append(details, appErrors.FieldError{Field: field, Message: fieldMessage(fe)})
		}
	}
	if flagged["references"] {
		return nil, appErrors.Validation("invalid reference submission", details)
	}

	own, err := phone.Normalize(voterContact)
	if err != nil {
		own = voterContact
	}

	result := make([]models.NewReference, 0, len(trimmed.References))
	seen := make(map[string]int, len(trimmed.References))
	for i, item := range trimmed.References {
		field := fmt.Sprintf("references[%d].contact", i)
		if flagged[field] {
			continue
		}
		contact, err := phone.Normalize(item.Contact)
		if err != nil {
			details = append(details, appErrors.FieldError{Field: field, Message: "must be a valid 10-digit mobile number"})
			continue
		}
		if contact == own {
			details = append(details, appErrors.FieldError{Field: field, Message: "cannot reference your own contact number"})
			continue
		}
		if first, dup := seen[contact]; dup {
			details = append(details, appErrors.FieldError{
				Field:   field,
				Message: fmt.Sprintf("duplicates references[%d].contact", first),
			})
			continue
		}
		seen[contact] = i
		result = append(result, models.NewReference{Name: item.Name, Contact: contact})
	}

	if len(details) > 0 {
		return nil, appErrors.Validation("invalid reference submission", details)
	}
	return result, nil
}

// fieldPath turns "SubmitReferencesRequest.references[0].name" into "references[0].name".
func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must contain at least %s entry", fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s entries", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
