package whatsapp

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorClass groups gateway error codes by how the caller should react.
type ErrorClass int

const (
	ClassOther ErrorClass = iota
	// ClassTemplateRejected covers missing, paused, disabled or mis-parameterised templates.
	ClassTemplateRejected
	// ClassCredentialInvalid covers expired or revoked tokens and missing permissions.
	ClassCredentialInvalid
	// ClassRecipientMisconfigured covers a bad sender id or an unreachable recipient.
	ClassRecipientMisconfigured
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTemplateRejected:
		return "template_rejected"
	case ClassCredentialInvalid:
		return "credential_invalid"
	case ClassRecipientMisconfigured:
		return "recipient_misconfigured"
	default:
		return "other"
	}
}

// APIError is the structured error returned by the gateway on non-2xx responses.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp gateway error %d (http %d): %s", e.Code, e.HTTPStatus, e.Message)
}

// Class maps the numeric code onto an ErrorClass.
func (e *APIError) Class() ErrorClass {
	switch {
	case e.Code >= 132000 && e.Code <= 132999:
		return ClassTemplateRejected
	case e.Code == 0 && e.Type == "OAuthException",
		e.Code == 10,
		e.Code == 190,
		e.Code >= 200 && e.Code <= 299:
		return ClassCredentialInvalid
	case e.Code == 100, e.Code == 131009, e.Code == 131030, e.Code == 133010:
		return ClassRecipientMisconfigured
	default:
		return ClassOther
	}
}

// Classify returns the class of err, or ClassOther for transport failures.
func Classify(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class()
	}
	return ClassOther
}

func parseAPIError(status int, body []byte) *APIError {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil {
		return &APIError{HTTPStatus: status, Code: -1, Message: "unparseable gateway error response"}
	}
	envelope.Error.HTTPStatus = status
	return envelope.Error
}
