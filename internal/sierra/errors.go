package sierra

import (
	"fmt"
)

const (
	invalidInputErrorTemplateConstant             = "%s: %s"
	authenticationErrorTemplateConstant           = "authentication against %s failed: %s"
	requestErrorTemplateConstant                  = "%s request failed: %s"
	requestStatusErrorTemplateConstant            = "%s request failed with status %d: %s"
	responseFormatErrorTemplateConstant           = "%s response has unexpected format: %s"
	requiredValueMessageConstant                  = "value required"
	clientIDFieldNameConstant                     = "client_id"
	clientSecretFieldNameConstant                 = "client_secret"
	baseURLFieldNameConstant                      = "base_url"
	patronLinkFieldNameConstant                   = "patron_link"
	limitFieldNameConstant                        = "limit"
	offsetFieldNameConstant                       = "offset"
	positiveValueRequiredMessageConstant          = "must be positive"
	nonNegativeValueRequiredMessageConstant       = "must not be negative"
	httpClientNotConfiguredMessageConstant        = "http client not configured"
	totalFieldMissingMessageConstant              = "total field missing"
	entriesFieldMissingTemplateConstant           = "total is %d but entries are missing"
	entryLinkMissingTemplateConstant              = "entry %d has no link"
	negativeTotalTemplateConstant                 = "total is negative: %d"
	responseBodySnippetLimitConstant        int64 = 4096
)

// OperationName identifies a Sierra API call for error reporting.
type OperationName string

// Operations reported in RequestError and ResponseFormatError.
const (
	OperationQueryPatrons     OperationName = "QueryPatrons"
	OperationUpdatePatronType OperationName = "UpdatePatronType"
)

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// AuthenticationError reports a rejected or unreachable token endpoint.
type AuthenticationError struct {
	TokenURL string
	Cause    error
}

// Error describes the authentication failure.
func (authenticationError AuthenticationError) Error() string {
	return fmt.Sprintf(authenticationErrorTemplateConstant, authenticationError.TokenURL, authenticationError.Cause)
}

// Unwrap exposes the underlying cause.
func (authenticationError AuthenticationError) Unwrap() error {
	return authenticationError.Cause
}

// RequestError reports a transport failure or a non-2xx response.
// StatusCode is zero when no response was received.
type RequestError struct {
	Operation  OperationName
	StatusCode int
	Body       string
	Cause      error
}

// Error describes the request failure.
func (requestError RequestError) Error() string {
	if requestError.StatusCode != 0 {
		return fmt.Sprintf(requestStatusErrorTemplateConstant, requestError.Operation, requestError.StatusCode, requestError.Body)
	}
	return fmt.Sprintf(requestErrorTemplateConstant, requestError.Operation, requestError.Cause)
}

// Unwrap exposes the underlying transport error.
func (requestError RequestError) Unwrap() error {
	return requestError.Cause
}

// ResponseFormatError reports a response body that does not have the expected JSON shape.
type ResponseFormatError struct {
	Operation OperationName
	Cause     error
}

// Error describes the decoding failure.
func (formatError ResponseFormatError) Error() string {
	return fmt.Sprintf(responseFormatErrorTemplateConstant, formatError.Operation, formatError.Cause)
}

// Unwrap exposes the underlying decoding error.
func (formatError ResponseFormatError) Unwrap() error {
	return formatError.Cause
}
