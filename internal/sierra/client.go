package sierra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	patronQueryPathConstant       = "patrons/query"
	offsetParameterNameConstant   = "offset"
	limitParameterNameConstant    = "limit"
	contentTypeHeaderNameConstant = "Content-Type"
	acceptHeaderNameConstant      = "Accept"
	jsonContentTypeConstant       = "application/json"
	queryURLErrorTemplateConstant = "invalid query URL: %w"
	bodyEncodingErrorTemplate     = "request body encoding failed: %w"
	requestCreationErrorTemplate  = "request creation failed: %w"
	minimumSuccessStatusConstant  = 200
	maximumSuccessStatusConstant  = 299
	responseBodyReadErrorTemplate = "response body read failed: %w"
	responseDecodingErrorTemplate = "response decoding failed: %w"
)

// HTTPClient issues HTTP requests; *http.Client satisfies it.
type HTTPClient interface {
	Do(request *http.Request) (*http.Response, error)
}

// Client calls the Sierra patron endpoints with an authenticated HTTP client.
type Client struct {
	httpClient HTTPClient
	baseURL    string
}

var (
	// ErrHTTPClientNotConfigured indicates the client was constructed without an HTTP client.
	ErrHTTPClientNotConfigured = errors.New(httpClientNotConfiguredMessageConstant)
)

// NewClient constructs a Client. The base URL is used verbatim as a prefix,
// so it normally ends with a slash (for example https://host/iii/sierra-api/v6/).
func NewClient(httpClient HTTPClient, baseURL string) (*Client, error) {
	if httpClient == nil {
		return nil, ErrHTTPClientNotConfigured
	}
	trimmedBaseURL := strings.TrimSpace(baseURL)
	if len(trimmedBaseURL) == 0 {
		return nil, InvalidInputError{FieldName: baseURLFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return &Client{httpClient: httpClient, baseURL: trimmedBaseURL}, nil
}

// BaseURL reports the API prefix the client was built with.
func (client *Client) BaseURL() string {
	return client.baseURL
}

// QueryPatrons submits the query and returns a single page of at most limit patrons starting at offset.
func (client *Client) QueryPatrons(executionContext context.Context, query PatronQuery, offset int, limit int) (QueryResult, error) {
	if limit <= 0 {
		return QueryResult{}, InvalidInputError{FieldName: limitFieldNameConstant, Message: positiveValueRequiredMessageConstant}
	}
	if offset < 0 {
		return QueryResult{}, InvalidInputError{FieldName: offsetFieldNameConstant, Message: nonNegativeValueRequiredMessageConstant}
	}

	queryURL, parseError := url.Parse(client.baseURL + patronQueryPathConstant)
	if parseError != nil {
		return QueryResult{}, RequestError{Operation: OperationQueryPatrons, Cause: fmt.Errorf(queryURLErrorTemplateConstant, parseError)}
	}
	parameters := queryURL.Query()
	parameters.Set(offsetParameterNameConstant, strconv.Itoa(offset))
	parameters.Set(limitParameterNameConstant, strconv.Itoa(limit))
	queryURL.RawQuery = parameters.Encode()

	responseBody, requestError := client.sendJSON(executionContext, OperationQueryPatrons, http.MethodPost, queryURL.String(), query)
	if requestError != nil {
		return QueryResult{}, requestError
	}

	return decodeQueryResult(responseBody)
}

// UpdatePatronType sets the patron type of the patron addressed by its self link.
func (client *Client) UpdatePatronType(executionContext context.Context, patronLink string, patronType int) error {
	trimmedLink := strings.TrimSpace(patronLink)
	if len(trimmedLink) == 0 {
		return InvalidInputError{FieldName: patronLinkFieldNameConstant, Message: requiredValueMessageConstant}
	}

	_, requestError := client.sendJSON(executionContext, OperationUpdatePatronType, http.MethodPut, trimmedLink, PatronTypePatch{PatronType: patronType})
	return requestError
}

func (client *Client) sendJSON(executionContext context.Context, operation OperationName, method string, targetURL string, payload any) ([]byte, error) {
	encodedPayload, encodingError := json.Marshal(payload)
	if encodingError != nil {
		return nil, RequestError{Operation: operation, Cause: fmt.Errorf(bodyEncodingErrorTemplate, encodingError)}
	}

	request, creationError := http.NewRequestWithContext(executionContext, method, targetURL, bytes.NewReader(encodedPayload))
	if creationError != nil {
		return nil, RequestError{Operation: operation, Cause: fmt.Errorf(requestCreationErrorTemplate, creationError)}
	}
	request.Header.Set(contentTypeHeaderNameConstant, jsonContentTypeConstant)
	request.Header.Set(acceptHeaderNameConstant, jsonContentTypeConstant)

	response, transportError := client.httpClient.Do(request)
	if transportError != nil {
		return nil, RequestError{Operation: operation, Cause: transportError}
	}
	defer response.Body.Close()

	if response.StatusCode < minimumSuccessStatusConstant || response.StatusCode > maximumSuccessStatusConstant {
		snippet, _ := io.ReadAll(io.LimitReader(response.Body, responseBodySnippetLimitConstant))
		return nil, RequestError{
			Operation:  operation,
			StatusCode: response.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	responseBody, readError := io.ReadAll(response.Body)
	if readError != nil {
		return nil, RequestError{Operation: operation, Cause: fmt.Errorf(responseBodyReadErrorTemplate, readError)}
	}

	return responseBody, nil
}

func decodeQueryResult(responseBody []byte) (QueryResult, error) {
	var response struct {
		Total   *int     `json:"total"`
		Entries []Patron `json:"entries"`
	}

	if decodingError := json.Unmarshal(responseBody, &response); decodingError != nil {
		return QueryResult{}, ResponseFormatError{Operation: OperationQueryPatrons, Cause: fmt.Errorf(responseDecodingErrorTemplate, decodingError)}
	}

	if response.Total == nil {
		return QueryResult{}, ResponseFormatError{Operation: OperationQueryPatrons, Cause: errors.New(totalFieldMissingMessageConstant)}
	}

	total := *response.Total
	if total < 0 {
		return QueryResult{}, ResponseFormatError{Operation: OperationQueryPatrons, Cause: fmt.Errorf(negativeTotalTemplateConstant, total)}
	}

	if total > 0 && response.Entries == nil {
		return QueryResult{}, ResponseFormatError{Operation: OperationQueryPatrons, Cause: fmt.Errorf(entriesFieldMissingTemplateConstant, total)}
	}

	for entryIndex, entry := range response.Entries {
		if len(strings.TrimSpace(entry.Link)) == 0 {
			return QueryResult{}, ResponseFormatError{Operation: OperationQueryPatrons, Cause: fmt.Errorf(entryLinkMissingTemplateConstant, entryIndex)}
		}
	}

	return QueryResult{Total: total, Entries: response.Entries}, nil
}
