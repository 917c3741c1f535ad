package sierra

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	tokenPathConstant            = "token"
	tokenExchangeTimeoutConstant = 30 * time.Second
)

// Credentials identify this job to the Sierra token endpoint.
type Credentials struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
}

// SessionOptions customizes session construction.
type SessionOptions struct {
	// HTTPClient performs the token exchange and carries the transport used
	// for authenticated calls. A client with a 30 second timeout is used when nil.
	HTTPClient *http.Client
}

// TokenURL returns the token endpoint derived from the base URL.
func (credentials Credentials) TokenURL() string {
	return strings.TrimSpace(credentials.BaseURL) + tokenPathConstant
}

func (credentials Credentials) validate() error {
	if len(strings.TrimSpace(credentials.ClientID)) == 0 {
		return InvalidInputError{FieldName: clientIDFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(credentials.ClientSecret)) == 0 {
		return InvalidInputError{FieldName: clientSecretFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(credentials.BaseURL)) == 0 {
		return InvalidInputError{FieldName: baseURLFieldNameConstant, Message: requiredValueMessageConstant}
	}
	return nil
}

// rawBasicAuthTransport sends the token request with the client id and secret
// exactly as configured. x/oauth2 form-escapes both before building the Basic
// header, which changes secrets containing characters such as '+', '/' or '='.
type rawBasicAuthTransport struct {
	base         http.RoundTripper
	clientID     string
	clientSecret string
}

// RoundTrip replaces the Authorization header on a clone of the request.
func (transport rawBasicAuthTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	baseTransport := transport.base
	if baseTransport == nil {
		baseTransport = http.DefaultTransport
	}

	clonedRequest := request.Clone(request.Context())
	clonedRequest.SetBasicAuth(transport.clientID, transport.clientSecret)
	return baseTransport.RoundTrip(clonedRequest)
}

// NewSession exchanges the client credentials for an access token and returns
// a Client that attaches the token to every request. The client id and secret
// travel unescaped in an HTTP Basic authorization header. The token is not
// refreshed; a session lives for a single run.
func NewSession(executionContext context.Context, credentials Credentials, options SessionOptions) (*Client, error) {
	if validationError := credentials.validate(); validationError != nil {
		return nil, validationError
	}

	baseHTTPClient := options.HTTPClient
	if baseHTTPClient == nil {
		baseHTTPClient = &http.Client{Timeout: tokenExchangeTimeoutConstant}
	}
	sessionContext := context.WithValue(executionContext, oauth2.HTTPClient, baseHTTPClient)

	clientID := strings.TrimSpace(credentials.ClientID)
	clientSecret := strings.TrimSpace(credentials.ClientSecret)
	exchangeHTTPClient := *baseHTTPClient
	exchangeHTTPClient.Transport = rawBasicAuthTransport{
		base:         baseHTTPClient.Transport,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
	exchangeContext := context.WithValue(executionContext, oauth2.HTTPClient, &exchangeHTTPClient)

	tokenURL := credentials.TokenURL()
	tokenConfiguration := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	token, tokenError := tokenConfiguration.Token(exchangeContext)
	if tokenError != nil {
		return nil, AuthenticationError{TokenURL: tokenURL, Cause: tokenError}
	}

	authenticatedHTTPClient := oauth2.NewClient(sessionContext, oauth2.StaticTokenSource(token))

	return NewClient(authenticatedHTTPClient, credentials.BaseURL)
}
