// Package sierra talks to the Sierra library REST API.
//
// NewSession performs the OAuth2 client-credentials exchange against the
// API's token endpoint and returns a Client whose requests carry the bearer
// token. The Client submits typed PatronQuery documents to patrons/query and
// patches patron types. Failures surface as AuthenticationError, RequestError,
// ResponseFormatError, or InvalidInputError so callers can tell them apart.
package sierra
