/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package stackexchange

import "net/http"

// APIKeyRoundTripper implements http.RoundTripper interface and attaches the
// Stack Exchange application key (and optional access token) to the query
// string of all outgoing requests. The API expects credentials as query
// parameters, not headers.
type APIKeyRoundTripper struct {
	Delegate    http.RoundTripper
	Key         string
	AccessToken string
}

// NewAPIKeyRoundTripper creates a new APIKeyRoundTripper.
func NewAPIKeyRoundTripper(delegate http.RoundTripper, key, accessToken string) *APIKeyRoundTripper {
	return &APIKeyRoundTripper{Delegate: delegate, Key: key, AccessToken: accessToken}
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *APIKeyRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if rt.Key == "" {
		return rt.Delegate.RoundTrip(req)
	}

	query := req.URL.Query()
	if query.Get("key") != "" {
		return rt.Delegate.RoundTrip(req)
	}
	query.Set("key", rt.Key)
	if rt.AccessToken != "" {
		query.Set("access_token", rt.AccessToken)
	}

	req = req.Clone(req.Context()) // Per RoundTripper contract.
	req.URL.RawQuery = query.Encode()
	return rt.Delegate.RoundTrip(req)
}
