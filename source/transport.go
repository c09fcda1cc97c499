package source

import "net/http"

// userAgentTransport stamps a stable User-Agent on every request; the
// statistical APIs are unfriendly to Go's default agent string.
type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(req)
}
