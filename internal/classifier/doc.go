// Package classifier is the HTTP client for the external phishing
// classification service.
//
// A Client sends one POST request per Predict call:
//
//	POST {service}/predict
//	Content-Type: application/json
//	X-API-KEY: <key>            (only when a key is configured)
//
//	{"url": "https://example.com/login"}
//
// Services in the wild answer with different shapes, so the response is
// normalized to a single boolean by ParseVerdict. Every failure is returned
// as a *model.ScanError so callers can branch on the error kind:
//
//   - transport failure or timeout: model.KindUnreachable
//   - non-2xx status: model.KindServiceError (with the status code)
//   - non-JSON body, missing verdict, wrong-typed verdict: model.KindMalformedResponse
//
// Requests can optionally be routed through a SOCKS5 proxy.
package classifier
