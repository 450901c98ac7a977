// Package handler contains the HTTP handlers of the Pollar API.
//
// WHAT IS A HANDLER?
// In Go, an HTTP handler is anything that implements http.Handler, or more
// commonly an http.HandlerFunc. Chi's router accepts these directly.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (query params, body, cookies)
// 2. Call the service layer
// 3. Write the HTTP response (status code, headers, envelope)
//
// Handlers hold no business rules. The authenticated user id comes from
// the request context (set by auth.RequireAuth) and is passed to services
// explicitly.
package handler
