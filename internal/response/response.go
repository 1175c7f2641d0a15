// Package response holds the status envelope every lambda of the order flow returns.
package response

import "net/http"

// Response is the HTTP-style result of a lambda invocation.
type Response struct {
	StatusCode int `json:"statusCode"`
}

// OK is a 200 response.
func OK() Response { return Response{StatusCode: http.StatusOK} }

// Failed is a 500 response.
func Failed() Response { return Response{StatusCode: http.StatusInternalServerError} }

// Of returns OK when ok is true and Failed otherwise.
func Of(ok bool) Response {
	if ok {
		return OK()
	}
	return Failed()
}
