package cli

import (
	"github.com/yourusername/xmrescrow/internal/coreerrors"
)

// Response is the single-line JSON envelope escrowctl writes to stdout in
// dashboard mode, classified by coreerrors.Kind instead of a bespoke
// error-code enumeration.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody is the machine-readable error shape embedded in a failed
// Response.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Ok wraps a successful result.
func Ok(data interface{}) Response {
	return Response{Success: true, Data: data}
}

// Fail wraps err as a failed Response, classifying it by coreerrors.Kind
// when possible and falling back to "unknown".
func Fail(err error) Response {
	kind, ok := coreerrors.KindOf(err)
	kindStr := "unknown"
	if ok {
		kindStr = kind.String()
	}
	return Response{Success: false, Error: &ErrorBody{Kind: kindStr, Message: err.Error()}}
}
