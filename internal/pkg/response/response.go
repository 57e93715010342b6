package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// App-level result codes. HTTP status stays 200; clients switch on Code.
const (
	CodeSuccess           = 0
	CodeParamError        = 1000
	CodeAuthFailed        = 1001
	CodePermissionDenied  = 1002
	CodeResourceNotFound  = 1003
	CodeQuotaExceeded     = 1004
	CodeDuplicateAction   = 1005
	CodePaymentIncomplete = 1006
	CodeServerError       = 5000
	CodeUpstreamError     = 5001
)

var codeMessages = map[int]string{
	CodeSuccess:           "success",
	CodeParamError:        "invalid request",
	CodeAuthFailed:        "authentication failed",
	CodePermissionDenied:  "permission denied",
	CodeResourceNotFound:  "resource not found",
	CodeQuotaExceeded:     "daily quota exhausted",
	CodeDuplicateAction:   "duplicate action",
	CodePaymentIncomplete: "payment not completed",
	CodeServerError:       "internal server error",
	CodeUpstreamError:     "upstream service unavailable, please try again",
}

// Response is the unified JSON envelope.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success writes a success envelope.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage writes a success envelope with a custom message.
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Error writes an error envelope; empty message falls back to the code default.
func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// ParamError reports a malformed request.
func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

// AuthError reports a missing or invalid credential.
func AuthError(c *gin.Context, message string) {
	Error(c, CodeAuthFailed, message)
}

// PermissionError reports an action the caller's tier does not allow.
func PermissionError(c *gin.Context, message string) {
	Error(c, CodePermissionDenied, message)
}

// NotFoundError reports a missing resource.
func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

// QuotaError reports an exhausted daily allowance.
func QuotaError(c *gin.Context, message string) {
	Error(c, CodeQuotaExceeded, message)
}

// DuplicateError reports a repeated action.
func DuplicateError(c *gin.Context, message string) {
	Error(c, CodeDuplicateAction, message)
}

// PaymentIncompleteError reports a checkout session that has not been paid.
func PaymentIncompleteError(c *gin.Context, message string) {
	Error(c, CodePaymentIncomplete, message)
}

// ServerError reports an internal failure without detail.
func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}

// UpstreamError reports a billing or generation provider failure.
func UpstreamError(c *gin.Context, message string) {
	Error(c, CodeUpstreamError, message)
}
