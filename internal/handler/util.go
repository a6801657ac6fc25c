package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/apperror"
	"github.com/jun/dijitalmektup/internal/logger"
	"github.com/jun/dijitalmektup/internal/model"
)

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(ctx context.Context, headers map[string]string) (*model.User, error)
}

// errPageFull is returned by page edits that do not fit on the page.
var errPageFull = errors.New("page is full")

// getHeader looks a header up case-insensitively.
func getHeader(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// currentUser authenticates the request. The second return value is the
// response to send when authentication failed.
func currentUser(ctx context.Context, a Authenticator, req events.APIGatewayProxyRequest) (*model.User, *events.APIGatewayProxyResponse) {
	user, err := a.Authenticate(ctx, req.Headers)
	if err != nil {
		resp := textResponse(http.StatusUnauthorized, "Unauthorized")
		return nil, &resp
	}
	return user, nil
}

func jsonResponse(status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		return textResponse(http.StatusInternalServerError, "Failed to encode response")
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Body:       string(body),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

func textResponse(status int, body string) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{StatusCode: status, Body: body}
}

// decodeBody unmarshals the JSON request body into v.
func decodeBody(req events.APIGatewayProxyRequest, v any) error {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return apperror.Validation("body", "invalid request body")
		}
		body = decoded
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return apperror.Validation("body", "request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperror.Validation("body", "invalid request body")
	}
	return nil
}

// statusOf maps service errors to HTTP status codes.
func statusOf(err error) int {
	var appErr *apperror.Error
	switch {
	case errors.Is(err, errPageFull), errors.Is(err, adapter.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, adapter.ErrPreconditionFailed):
		return http.StatusPreconditionFailed
	case errors.Is(err, adapter.ErrLimitExceeded):
		return http.StatusTooManyRequests
	case errors.As(err, &appErr):
		switch appErr.Kind {
		case apperror.KindNotFound:
			return http.StatusNotFound
		case apperror.KindValidation:
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// errorResponse logs err and turns it into a JSON error body. Internal errors
// are not echoed to the client.
func errorResponse(log *logger.Logger, err error, msg string) events.APIGatewayProxyResponse {
	status := statusOf(err)
	body := map[string]string{"error": msg}

	var appErr *apperror.Error
	if status < http.StatusInternalServerError {
		body["error"] = err.Error()
		if errors.As(err, &appErr) && appErr.Field != "" {
			body["field"] = appErr.Field
		}
		log.Warn(msg + ": " + err.Error())
	} else {
		log.Error(err, msg)
	}
	return jsonResponse(status, body)
}
