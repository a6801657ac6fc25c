package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/logger"
)

type objectReader interface {
	GetObject(key string) ([]byte, string, error)
}

// ObjectHandler serves images held by the in-memory object store. Other
// object stores hand out their own public URLs.
type ObjectHandler struct {
	objects objectReader
	log     *logger.Logger
}

func NewObjectHandler(o objectReader, log *logger.Logger) *ObjectHandler {
	return &ObjectHandler{objects: o, log: log}
}

// Get handles GET /objects/{key+}. Objects are public like their cloud
// counterparts, so no session is required.
func (h *ObjectHandler) Get(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	key, err := url.PathUnescape(req.PathParameters["key"])
	if err != nil || key == "" {
		return textResponse(http.StatusBadRequest, "Invalid object key"), nil
	}

	data, contentType, err := h.objects.GetObject(key)
	if errors.Is(err, adapter.ErrNotFound) {
		return textResponse(http.StatusNotFound, "Not Found"), nil
	}
	if err != nil {
		return errorResponse(h.log, err, "failed to read object"), nil
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return events.APIGatewayProxyResponse{
		StatusCode:      http.StatusOK,
		Body:            base64.StdEncoding.EncodeToString(data),
		IsBase64Encoded: true,
		Headers: map[string]string{
			"Content-Type":  contentType,
			"Cache-Control": "public, max-age=31536000, immutable",
		},
	}, nil
}
