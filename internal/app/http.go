package app

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
)

const maxRequestBody = 16 << 20

var errBodyTooLarge = errors.New("request body too large")

// ServeHTTP lets the API Gateway router run behind net/http, for local
// development and container deployments.
func (app *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := ProxyRequest(r)
	if errors.Is(err, errBodyTooLarge) {
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	resp, err := app.HandleRequest(r.Context(), req)
	if err != nil {
		app.log.Error(err, "request failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	WriteProxyResponse(w, resp)
}

// ProxyRequest converts an HTTP request into the API Gateway event shape.
// Bodies that are not valid UTF-8 are passed base64 encoded.
func ProxyRequest(r *http.Request) (events.APIGatewayProxyRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return events.APIGatewayProxyRequest{}, err
	}
	if len(body) > maxRequestBody {
		return events.APIGatewayProxyRequest{}, errBodyTooLarge
	}

	headers := make(map[string]string, len(r.Header))
	multiHeaders := make(map[string][]string, len(r.Header))
	for k, v := range r.Header {
		headers[k] = strings.Join(v, ",")
		multiHeaders[k] = v
	}
	// Go moves Host out of the header map
	if r.Host != "" {
		headers["Host"] = r.Host
	}

	query := make(map[string]string)
	multiQuery := make(map[string][]string)
	for k, v := range r.URL.Query() {
		query[k] = v[0]
		multiQuery[k] = v
	}

	req := events.APIGatewayProxyRequest{
		Path:                            r.URL.Path,
		HTTPMethod:                      r.Method,
		Headers:                         headers,
		MultiValueHeaders:               multiHeaders,
		QueryStringParameters:           query,
		MultiValueQueryStringParameters: multiQuery,
		PathParameters:                  map[string]string{},
	}
	if utf8.Valid(body) {
		req.Body = string(body)
	} else {
		req.Body = base64.StdEncoding.EncodeToString(body)
		req.IsBase64Encoded = true
	}
	return req, nil
}

// WriteProxyResponse writes an API Gateway response to w.
func WriteProxyResponse(w http.ResponseWriter, resp events.APIGatewayProxyResponse) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	for k, values := range resp.MultiValueHeaders {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}

	body := []byte(resp.Body)
	if resp.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			http.Error(w, "Invalid response body", http.StatusInternalServerError)
			return
		}
		body = decoded
	}

	w.WriteHeader(resp.StatusCode)
	w.Write(body)
}
