package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jun/dijitalmektup/internal/config"
	"github.com/jun/dijitalmektup/internal/handler"
	"github.com/jun/dijitalmektup/internal/logger"
)

// App holds the dependencies for the Lambda function.
type App struct {
	services *Services

	authHandler    *handler.AuthHandler
	letterHandler  *handler.LetterHandler
	draftHandler   *handler.DraftHandler
	themeHandler   *handler.ThemeHandler
	stickerHandler *handler.StickerHandler
	objectHandler  *handler.ObjectHandler

	devMode          bool
	allowedOrigin    string
	apiGatewaySecret string
	log              *logger.Logger
}

// NewApp loads the configuration from the environment and wires every
// service. It panics when the backend cannot start.
func NewApp(ctx context.Context) *App {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("unable to load config, %v", err))
	}
	log, err := logger.New(logger.Options{Level: cfg.LogLevel, HumanReadable: cfg.HumanLogs, Writer: os.Stdout})
	if err != nil {
		panic(fmt.Sprintf("unable to create logger, %v", err))
	}

	services, err := NewServices(ctx, cfg, log)
	if err != nil {
		log.Error(err, "failed to initialize services")
		panic(err)
	}
	return New(services)
}

// New builds the router over already wired services.
func New(s *Services) *App {
	cfg, log := s.Config, s.Log
	return &App{
		services:         s,
		authHandler:      handler.NewAuthHandler(s.Auth, s.Authenticator, s.Letters, cfg.FrontendURL, cfg.DevMode, log),
		letterHandler:    handler.NewLetterHandler(s.Letters, s.Exporter, s.Authenticator, log),
		draftHandler:     handler.NewDraftHandler(s.Composer, s.Authenticator, log),
		themeHandler:     handler.NewThemeHandler(s.Themes, s.Authenticator, log),
		stickerHandler:   handler.NewStickerHandler(s.Stickers, s.Authenticator, log),
		objectHandler:    handler.NewObjectHandler(s.Objects, log),
		devMode:          cfg.DevMode,
		allowedOrigin:    cfg.FrontendURL,
		apiGatewaySecret: s.Secrets.APIGatewaySecret,
		log:              log,
	}
}

// Services exposes the wired services to the entry points.
func (app *App) Services() *Services {
	return app.services
}

func header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	method := req.HTTPMethod
	app.log.WithFields(map[string]any{"method": method, "path": req.Path}).Debug("request")

	// CORS Preflight
	if method == http.MethodOptions {
		return app.corsResponse(events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}), nil
	}

	// Only CloudFront knows the origin secret.
	if !app.devMode && header(req, "X-Origin-Verify") != app.apiGatewaySecret {
		app.log.With("path", req.Path).Warn("missing or invalid X-Origin-Verify header")
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusForbidden,
			Body:       "Forbidden: Access denied",
		}, nil
	}

	// Strip /api prefix if present (for CloudFront proxying)
	path := strings.TrimPrefix(req.Path, "/api")
	if req.PathParameters == nil {
		req.PathParameters = make(map[string]string)
	}
	if req.QueryStringParameters == nil {
		req.QueryStringParameters = make(map[string]string)
	}

	resp, ok := app.route(ctx, method, path, req)
	if !ok {
		resp = events.APIGatewayProxyResponse{
			StatusCode: http.StatusNotFound,
			Body:       fmt.Sprintf("Not Found: %s %s", method, path),
		}
	}
	return app.corsResponse(resp), nil
}

func (app *App) route(ctx context.Context, method, path string, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch parts[0] {
	case "health":
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Body: "ok"}, method == http.MethodGet

	case "auth":
		switch {
		case path == "/auth/login" && method == http.MethodGet:
			return app.must(app.authHandler.Login(ctx, req)), true
		case path == "/auth/callback" && method == http.MethodGet:
			return app.must(app.authHandler.Callback(ctx, req)), true
		case path == "/auth/demo-login" && method == http.MethodGet:
			return app.must(app.authHandler.DemoLogin(ctx, req)), true
		case path == "/auth/logout" && method == http.MethodPost:
			return app.must(app.authHandler.Logout(ctx, req)), true
		case path == "/auth/user" && method == http.MethodGet:
			return app.must(app.authHandler.GetUser(ctx, req)), true
		case path == "/auth/user" && method == http.MethodPatch:
			return app.must(app.authHandler.UpdateUser(ctx, req)), true
		}

	case "letters":
		switch {
		case len(parts) == 1 && method == http.MethodGet:
			return app.must(app.letterHandler.List(ctx, req)), true
		case len(parts) == 1 && method == http.MethodPost:
			return app.must(app.letterHandler.Create(ctx, req)), true
		case len(parts) == 2 && parts[1] == "search" && method == http.MethodGet:
			return app.must(app.letterHandler.Search(ctx, req)), true
		case len(parts) == 2:
			req.PathParameters["id"] = parts[1]
			switch method {
			case http.MethodGet:
				return app.must(app.letterHandler.Get(ctx, req)), true
			case http.MethodDelete:
				return app.must(app.letterHandler.Delete(ctx, req)), true
			}
		case len(parts) == 3 && parts[2] == "export" && method == http.MethodGet:
			req.PathParameters["id"] = parts[1]
			return app.must(app.letterHandler.Export(ctx, req)), true
		}

	case "draft":
		return app.routeDraft(ctx, method, parts[1:], req)

	case "themes":
		switch {
		case len(parts) == 1 && method == http.MethodGet:
			return app.must(app.themeHandler.ListThemes(ctx, req)), true
		case len(parts) == 1 && method == http.MethodPost:
			return app.must(app.themeHandler.AddTheme(ctx, req)), true
		}

	case "stickers":
		if len(parts) == 1 && method == http.MethodGet {
			return app.must(app.stickerHandler.Search(ctx, req)), true
		}

	case "objects":
		if len(parts) > 1 && method == http.MethodGet {
			req.PathParameters["key"] = strings.Join(parts[1:], "/")
			return app.must(app.objectHandler.Get(ctx, req)), true
		}
	}
	return events.APIGatewayProxyResponse{}, false
}

// routeDraft handles /draft and everything below it; rest excludes "draft".
func (app *App) routeDraft(ctx context.Context, method string, rest []string, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, bool) {
	h := app.draftHandler
	switch len(rest) {
	case 0:
		switch method {
		case http.MethodGet:
			return app.must(h.Get(ctx, req)), true
		case http.MethodPut:
			return app.must(h.Put(ctx, req)), true
		case http.MethodPatch:
			return app.must(h.Patch(ctx, req)), true
		case http.MethodDelete:
			return app.must(h.Delete(ctx, req)), true
		}
	case 1:
		if rest[0] == "pages" && method == http.MethodPost {
			return app.must(h.AddPage(ctx, req)), true
		}
		if method != http.MethodPost {
			return events.APIGatewayProxyResponse{}, false
		}
		switch rest[0] {
		case "send":
			return app.must(h.Send(ctx, req)), true
		case "save":
			return app.must(h.Save(ctx, req)), true
		case "open":
			return app.must(h.Open(ctx, req)), true
		case "check":
			return app.must(h.Check(ctx, req)), true
		}
	case 2:
		if rest[0] != "pages" {
			return events.APIGatewayProxyResponse{}, false
		}
		req.PathParameters["n"] = rest[1]
		switch method {
		case http.MethodPut:
			return app.must(h.UpdatePage(ctx, req)), true
		case http.MethodDelete:
			return app.must(h.DeletePage(ctx, req)), true
		}
	}
	return events.APIGatewayProxyResponse{}, false
}

// corsResponse adds CORS headers to an API Gateway response.
func (app *App) corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.allowedOrigin
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,PUT,DELETE,OPTIONS,PATCH"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization,If-Match"
	resp.Headers["Access-Control-Expose-Headers"] = "ETag"
	return resp
}

// must unwraps a handler response. Handlers report failures in the response,
// so an error here is unexpected.
func (app *App) must(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		app.log.Error(err, "handler error")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
