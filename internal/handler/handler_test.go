package handler_test

import (
	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/dijitalmektup/internal/adapter"
	"github.com/jun/dijitalmektup/internal/adapter/memory"
	"github.com/jun/dijitalmektup/internal/auth"
	"github.com/jun/dijitalmektup/internal/compose"
	"github.com/jun/dijitalmektup/internal/letter"
	"github.com/jun/dijitalmektup/internal/model"
	"github.com/jun/dijitalmektup/internal/session"
)

const (
	testJWTSecret = "test-secret"
	testUserID    = "test-user-123"
	otherUserID   = "other-user-456"
)

var testAuth = auth.NewAuthenticator(testJWTSecret, nil)

func makeToken(userID string) string {
	signed, _ := testAuth.IssueSession(model.User{UID: userID})
	return signed
}

func makeRequestAs(userID, method, path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: method,
		Path:       path,
		Body:       body,
		Headers: map[string]string{
			"Authorization": "Bearer " + makeToken(userID),
			"Content-Type":  "application/json",
		},
		PathParameters:        map[string]string{},
		QueryStringParameters: map[string]string{},
	}
}

func makeRequest(method, path, body string) events.APIGatewayProxyRequest {
	return makeRequestAs(testUserID, method, path, body)
}

type services struct {
	objects  *memory.Objects
	letters  *letter.Service
	composer *compose.Composer
}

func newServices() services {
	objects := memory.NewObjects("http://localhost:8080/api")
	letters := letter.NewService(memory.NewLetterStore(nil, ""), adapter.StaticProvider{Store: objects})
	return services{
		objects:  objects,
		letters:  letters,
		composer: compose.NewComposer(memory.NewKV(), letters, session.NewMemoryLocker(), nil, nil),
	}
}
