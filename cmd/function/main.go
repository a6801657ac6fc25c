// Command function serves the API as a Google Cloud Function.
package main

import (
	"context"
	"log"
	"os"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/jun/dijitalmektup/internal/app"
)

func main() {
	application := app.NewApp(context.Background())
	functions.HTTP("Letters", application.ServeHTTP)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	if err := funcframework.Start(port); err != nil {
		log.Fatalf("funcframework.Start: %v\n", err)
	}
}
