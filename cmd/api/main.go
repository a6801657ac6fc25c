// Command api is the AWS Lambda entry point behind API Gateway.
package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jun/dijitalmektup/internal/app"
)

func main() {
	lambda.Start(app.NewApp(context.Background()).HandleRequest)
}
