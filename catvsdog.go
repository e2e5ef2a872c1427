// Package catvsdog sends images to a classification service and shows the
// label it returns.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		"github.com/menta2k/catvsdog"
//	)
//
//	func main() {
//		label, err := catvsdog.Classify(context.Background(), "", "tom.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println("Prediction:", label)
//	}
//
// The package consists of these components:
//
//  1. Form (pkg/form): the upload form state, one selected file and one label
//  2. Predict (pkg/predict): multipart client for a /predict/ endpoint
//  3. Ollama and llama.cpp (pkg/ollama, pkg/llamacpp): vision-model backends
//  4. Processing (pkg/processing): loading and optional downscaling of uploads
//
// The classification service answers a multipart POST carrying one part
// named "file" with a JSON object such as {"prediction": "cat"}.
package catvsdog

import (
	"context"

	"github.com/menta2k/catvsdog/pkg/client"
	"github.com/menta2k/catvsdog/pkg/form"
	"github.com/menta2k/catvsdog/pkg/predict"
	"github.com/menta2k/catvsdog/pkg/processing"
)

// Version of the catvsdog library
const Version = "1.0.0"

// NewForm creates an upload form talking to endpoint. An empty endpoint
// means http://localhost:8000/predict/.
func NewForm(endpoint string) (*form.Form, error) {
	c, err := predict.NewClient(endpoint)
	if err != nil {
		return nil, err
	}
	return form.New(c), nil
}

// Classify loads source (a path or an http(s) URL) and asks endpoint for its label
func Classify(ctx context.Context, endpoint, source string) (string, error) {
	c, err := predict.NewClient(endpoint)
	if err != nil {
		return "", err
	}
	return ClassifyWith(ctx, c, source)
}

// ClassifyWith is Classify with any classifier backend
func ClassifyWith(ctx context.Context, c client.Classifier, source string) (string, error) {
	file, err := processing.NewProcessor().Load(source)
	if err != nil {
		return "", err
	}
	return c.Predict(ctx, file)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
