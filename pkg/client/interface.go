package client

import (
	"context"

	"github.com/menta2k/catvsdog/pkg/types"
)

// Classifier sends one file to a classification backend and returns its label.
// Failures are reported as *types.PredictError.
type Classifier interface {
	Predict(ctx context.Context, file *types.File) (string, error)
}

// Do runs one request and folds the outcome into a tagged result
func Do(ctx context.Context, c Classifier, file *types.File) types.Result {
	label, err := c.Predict(ctx, file)
	if err != nil {
		return types.Result{Err: err}
	}
	return types.Result{Label: label}
}
