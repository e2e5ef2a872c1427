package backend

import (
	"fmt"
	"time"

	"github.com/menta2k/catvsdog/internal/config"
	"github.com/menta2k/catvsdog/pkg/client"
	"github.com/menta2k/catvsdog/pkg/form"
	"github.com/menta2k/catvsdog/pkg/llamacpp"
	"github.com/menta2k/catvsdog/pkg/ollama"
	"github.com/menta2k/catvsdog/pkg/predict"
	"github.com/menta2k/catvsdog/pkg/processing"
	"github.com/menta2k/catvsdog/pkg/types"
)

// New builds the classifier selected by cfg
func New(cfg *config.Config) (client.Classifier, error) {
	cc := cfg.Classifier
	if cc.Backend != config.BackendHTTP && cc.Endpoint == predict.DefaultEndpoint {
		// model backends have their own default URLs
		cc.Endpoint = ""
	}
	switch cc.Backend {
	case config.BackendHTTP, "":
		return predict.NewClient(cc.Endpoint,
			predict.WithTimeout(time.Duration(cc.Timeout)),
			predict.WithField(cfg.Upload.Field),
		)
	case config.BackendOllama:
		return ollama.NewClient(cc.Endpoint, cc.Model, cc.Categories)
	case config.BackendLlamaCpp:
		return llamacpp.NewClient(cc.Endpoint, cc.Model, cc.Categories)
	default:
		return nil, fmt.Errorf("unknown backend: %s (use http, ollama or llamacpp)", cc.Backend)
	}
}

// FormOptions derives form options from the upload settings
func FormOptions(cfg *config.Config) form.Options {
	opts := form.Options{RequireFile: cfg.Upload.RequireFile}
	if cfg.Upload.MaxSide > 0 {
		proc := processing.NewProcessor()
		popts := processing.Options{
			MaxSide: cfg.Upload.MaxSide,
			Format:  cfg.Upload.Format,
			Quality: cfg.Upload.Quality,
		}
		opts.Prepare = func(f *types.File) (*types.File, error) {
			return proc.Prepare(f, popts)
		}
	}
	return opts
}
