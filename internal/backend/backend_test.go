package backend

import (
	"testing"

	"github.com/menta2k/catvsdog/internal/config"
	"github.com/menta2k/catvsdog/pkg/llamacpp"
	"github.com/menta2k/catvsdog/pkg/ollama"
	"github.com/menta2k/catvsdog/pkg/predict"
)

func TestNew(t *testing.T) {
	cfg := config.Default()
	c, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	pc, ok := c.(*predict.Client)
	if !ok {
		t.Fatalf("expected *predict.Client, got %T", c)
	}
	if pc.Endpoint() != predict.DefaultEndpoint {
		t.Errorf("unexpected endpoint %q", pc.Endpoint())
	}

	cfg.Classifier.Backend = config.BackendOllama
	cfg.Classifier.Model = "llava"
	if c, err = New(cfg); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*ollama.Client); !ok {
		t.Errorf("expected *ollama.Client, got %T", c)
	}

	cfg.Classifier.Backend = config.BackendLlamaCpp
	if c, err = New(cfg); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*llamacpp.Client); !ok {
		t.Errorf("expected *llamacpp.Client, got %T", c)
	}

	cfg.Classifier.Backend = "carrier-pigeon"
	if _, err := New(cfg); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestFormOptions(t *testing.T) {
	cfg := config.Default()
	opts := FormOptions(cfg)
	if !opts.RequireFile {
		t.Error("expected RequireFile from defaults")
	}
	if opts.Prepare != nil {
		t.Error("no prepare step expected when max_side is 0")
	}

	cfg.Upload.MaxSide = 256
	if FormOptions(cfg).Prepare == nil {
		t.Error("expected prepare step when max_side is set")
	}
}
