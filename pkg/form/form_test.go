package form

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/menta2k/catvsdog/pkg/predict"
	"github.com/menta2k/catvsdog/pkg/types"
)

type classifierFunc func(ctx context.Context, file *types.File) (string, error)

func (fn classifierFunc) Predict(ctx context.Context, file *types.File) (string, error) {
	return fn(ctx, file)
}

func file(name string) *types.File {
	return &types.File{Name: name, Data: []byte("fake image " + name)}
}

// newEndpoint starts a classifier that answers every request with body
func newEndpoint(t *testing.T, status int, body string) (*predict.Client, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var parts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			mu.Lock()
			if fh := r.MultipartForm.File["file"]; len(fh) > 0 {
				parts = append(parts, fh[0].Filename)
			} else if _, ok := r.MultipartForm.Value["file"]; ok {
				parts = append(parts, "")
			}
			mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)

	c, err := predict.NewClient(srv.URL + "/predict/")
	if err != nil {
		t.Fatal(err)
	}
	return c, &parts
}

func TestSelectFilesKeepsFirstOfLatestList(t *testing.T) {
	f := New(classifierFunc(func(context.Context, *types.File) (string, error) { return "", nil }))

	if f.Selected() != nil {
		t.Fatal("expected no selection initially")
	}

	a, b, c := file("a.jpg"), file("b.jpg"), file("c.jpg")
	f.SelectFiles([]*types.File{a, b})
	if f.Selected() != a {
		t.Errorf("expected a.jpg, got %v", f.Selected())
	}

	f.SelectFiles([]*types.File{c})
	if f.Selected() != c {
		t.Errorf("expected c.jpg, got %v", f.Selected())
	}

	f.SelectFiles(nil)
	if f.Selected() != nil {
		t.Errorf("empty list should clear the selection, got %v", f.Selected())
	}
}

func TestSubmitSuccess(t *testing.T) {
	for _, label := range []string{"cat", "dog"} {
		t.Run(label, func(t *testing.T) {
			c, parts := newEndpoint(t, http.StatusOK, `{"prediction": "`+label+`"}`)
			f := New(c)
			f.SelectFiles([]*types.File{file("pet.jpg")})

			res := f.Submit(context.Background())
			if !res.OK() {
				t.Fatalf("unexpected error: %v", res.Err)
			}
			if f.Label() != label {
				t.Errorf("expected label %q, got %q", label, f.Label())
			}
			if len(*parts) != 1 || (*parts)[0] != "pet.jpg" {
				t.Errorf("expected one file part named pet.jpg, got %v", *parts)
			}

			var buf bytes.Buffer
			if err := f.Render(&buf); err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(buf.String(), "<p>Prediction: "+label+"</p>") {
				t.Errorf("rendered page missing prediction:\n%s", buf.String())
			}
		})
	}
}

func TestSubmitFailureKeepsState(t *testing.T) {
	c, _ := newEndpoint(t, http.StatusOK, `{"prediction": "cat"}`)
	f := New(c)
	pet := file("pet.jpg")
	f.SelectFiles([]*types.File{pet})
	f.Submit(context.Background())

	tests := []struct {
		name       string
		classifier func(t *testing.T) *predict.Client
		kind       types.ErrorKind
	}{
		{"server error", func(t *testing.T) *predict.Client {
			c, _ := newEndpoint(t, http.StatusInternalServerError, `boom`)
			return c
		}, types.KindStatus},
		{"bad json", func(t *testing.T) *predict.Client {
			c, _ := newEndpoint(t, http.StatusOK, `not json`)
			return c
		}, types.KindDecode},
		{"network", func(t *testing.T) *predict.Client {
			srv := httptest.NewServer(http.NotFoundHandler())
			url := srv.URL
			srv.Close()
			c, err := predict.NewClient(url + "/predict/")
			if err != nil {
				t.Fatal(err)
			}
			return c
		}, types.KindTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.classifier = tt.classifier(t)
			res := f.Submit(context.Background())
			if res.OK() {
				t.Fatal("expected failure")
			}
			if res.Kind() != tt.kind {
				t.Errorf("expected kind %v, got %v (%v)", tt.kind, res.Kind(), res.Err)
			}
			if f.Label() != "cat" {
				t.Errorf("label changed on failure: %q", f.Label())
			}
			if f.Selected() != pet {
				t.Error("selection changed on failure")
			}
			if f.Validation() != "" {
				t.Errorf("failures should not surface in the page, got %q", f.Validation())
			}
		})
	}
}

func TestSubmitWithoutPredictionField(t *testing.T) {
	c, _ := newEndpoint(t, http.StatusOK, `{"prediction": "dog"}`)
	f := New(c)
	f.SelectFiles([]*types.File{file("pet.jpg")})
	f.Submit(context.Background())

	f.classifier, _ = newEndpoint(t, http.StatusOK, `{"label": "dog"}`)
	res := f.Submit(context.Background())
	if res.Kind() != types.KindNoPrediction {
		t.Fatalf("expected no_prediction, got %v", res.Err)
	}
	if f.Label() != "" {
		t.Errorf("expected empty label, got %q", f.Label())
	}

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "Prediction:") {
		t.Errorf("prediction paragraph should not render:\n%s", buf.String())
	}
}

func TestSubmitWithoutFile(t *testing.T) {
	t.Run("guarded", func(t *testing.T) {
		c, parts := newEndpoint(t, http.StatusOK, `{"prediction": "cat"}`)
		f := New(c)

		res := f.Submit(context.Background())
		if !errors.Is(res.Err, types.ErrNoFile) {
			t.Fatalf("expected ErrNoFile, got %v", res.Err)
		}
		if len(*parts) != 0 {
			t.Errorf("no request should be sent, got %v", *parts)
		}
		if f.Validation() != NoFileMessage {
			t.Errorf("expected validation message, got %q", f.Validation())
		}

		var buf bytes.Buffer
		f.Render(&buf)
		if !strings.Contains(buf.String(), NoFileMessage) {
			t.Error("validation message not rendered")
		}

		f.SelectFiles([]*types.File{file("pet.jpg")})
		if f.Validation() != "" {
			t.Error("selecting a file should clear the validation message")
		}
	})

	t.Run("unguarded", func(t *testing.T) {
		c, parts := newEndpoint(t, http.StatusOK, `{"prediction": "cat"}`)
		f := NewWithOptions(c, Options{RequireFile: false})

		res := f.Submit(context.Background())
		if !res.OK() {
			t.Fatalf("unexpected error: %v", res.Err)
		}
		if len(*parts) != 1 || (*parts)[0] != "" {
			t.Errorf("expected one empty file part, got %v", *parts)
		}
		if f.Label() != "cat" {
			t.Errorf("expected cat, got %q", f.Label())
		}
	})
}

func TestStaleResponseDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	f := New(classifierFunc(func(ctx context.Context, file *types.File) (string, error) {
		if file.Name == "slow.jpg" {
			close(started)
			<-release
			return "cat", nil
		}
		return "dog", nil
	}))

	f.SelectFiles([]*types.File{file("slow.jpg")})
	done := make(chan types.Result)
	go func() { done <- f.Submit(context.Background()) }()
	<-started

	f.SelectFiles([]*types.File{file("fast.jpg")})
	f.Submit(context.Background())
	if f.Label() != "dog" {
		t.Fatalf("expected dog, got %q", f.Label())
	}

	close(release)
	res := <-done
	if res.Label != "cat" {
		t.Errorf("slow classifier should still report its label, got %q", res.Label)
	}
	if f.Label() != "dog" {
		t.Errorf("stale response overwrote label: %q", f.Label())
	}
}

func TestStaleSelectionVisible(t *testing.T) {
	f := New(classifierFunc(func(context.Context, *types.File) (string, error) { return "cat", nil }))
	f.SelectFiles([]*types.File{file("a.jpg")})
	f.Submit(context.Background())

	// a new selection does not reset the shown prediction
	f.SelectFiles([]*types.File{file("b.jpg")})
	if f.Label() != "cat" {
		t.Errorf("expected previous prediction to stay, got %q", f.Label())
	}
}

func TestPrepareHook(t *testing.T) {
	var got string
	f := NewWithOptions(classifierFunc(func(_ context.Context, file *types.File) (string, error) {
		got = file.Name
		return "cat", nil
	}), Options{
		RequireFile: true,
		Prepare: func(in *types.File) (*types.File, error) {
			return &types.File{Name: "small.jpg", Data: in.Data[:1]}, nil
		},
	})
	f.SelectFiles([]*types.File{file("big.jpg")})
	f.Submit(context.Background())

	if got != "small.jpg" {
		t.Errorf("expected prepared file to be sent, got %q", got)
	}
	if f.Selected().Name != "big.jpg" {
		t.Error("preparing should not replace the selection")
	}
}

func TestPredictionText(t *testing.T) {
	if PredictionText("") != "" {
		t.Error("empty label should render nothing")
	}
	if PredictionText("cat") != "Prediction: cat" {
		t.Errorf("got %q", PredictionText("cat"))
	}
}
