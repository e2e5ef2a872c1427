// Package form implements the image upload form: one selected file, one
// prediction label, and a submit action that asks a classifier for a label.
//
// A Form is safe for concurrent use. Submissions are not serialized; instead
// each one takes a token and only the response to the most recent submission
// may update the label.
package form

import (
	"context"
	"errors"
	"sync"

	logging "github.com/ipfs/go-log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/menta2k/catvsdog/internal/metrics"
	"github.com/menta2k/catvsdog/pkg/client"
	"github.com/menta2k/catvsdog/pkg/types"
)

var log = logging.Logger("form")

// NoFileMessage is shown when a submission is attempted without a file
const NoFileMessage = "Please choose a file first."

// Options controls optional form behaviour
type Options struct {
	// RequireFile blocks submissions without a selected file and shows
	// NoFileMessage instead. When off, the request goes out with an empty part.
	RequireFile bool

	// Prepare, if set, transforms the selected file right before upload.
	Prepare func(*types.File) (*types.File, error)
}

// DefaultOptions returns the options used by New
func DefaultOptions() Options {
	return Options{RequireFile: true}
}

// Form holds the state of one upload form instance
type Form struct {
	classifier client.Classifier
	opts       Options

	mu         sync.Mutex
	selected   *types.File
	label      string
	validation string
	latest     uint64
}

// New creates a form with default options
func New(c client.Classifier) *Form {
	return NewWithOptions(c, DefaultOptions())
}

func NewWithOptions(c client.Classifier, opts Options) *Form {
	return &Form{classifier: c, opts: opts}
}

// SelectFiles records the first entry of files as the selected file. An
// empty list clears the selection.
func (f *Form) SelectFiles(files []*types.File) {
	var first *types.File
	if len(files) > 0 {
		first = files[0]
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = first
	f.validation = ""
}

// Selected returns the currently selected file, or nil
func (f *Form) Selected() *types.File {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selected
}

// Label returns the current prediction label
func (f *Form) Label() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.label
}

// Validation returns the user-visible validation message, if any
func (f *Form) Validation() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validation
}

// Submit sends the selected file to the classifier and applies the result.
//
// Failures never propagate: they are logged and leave the label and the
// selection untouched. A response without a prediction clears the label.
// The returned result is for callers that want to report the outcome, and
// is also returned for stale responses that were discarded.
func (f *Form) Submit(ctx context.Context) types.Result {
	ctx, span := otel.Tracer("catvsdog").Start(ctx, "form.Submit")
	defer span.End()

	f.mu.Lock()
	file := f.selected
	if file == nil && f.opts.RequireFile {
		f.validation = NoFileMessage
		f.mu.Unlock()
		metrics.Submissions.WithLabelValues("no_file").Inc()
		log.Debug("submission blocked: no file selected")
		return types.Result{Err: types.ErrNoFile}
	}
	f.latest++
	token := f.latest
	f.mu.Unlock()

	span.SetAttributes(attribute.Int64("form.token", int64(token)))

	if file != nil && f.opts.Prepare != nil {
		prepared, err := f.opts.Prepare(file)
		if err != nil {
			log.Warnf("preparing %s failed, sending original: %s", file.Name, err)
		} else {
			file = prepared
		}
	}

	timer := metrics.NewTimer()
	res := client.Do(ctx, f.classifier, file)
	timer.ObserveDuration()

	f.mu.Lock()
	defer f.mu.Unlock()

	if token != f.latest {
		metrics.StaleResponses.Inc()
		log.Debugf("discarding response for submission %d, latest is %d", token, f.latest)
		return res
	}

	metrics.Submissions.WithLabelValues(res.Outcome()).Inc()

	switch {
	case res.OK():
		f.label = res.Label
		f.validation = ""
	case res.Kind() == types.KindNoPrediction:
		f.label = ""
		log.Error(res.Err)
	case errors.Is(res.Err, context.Canceled):
		log.Debugf("submission %d canceled", token)
	default:
		log.Error(res.Err)
	}
	return res
}
