package types

import (
	"errors"
	"fmt"
)

// File is an opaque file handle picked by the user. Data is forwarded as-is.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the payload length in bytes
func (f *File) Size() int64 {
	if f == nil {
		return 0
	}
	return int64(len(f.Data))
}

// PredictResponse is the JSON body returned by the classification endpoint.
// Prediction is a pointer so a missing field can be told apart from "".
type PredictResponse struct {
	Prediction *string `json:"prediction"`
}

// ErrorKind tells apart the ways a submission can fail
type ErrorKind int

const (
	KindTransport ErrorKind = iota
	KindStatus
	KindDecode
	KindNoPrediction
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	case KindDecode:
		return "decode"
	case KindNoPrediction:
		return "no_prediction"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// PredictError is returned by classifiers when a submission fails
type PredictError struct {
	Kind       ErrorKind
	StatusCode int
	Reason     string
	Err        error
}

func (e *PredictError) Error() string {
	msg := "predict " + e.Kind.String()
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PredictError) Unwrap() error { return e.Err }

// ErrNoFile is reported when a submission is attempted without a selected file
var ErrNoFile = errors.New("no file selected")

// Result is the tagged outcome of one classification request: a label on
// success, or Err describing the failure.
type Result struct {
	Label string
	Err   error
}

// OK reports whether the request produced a label
func (r Result) OK() bool { return r.Err == nil }

// Kind returns the failure kind, or -1 for successful results and errors
// that did not come from a classifier.
func (r Result) Kind() ErrorKind {
	var pe *PredictError
	if errors.As(r.Err, &pe) {
		return pe.Kind
	}
	return -1
}

// Outcome labels used for metrics and logs
func (r Result) Outcome() string {
	if r.OK() {
		return "success"
	}
	if k := r.Kind(); k >= 0 {
		return k.String()
	}
	return "error"
}
