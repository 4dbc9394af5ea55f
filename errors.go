// Copyright 2021 Airbus Defence and Space
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vrt

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
)

// ErrorCategory is the severity of a message emitted while processing a call
type ErrorCategory int

const (
	//CE_None is not an error
	CE_None ErrorCategory = iota
	//CE_Debug is a debug message
	CE_Debug
	//CE_Warning is a warning, the operation continues
	CE_Warning
	//CE_Failure is an error, the operation fails
	CE_Failure
	//CE_Fatal is a non-recoverable error
	CE_Fatal
)

// Error kinds. Every error returned by this package matches one of these with errors.Is
var (
	// ErrInvalidInput is returned for malformed XML, unknown options or illegal windows
	ErrInvalidInput = errors.New("invalid input")
	// ErrIOFailure is returned when an underlying dataset could not be opened or read
	ErrIOFailure = errors.New("i/o failure")
	// ErrUnsupported is returned when a feature is not implemented for a band or dataset subclass
	ErrUnsupported = errors.New("unsupported")
	// ErrCapacity is returned on arithmetic overflow or oversized documents
	ErrCapacity = errors.New("capacity exceeded")
	// ErrInconsistentState is returned when an operation conflicts with the current object state
	ErrInconsistentState = errors.New("inconsistent state")
)

type kindError struct {
	kind error
	err  error
}

func (ke *kindError) Error() string {
	return ke.err.Error()
}

func (ke *kindError) Unwrap() []error {
	return []error{ke.err, ke.kind}
}

// errorf formats an error of the given kind. %w verbs are honored.
func errorf(kind error, format string, args ...interface{}) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, args...)}
}

// asKind tags err with kind unless it already carries one
func asKind(kind error, err error) error {
	if err == nil {
		return nil
	}
	for _, k := range []error{ErrInvalidInput, ErrIOFailure, ErrUnsupported, ErrCapacity, ErrInconsistentState} {
		if errors.Is(err, k) {
			return err
		}
	}
	return &kindError{kind: kind, err: err}
}

type multiError struct {
	errs []error
}

func (me *multiError) Error() string {
	msgs := make([]string, len(me.errs))
	for i := range me.errs {
		msgs[i] = me.errs[i].Error()
	}
	return strings.Join(msgs, "\n")
}

func (me *multiError) Unwrap() []error {
	return me.errs
}

func combine(e1, e2 error) error {
	if e1 == nil {
		return e2
	}
	if e2 == nil {
		return e1
	}
	var errs []error
	if me, ok := e1.(*multiError); ok {
		errs = append(errs, me.errs...)
	} else {
		errs = append(errs, e1)
	}
	if me, ok := e2.(*multiError); ok {
		errs = append(errs, me.errs...)
	} else {
		errs = append(errs, e2)
	}
	return &multiError{errs: errs}
}

// ErrorHandler is a function that can be used to override the default behavior
// of logging warnings and treating failures as errors. When an ErrorHandler
// is passed as an option to a function of this package, all messages emitted during the
// call are passed to this function, which can decide wether they correspond to an
// actual error or not.
//
// If the ErrorHandler returns nil, the parent function will not return an error for that
// message. It is up to the ErrorHandler to log the message if needed.
//
// If the ErrorHandler returns an error, that error will be returned as-is to the caller
// of the parent function
type ErrorHandler func(ec ErrorCategory, code int, msg string) error

func defaultErrorHandler(ec ErrorCategory, code int, msg string) error {
	switch {
	case ec <= CE_Debug:
		return nil
	case ec == CE_Warning:
		log.Printf("vrt: %s", msg)
		return nil
	default:
		return errors.New(msg)
	}
}

// diagnostics routes messages emitted during a call to the caller's ErrorHandler
type diagnostics struct {
	eh ErrorHandler
}

func newDiagnostics(eh ErrorHandler) diagnostics {
	if eh == nil {
		eh = defaultErrorHandler
	}
	return diagnostics{eh: eh}
}

func (d diagnostics) debugf(format string, args ...interface{}) {
	_ = d.eh(CE_Debug, 0, fmt.Sprintf(format, args...))
}

// warnf emits a warning. The returned error is non nil only if the handler
// decided to promote the warning to an error.
func (d diagnostics) warnf(format string, args ...interface{}) error {
	return d.eh(CE_Warning, 0, fmt.Sprintf(format, args...))
}

// fail passes err through the handler, keeping its kind if the handler returns
// a plain error for it.
func (d diagnostics) fail(err error) error {
	if err == nil {
		return nil
	}
	herr := d.eh(CE_Failure, 0, err.Error())
	if herr == nil {
		return nil
	}
	if herr.Error() == err.Error() {
		return err
	}
	return herr
}

type diagEntry struct {
	ec   ErrorCategory
	code int
	msg  string
}

// diagCollector records messages emitted on a worker goroutine so they can be
// replayed in order on the calling goroutine
type diagCollector struct {
	mu      sync.Mutex
	entries []diagEntry
}

func (dc *diagCollector) handler(ec ErrorCategory, code int, msg string) error {
	dc.mu.Lock()
	dc.entries = append(dc.entries, diagEntry{ec, code, msg})
	dc.mu.Unlock()
	if ec >= CE_Failure {
		return errors.New(msg)
	}
	return nil
}

func (dc *diagCollector) replay(d diagnostics) error {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	var err error
	for _, e := range dc.entries {
		if e.ec >= CE_Failure {
			continue
		}
		err = combine(err, d.eh(e.ec, e.code, e.msg))
	}
	return err
}

type errorAndLoggingOpts struct {
	eh     ErrorHandler
	config []string
}

type errorCallback struct {
	fn ErrorHandler
}

type errorAndLoggingOption interface {
	setErrorAndLoggingOpt(elo *errorAndLoggingOpts)
}

// ErrLogger sets the ErrorHandler that will receive the messages emitted by the call
// it is passed to.
func ErrLogger(fn ErrorHandler) interface {
	errorAndLoggingOption
	AddBandOption
	BandIOOption
	CloseOption
	CreateOption
	DatasetIOOption
	OpenOption
	SourceOption
	TranslateOption
	VSIHandlerOption
} {
	return errorCallback{fn}
}

func (ec errorCallback) setErrorAndLoggingOpt(elo *errorAndLoggingOpts) {
	elo.eh = ec.fn
}
func (ec errorCallback) setAddBandOpt(o *addBandOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setBandIOOpt(o *bandIOOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setCloseOpt(o *closeOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setCreateOpt(o *createOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setDatasetIOOpt(o *datasetIOOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setOpenOpt(o *openOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setSourceOpt(o *sourceOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setTranslateOpt(o *translateOpts) {
	o.errorHandler = ec.fn
}
func (ec errorCallback) setVSIHandlerOpt(o *vsiHandlerOpts) {
	o.errorHandler = ec.fn
}
