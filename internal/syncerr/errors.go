// Package syncerr classifies the failures a reconciliation run can hit.
//
// Config, InputParse and Signature errors, and API errors on the initial
// portfolio read, abort a run. Lookup errors and API errors on item writes are
// per-item: they are recorded in the run report and the run continues.
package syncerr

import (
	"errors"
	"fmt"
)

// Kind identifies the class of a sync failure.
type Kind string

const (
	KindConfig     Kind = "config"
	KindInputParse Kind = "input_parse"
	KindLookup     Kind = "lookup"
	KindAPI        Kind = "api"
	KindSignature  Kind = "signature"
)

// Sentinels for errors.Is checks against a classified *Error.
var (
	ErrConfig     = errors.New("configuration error")
	ErrInputParse = errors.New("input parse error")
	ErrLookup     = errors.New("lookup error")
	ErrAPI        = errors.New("api error")
	ErrSignature  = errors.New("signature error")
)

var sentinels = map[Kind]error{
	KindConfig:     ErrConfig,
	KindInputParse: ErrInputParse,
	KindLookup:     ErrLookup,
	KindAPI:        ErrAPI,
	KindSignature:  ErrSignature,
}

// Error is a classified sync failure.
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "FetchPortfolio".
	Op string
	// ItemID is the Kubera item involved, empty for run-level failures.
	ItemID string
	// StatusCode is the HTTP status for API errors, 0 otherwise.
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, sentinels[e.Kind])
	if e.ItemID != "" {
		msg += fmt.Sprintf(" (item %s)", e.ItemID)
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" [status %d]", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// New builds a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Config reports missing or invalid configuration.
func Config(op string, format string, args ...any) *Error {
	return New(KindConfig, op, fmt.Errorf(format, args...))
}

// InputParse reports a malformed snapshot, mapping or group file.
func InputParse(op string, err error) *Error {
	return New(KindInputParse, op, err)
}

// Lookup reports a mapped item missing from the fetched portfolio.
func Lookup(op, itemID string) *Error {
	return &Error{Kind: KindLookup, Op: op, ItemID: itemID, Err: errors.New("item not found in portfolio")}
}

// API reports a transport or HTTP failure talking to a remote service.
func API(op, itemID string, status int, err error) *Error {
	return &Error{Kind: KindAPI, Op: op, ItemID: itemID, StatusCode: status, Err: err}
}

// Signature reports malformed signer inputs.
func Signature(op string, format string, args ...any) *Error {
	return New(KindSignature, op, fmt.Errorf(format, args...))
}

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}
