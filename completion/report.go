// Package completion encodes and parses completion reports, the messages
// that carry the outcome of an asynchronous call back across the boundary,
// and tracks the outbound calls still awaiting one.
//
// A report is always a three element JSON array:
//
//	[correlationId, true,  result]
//	[correlationId, false, "error text"]
package completion

import (
	"errors"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/hupe1980/interopmesh/core"
)

// Report is a decoded completion report.
type Report struct {
	// CallID is the correlation id. Outbound ids are decimal integers.
	CallID string
	// Success tells whether Result or Error is meaningful.
	Success bool
	// Result is the raw JSON result of a successful call.
	Result string
	// Error is the diagnostic text of a failed call.
	Error string
}

// Success builds a successful report carrying the raw JSON result.
func Success(callID, result string) Report {
	return Report{CallID: callID, Success: true, Result: result}
}

// Failure builds a failed report carrying err's text.
func Failure(callID string, err error) Report {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Report{CallID: callID, Error: msg}
}

// ID returns the correlation id as an integer.
func (r Report) ID() (int64, error) {
	id, err := strconv.ParseInt(r.CallID, 10, 64)
	if err != nil {
		return 0, core.Errorf(core.ErrMalformedPayload, "correlation id %q is not an integer", r.CallID)
	}
	return id, nil
}

// Encode renders r. Correlation ids in canonical integer form are emitted as
// JSON numbers, any other id (including "007" or "+5") as a JSON string.
func Encode(r Report) (string, error) {
	var (
		out = "[]"
		err error
	)
	if id, perr := strconv.ParseInt(r.CallID, 10, 64); perr == nil && strconv.FormatInt(id, 10) == r.CallID {
		out, err = sjson.Set(out, "-1", id)
	} else {
		out, err = sjson.Set(out, "-1", r.CallID)
	}
	if err != nil {
		return "", err
	}
	if out, err = sjson.Set(out, "-1", r.Success); err != nil {
		return "", err
	}

	if r.Success {
		raw := strings.TrimSpace(r.Result)
		if raw == "" {
			raw = "null"
		}
		if !gjson.Valid(raw) {
			return "", core.Errorf(core.ErrMalformedPayload, "result of call %s is not valid JSON", r.CallID)
		}
		return sjson.SetRaw(out, "-1", raw)
	}
	return sjson.Set(out, "-1", r.Error)
}

// Parse decodes a completion report received for an outbound call. The
// shape is checked in full before anything is returned; a malformed report
// has no channel to be reported on and fails locally.
func Parse(text string) (Report, error) {
	text = strings.TrimSpace(text)
	if !gjson.Valid(text) {
		return Report{}, malformed("completion report is not valid JSON")
	}
	root := gjson.Parse(text)
	if !root.IsArray() {
		return Report{}, malformed("completion report must be a JSON array")
	}
	elems := root.Array()
	if len(elems) != 3 {
		return Report{}, malformed("completion report must have exactly 3 elements, received " + strconv.Itoa(len(elems)))
	}

	idElem, okElem, valElem := elems[0], elems[1], elems[2]
	if idElem.Type != gjson.Number || idElem.Num != float64(idElem.Int()) {
		return Report{}, malformed("completion report correlation id must be an integer")
	}
	if !okElem.IsBool() {
		return Report{}, malformed("completion report success flag must be a boolean")
	}

	r := Report{CallID: strconv.FormatInt(idElem.Int(), 10), Success: okElem.Bool()}
	if r.Success {
		r.Result = valElem.Raw
		return r, nil
	}
	if valElem.Type == gjson.String {
		r.Error = valElem.Str
	} else {
		r.Error = valElem.Raw
	}
	return r, nil
}

func malformed(msg string) error {
	return &core.Error{Kind: core.ErrMalformedPayload, Message: msg}
}

// ErrUndeliverable is returned when an outbound call could not be handed to
// the other side.
var ErrUndeliverable = errors.New("completion: call undeliverable")
