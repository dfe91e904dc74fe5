// Package marshal converts between the textual JSON payloads that cross the
// boundary and typed Go values. Parameters declared as handle wrappers
// (*core.Ref[T]) travel as {"<handle-key>": N} and are bound through the
// session's reference table.
package marshal

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/hupe1980/interopmesh/core"
)

// Table is the view of the reference table the marshaller needs.
type Table interface {
	Find(h core.Handle) (any, error)
	TrackRef(ref core.Handled) core.Handle
}

// Marshaller decodes argument arrays and encodes results for one session.
// It holds no mutable state and is safe for concurrent use.
type Marshaller struct {
	handleKey string
	table     Table
}

// New creates a Marshaller using handleKey as the reserved key of the
// handle-wrapper shape. An empty key selects core.DefaultHandleKey.
func New(handleKey string, table Table) *Marshaller {
	if handleKey == "" {
		handleKey = core.DefaultHandleKey
	}
	return &Marshaller{handleKey: handleKey, table: table}
}

// HandleKey returns the reserved key of the handle-wrapper shape.
func (m *Marshaller) HandleKey() string { return m.handleKey }

// Parse decodes payload, a positional JSON array, against params. Methods
// without parameters skip parsing entirely. Either every value is decoded or
// an error is returned:
//
//	ErrArity            fewer elements than parameters
//	ErrMalformedPayload not an array, trailing elements, undecodable element
//	ErrTypeMismatch     handle passed for a plain parameter or vice versa
func (m *Marshaller) Parse(methodID, payload string, params []reflect.Type) ([]reflect.Value, error) {
	if len(params) == 0 {
		return nil, nil
	}

	payload = strings.TrimSpace(payload)
	if payload == "" || payload == "null" {
		return nil, arity(methodID, len(params), 0)
	}
	if !gjson.Valid(payload) {
		return nil, core.Errorf(core.ErrMalformedPayload, "in call to '%s': arguments are not valid JSON", methodID)
	}

	root := gjson.Parse(payload)
	if !root.IsArray() {
		return nil, core.Errorf(core.ErrMalformedPayload, "in call to '%s': arguments must be a JSON array", methodID)
	}

	elems := root.Array()
	if len(elems) < len(params) {
		return nil, arity(methodID, len(params), len(elems))
	}
	if len(elems) > len(params) {
		return nil, core.Errorf(core.ErrMalformedPayload, "in call to '%s': unexpected trailing arguments, expects %d, received %d",
			methodID, len(params), len(elems))
	}

	values := make([]reflect.Value, len(params))
	for i, pt := range params {
		v, err := m.decodeArg(methodID, i, elems[i], pt)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}

func (m *Marshaller) decodeArg(methodID string, i int, elem gjson.Result, pt reflect.Type) (reflect.Value, error) {
	wrapper := core.IsHandleWrapper(pt)
	h, isHandle := m.handleOf(elem)

	switch {
	case wrapper && !isHandle:
		return reflect.Value{}, core.Errorf(core.ErrTypeMismatch,
			"in call to '%s', parameter of type '%s' at index %d expects an object handle of the form {\"%s\": id}",
			methodID, core.WrapperName(pt), i+1, m.handleKey)
	case !wrapper && isHandle:
		return reflect.Value{}, core.Errorf(core.ErrTypeMismatch,
			"in call to '%s', parameter of type '%s' at index %d must be declared as type '%s' to receive the incoming value",
			methodID, core.TypeName(pt), i+1, core.WrapperName(pt))
	case wrapper:
		v, err := m.bind(h, pt)
		if err != nil {
			if ce, ok := err.(*core.Error); ok {
				return reflect.Value{}, &core.Error{
					Kind:    ce.Kind,
					Message: fmt.Sprintf("in call to '%s', argument at index %d: %s", methodID, i+1, ce.Message),
					Cause:   ce.Cause,
				}
			}
			return reflect.Value{}, err
		}
		return v, nil
	}

	ptr := reflect.New(pt)
	if err := json.Unmarshal([]byte(elem.Raw), ptr.Interface()); err != nil {
		return reflect.Value{}, core.Errorf(core.ErrMalformedPayload, "in call to '%s', could not decode argument at index %d as '%s'",
			methodID, i+1, core.TypeName(pt)).WithCause(err)
	}
	return ptr.Elem(), nil
}

// handleOf reports whether elem has the handle-wrapper shape: an object with
// exactly one key, the handle key, mapping to an integer.
func (m *Marshaller) handleOf(elem gjson.Result) (core.Handle, bool) {
	if !elem.IsObject() {
		return 0, false
	}
	fields := elem.Map()
	if len(fields) != 1 {
		return 0, false
	}
	v, ok := fields[m.handleKey]
	if !ok || v.Type != gjson.Number || v.Num != float64(v.Int()) {
		return 0, false
	}
	return core.Handle(v.Int()), true
}

// bind resolves h through the reference table into a value of wrapper type
// wt. A tracked wrapper of exactly that type is passed through unchanged.
func (m *Marshaller) bind(h core.Handle, wt reflect.Type) (reflect.Value, error) {
	obj, err := m.table.Find(h)
	if err != nil {
		return reflect.Value{}, err
	}
	if reflect.TypeOf(obj) == wt {
		return reflect.ValueOf(obj), nil
	}

	target := obj
	if ref, ok := obj.(core.Handled); ok {
		target = ref.RefTarget()
	}
	nv := reflect.New(wt.Elem())
	if err := nv.Interface().(core.Handled).BindRef(h, target); err != nil {
		return reflect.Value{}, err
	}
	return nv, nil
}

// EncodeResult encodes a method's return value. When the declared type (or,
// for undeclared results, the dynamic value) is a handle wrapper the wrapper
// is tracked and its handle shape is returned.
func (m *Marshaller) EncodeResult(v reflect.Value, declared reflect.Type) (string, error) {
	if !v.IsValid() {
		return "null", nil
	}
	if core.IsHandleWrapper(declared) || (declared == nil || declared.Kind() == reflect.Interface) && isWrapperValue(v) {
		if v.IsNil() {
			return "null", nil
		}
		ref := v.Interface().(core.Handled)
		return m.HandleJSON(m.table.TrackRef(ref))
	}
	return m.EncodeValue(v.Interface())
}

// EncodeValue encodes an arbitrary value, tracking handle wrappers.
func (m *Marshaller) EncodeValue(v any) (string, error) {
	if ref, ok := v.(core.Handled); ok {
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return "null", nil
		}
		return m.HandleJSON(m.table.TrackRef(ref))
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", core.Errorf(core.ErrMalformedPayload, "could not encode value of type '%T'", v).WithCause(err)
	}
	return string(b), nil
}

// EncodeArgs encodes an outbound positional argument array.
func (m *Marshaller) EncodeArgs(args []any) (string, error) {
	out := "[]"
	for _, a := range args {
		raw, err := m.EncodeValue(a)
		if err != nil {
			return "", err
		}
		if out, err = sjson.SetRaw(out, "-1", raw); err != nil {
			return "", err
		}
	}
	return out, nil
}

// HandleJSON renders the handle-wrapper shape for h.
func (m *Marshaller) HandleJSON(h core.Handle) (string, error) {
	return sjson.Set("{}", escapeKey(m.handleKey), int64(h))
}

// DecodeValue decodes raw against t. A nil t yields the raw JSON as
// json.RawMessage; a handle-wrapper t binds through the reference table.
func (m *Marshaller) DecodeValue(raw string, t reflect.Type) (any, error) {
	raw = strings.TrimSpace(raw)
	if t == nil {
		return json.RawMessage(raw), nil
	}
	if !gjson.Valid(raw) {
		return nil, core.Errorf(core.ErrMalformedPayload, "result is not valid JSON")
	}
	if core.IsHandleWrapper(t) {
		if raw == "null" {
			return reflect.Zero(t).Interface(), nil
		}
		h, ok := m.handleOf(gjson.Parse(raw))
		if !ok {
			return nil, core.Errorf(core.ErrTypeMismatch, "result of type '%s' expects an object handle of the form {\"%s\": id}",
				core.TypeName(t), m.handleKey)
		}
		v, err := m.bind(h, t)
		if err != nil {
			return nil, err
		}
		return v.Interface(), nil
	}

	ptr := reflect.New(t)
	if err := json.Unmarshal([]byte(raw), ptr.Interface()); err != nil {
		return nil, core.Errorf(core.ErrMalformedPayload, "could not decode result as '%s'", core.TypeName(t)).WithCause(err)
	}
	return ptr.Elem().Interface(), nil
}

func isWrapperValue(v reflect.Value) bool {
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return false
		}
		v = v.Elem()
	}
	return core.IsHandleWrapper(v.Type())
}

func arity(methodID string, expected, received int) error {
	return core.Errorf(core.ErrArity, "in call to '%s': expects %d, received %d", methodID, expected, received)
}

// escapeKey escapes sjson path metacharacters in a literal object key.
func escapeKey(k string) string {
	var b strings.Builder
	for _, r := range k {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', ':':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
