package biller

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedPayload is returned by normalizers when a raw payload cannot be
// decoded into the biller's envelope.
var ErrMalformedPayload = errors.New("biller: malformed payload")

// Normalizer turns a raw payload and its timestamps into a canonical Response.
type Normalizer func(payload string, requestDate, responseDate time.Time) (Response, error)

// Envelope is the common {code, reason, request, response} shape most billers
// return. Values are kept as raw JSON so the original bytes survive for audit.
type Envelope struct {
	Code     string
	Reason   string
	Request  Fieldset
	Response Fieldset

	// RawRequest and RawResponse are the untouched sub-documents.
	RawRequest  string
	RawResponse string
}

type rawEnvelope struct {
	Code     json.RawMessage `json:"code"`
	Reason   json.RawMessage `json:"reason"`
	Request  json.RawMessage `json:"request"`
	Response json.RawMessage `json:"response"`
}

// DecodeEnvelope parses the common envelope. The code and reason fields may be
// JSON strings or numbers.
func DecodeEnvelope(payload string) (*Envelope, error) {
	var raw rawEnvelope
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	env := &Envelope{
		Code:        scalar(raw.Code),
		Reason:      scalar(raw.Reason),
		RawRequest:  nullableRaw(raw.Request),
		RawResponse: nullableRaw(raw.Response),
	}

	var err error
	if env.Request, err = DecodeFieldset(raw.Request); err != nil {
		return nil, fmt.Errorf("%w: request: %v", ErrMalformedPayload, err)
	}
	if env.Response, err = DecodeFieldset(raw.Response); err != nil {
		return nil, fmt.Errorf("%w: response: %v", ErrMalformedPayload, err)
	}

	return env, nil
}

// Fieldset is a flat view of a JSON object where every scalar is rendered as a
// string. Nested objects are kept as their raw JSON text.
type Fieldset map[string]string

// DecodeFieldset decodes a JSON object into a Fieldset. Empty or null input
// produces an empty set.
func DecodeFieldset(data json.RawMessage) (Fieldset, error) {
	fs := Fieldset{}
	if len(data) == 0 || string(data) == "null" {
		return fs, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	for k, v := range obj {
		fs[k] = scalar(v)
	}
	return fs, nil
}

// Get returns the value for key, or "" when absent.
func (f Fieldset) Get(key string) string {
	return f[key]
}

// Has reports whether key is present with a non-empty value.
func (f Fieldset) Has(key string) bool {
	return f[key] != ""
}

// FirstOf returns the first non-empty value among keys.
func (f Fieldset) FirstOf(keys ...string) string {
	for _, k := range keys {
		if v := f[k]; v != "" {
			return v
		}
	}
	return ""
}

// MajorVersion parses the major component of a dotted version string such as
// "2.1.0". It returns false when the value is empty or not numeric.
func MajorVersion(v string) (int, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	major := v
	if i := strings.IndexByte(v, '.'); i >= 0 {
		major = v[:i]
	}
	n, err := strconv.Atoi(major)
	if err != nil {
		return 0, false
	}
	return n, true
}

// CodeSet is a fixed set of biller codes.
type CodeSet map[string]struct{}

// NewCodeSet builds a CodeSet from the given codes.
func NewCodeSet(codes ...string) CodeSet {
	s := make(CodeSet, len(codes))
	for _, c := range codes {
		s[c] = struct{}{}
	}
	return s
}

// Contains reports whether code belongs to the set.
func (s CodeSet) Contains(code string) bool {
	_, ok := s[code]
	return ok
}

func scalar(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	// numbers, booleans and nested documents keep their JSON text
	return strings.TrimSpace(string(raw))
}

func nullableRaw(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	return string(raw)
}
