// Package core provides the data model, canonical encoding, error
// taxonomy, logging interfaces, and configuration shared by every
// execrt subsystem.
package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// Value is the tagged-union JSON representation used for envelope
// payloads, agent responses, and anything else that must round-trip
// through canonical encoding. Only the types produced by
// encoding/json.Unmarshal(..., &v) with UseNumber appear here: nil,
// bool, json.Number, string, []Value, map[string]Value.
type Value = interface{}

// MarshalCanonical produces canonical JSON for content hashing: object
// keys sorted lexicographically at every nesting level, no
// insignificant whitespace, UTF-8, and NFC-normalized strings so that
// the same logical text normalizes to one byte sequence regardless of
// how the caller composed it.
//
// Canonical JSON forbids bare float64 values for amounts that must
// hash stably; json.Number and int-like values pass through verbatim.
// A plain float64 is accepted but rendered with the shortest
// round-trippable decimal representation (see DESIGN.md Open Question
// decisions) rather than rejected outright, since callers occasionally
// hand us float64 after a generic json.Unmarshal.
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		buf.WriteString(string(val))
		return nil
	case string:
		return encodeCanonicalString(buf, val)
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("canonical: non-finite float is not representable")
		}
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
		return nil
	case int:
		buf.WriteString(strconv.Itoa(val))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
		return nil
	case uint64:
		buf.WriteString(strconv.FormatUint(val, 10))
		return nil
	case []Value:
		return encodeCanonicalArray(buf, val)
	case map[string]Value:
		return encodeCanonicalObject(buf, val)
	case map[string]interface{}:
		m := make(map[string]Value, len(val))
		for k, v := range val {
			m[k] = v
		}
		return encodeCanonicalObject(buf, m)
	case []interface{}:
		arr := make([]Value, len(val))
		copy(arr, val)
		return encodeCanonicalArray(buf, arr)
	default:
		// Fall back to struct/pointer marshaling through encoding/json,
		// then re-decode as a generic Value so field order is re-sorted
		// and strings re-normalized. This lets typed structs (WALEntry,
		// ExecutionRecord, ...) feed MarshalCanonical directly.
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("canonical: marshal %T: %w", val, err)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var generic Value
		if err := dec.Decode(&generic); err != nil {
			return fmt.Errorf("canonical: redecode %T: %w", val, err)
		}
		return encodeCanonical(buf, generic)
	}
}

func encodeCanonicalString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)
	encoded, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("canonical: marshal string: %w", err)
	}
	buf.Write(encoded)
	return nil
}

func encodeCanonicalArray(buf *bytes.Buffer, arr []Value) error {
	buf.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeCanonical(buf, elem); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func encodeCanonicalObject(buf *bytes.Buffer, obj map[string]Value) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeCanonicalString(buf, k); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := encodeCanonical(buf, obj[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// UnmarshalCanonical decodes JSON into the tagged-union Value
// representation, preserving numeric precision via json.Number so a
// round trip through MarshalCanonical reproduces the same bytes.
func UnmarshalCanonical(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v Value
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("canonical: decode: %w", err)
	}
	return normalizeDecoded(v), nil
}

// normalizeDecoded converts the json package's native
// map[string]interface{}/[]interface{} shapes into this package's
// map[string]Value/[]Value shapes recursively.
func normalizeDecoded(v interface{}) Value {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]Value, len(val))
		for k, v := range val {
			out[k] = normalizeDecoded(v)
		}
		return out
	case []interface{}:
		out := make([]Value, len(val))
		for i, v := range val {
			out[i] = normalizeDecoded(v)
		}
		return out
	default:
		return val
	}
}

// ContentHash returns the lowercase hex SHA-256 digest of v's
// canonical encoding. Used for envelope hashes, response hashes, WAL
// entry hashes, and execution record hashes alike.
func ContentHash(v Value) (string, error) {
	canon, err := MarshalCanonical(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// MustContentHash is ContentHash for call sites that have already
// validated v is canonicalizable (e.g. values built internally, not
// parsed from untrusted input). It panics on error, which should be
// unreachable for well-formed internal types.
func MustContentHash(v Value) string {
	h, err := ContentHash(v)
	if err != nil {
		panic(fmt.Sprintf("core: MustContentHash: %v", err))
	}
	return h
}
