// Package canonical produces a deterministic serialization of report
// snapshots and the content fingerprint derived from it. Identical logical
// content always yields identical bytes: object keys are emitted in sorted
// order, numbers pass through verbatim as their JSON source text, and values
// that have no canonical JSON form (NaN, infinities, channels, ...) are
// rejected instead of being encoded best-effort.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"pvchain/internal/errs"
)

const op = "canonical.marshal"

// Marshal returns the canonical JSON encoding of v.
func Marshal(v interface{}) ([]byte, error) {
	// First pass through encoding/json resolves struct tags, omitempty and
	// nil-vs-absent handling. It also rejects non-finite floats for us.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, op, "content cannot be canonically represented", err)
	}

	// Decode with UseNumber so numeric source text survives untouched; a
	// float round-trip here could change the rendering between library
	// versions.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, errs.Wrap(errs.KindValidation, op, "decode intermediate form", err)
	}

	var buf bytes.Buffer
	if err := encode(&buf, tree); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Fingerprint returns the hex SHA-256 digest of the canonical encoding of v.
func Fingerprint(v interface{}) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", err
	}
	return SumHex(data), nil
}

// SumHex returns the hex SHA-256 digest of data. Callers that already hold
// the canonical bytes use this to avoid serializing twice.
func SumHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func encode(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(t.String())
	case string:
		return encodeString(buf, t)
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encode(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := encode(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return errs.New(errs.KindValidation, op, fmt.Sprintf("unsupported value of type %T", v))
	}
	return nil
}

// encodeString writes s as a JSON string without HTML escaping, so the
// encoding does not depend on encoding/json's default escape behavior.
func encodeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return errs.Wrap(errs.KindValidation, op, "encode string", err)
	}
	// Encoder.Encode appends a newline; strip it to keep output compact.
	buf.Truncate(buf.Len() - 1)
	return nil
}
