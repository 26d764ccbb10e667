// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

// Package codec provides implementations of the mbus.Codec interface.
//
// Message values may be []byte or string, or a type that supports the
// encoding.BinaryMarshaler or encoding.TextMarshaler interfaces, with its
// pointer supporting the corresponding unmarshaler. Use [Binary] when the
// message type has a hand-written binary encoding, [Auto] to choose an
// encoding from the type at run time, [JSON] for ad hoc types, and [Func] to
// adapt a pair of plain functions.
package codec

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"

	"github.com/arkbow/mbus"
)

// Func adapts a pair of encoding and decoding functions to a Codec.
func Func[T any](enc func(T) ([]byte, error), dec func([]byte) (T, error)) mbus.Codec[T] {
	return funcCodec[T]{enc: enc, dec: dec}
}

type funcCodec[T any] struct {
	enc func(T) ([]byte, error)
	dec func([]byte) (T, error)
}

func (f funcCodec[T]) Encode(v T) ([]byte, error)    { return f.enc(v) }
func (f funcCodec[T]) Decode(data []byte) (T, error) { return f.dec(data) }

// Binary returns a Codec for a type T whose values implement
// encoding.BinaryMarshaler and whose pointer implements
// encoding.BinaryUnmarshaler.
func Binary[T encoding.BinaryMarshaler, P interface {
	*T
	encoding.BinaryUnmarshaler
}]() mbus.Codec[T] {
	return Func(func(v T) ([]byte, error) {
		return v.MarshalBinary()
	}, func(data []byte) (T, error) {
		var v T
		err := P(&v).UnmarshalBinary(data)
		return v, err
	})
}

// Auto returns a Codec that chooses an encoding based on the concrete type of
// T, following the rules of [Marshal] and [Unmarshal]. Unsupported types are
// reported as errors when a value is encoded or decoded, not when the codec
// is constructed.
func Auto[T any]() mbus.Codec[T] {
	return Func(func(v T) ([]byte, error) {
		return Marshal(v)
	}, func(data []byte) (T, error) {
		var v T
		err := Unmarshal(data, &v)
		return v, err
	})
}

// JSON returns a Codec that encodes values of T as JSON.
func JSON[T any]() mbus.Codec[T] {
	return Func(func(v T) ([]byte, error) {
		return json.Marshal(v)
	}, func(data []byte) (T, error) {
		var v T
		err := json.Unmarshal(data, &v)
		return v, err
	})
}

// Unmarshal decodes data into v. The concrete type of v must be a pointer to
// a []byte or string, or must implement either the encoding.BinaryUnmarshaler
// interface or the encoding.TextUnmarshaler interface.  If v implements both,
// BinaryUnmarshaler is preferred.
func Unmarshal(data []byte, v any) error {
	switch t := v.(type) {
	case *[]byte:
		*t = bytes.Clone(data)
	case *string:
		*t = string(data)
	case encoding.BinaryUnmarshaler:
		return t.UnmarshalBinary(data)
	case encoding.TextUnmarshaler:
		return t.UnmarshalText(data)
	default:
		return fmt.Errorf("cannot unmarshal into %T", v)
	}
	return nil
}

// Marshal encodes v into data. The concrete type of v must be a []byte or
// string (or a pointer to these); otherwise it must implement either the
// encoding.BinaryMarshaler interface or the encoding.TextMarshaler
// interface. If v implements both, BinaryMarshaler is preferred.
//
// As a special case if v is a nil pointer to a string or []byte, the result is
// nil without error.
func Marshal(v any) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case *[]byte:
		if t == nil {
			return nil, nil
		}
		return *t, nil
	case string:
		return []byte(t), nil
	case *string:
		if t == nil {
			return nil, nil
		}
		return []byte(*t), nil
	case encoding.BinaryMarshaler:
		return t.MarshalBinary()
	case encoding.TextMarshaler:
		return t.MarshalText()
	default:
		return nil, fmt.Errorf("cannot marshal %T", v)
	}
}
