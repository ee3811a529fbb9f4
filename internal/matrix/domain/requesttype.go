package domain

import (
	"fmt"
	"strings"
)

// RequestType is a matrix column. The numeric value is the column offset used
// by snapshot vectors, with the aggregate column first.
type RequestType uint8

const (
	TypeAny RequestType = iota
	TypeCookie
	TypeCSS
	TypeImage
	TypePlugin
	TypeScript
	TypeXHR
	TypeFrame
	TypeOther

	numTypes
)

// ColumnCount is the number of matrix columns including the aggregate.
const ColumnCount = int(numTypes)

var typeNames = [...]string{
	TypeAny:    "*",
	TypeCookie: "cookie",
	TypeCSS:    "css",
	TypeImage:  "image",
	TypePlugin: "plugin",
	TypeScript: "script",
	TypeXHR:    "xhr",
	TypeFrame:  "frame",
	TypeOther:  "other",
}

// String returns the canonical token used in rule text and JSON.
func (t RequestType) String() string {
	if t.Valid() {
		return typeNames[t]
	}
	return fmt.Sprintf("RequestType(%d)", t)
}

// Valid reports whether t is one of the closed set of columns.
func (t RequestType) Valid() bool { return t < numTypes }

// Column returns the vector offset of t.
func (t RequestType) Column() int { return int(t) }

// ParseRequestType converts a token into a RequestType (case-insensitive).
// "all" is accepted for the aggregate column.
func ParseRequestType(s string) (RequestType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "all" {
		return TypeAny, nil
	}
	for i, name := range typeNames {
		if s == name {
			return RequestType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidType, s)
}

// Columns returns every column in offset order.
func Columns() []RequestType {
	out := make([]RequestType, ColumnCount)
	for i := range out {
		out[i] = RequestType(i)
	}
	return out
}

// Headers maps column tokens to offsets, the lookup table a renderer needs.
func Headers() map[string]int {
	h := make(map[string]int, ColumnCount)
	for i, name := range typeNames {
		h[name] = i
	}
	return h
}

func (t RequestType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidType, t)
	}
	return []byte(t.String()), nil
}

func (t *RequestType) UnmarshalText(b []byte) error {
	v, err := ParseRequestType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
