// Package models holds the typed records produced by one collection cycle.
package models

import (
	"encoding/json"
	"math"
	"strconv"
)

// MissingToken is how an unavailable value is rendered in the collection log.
const MissingToken = "NA"

// Kind describes what a Value measures. The zero Kind is KindMissing, so a
// zero Value is always the "missing" sentinel rather than a silent zero.
type Kind uint8

const (
	KindMissing Kind = iota
	KindCount
	KindRate
	KindPercent
	KindTemperature
	KindDuration
	KindKilobytes
	KindText
)

var kindNames = [...]string{
	KindMissing:     "missing",
	KindCount:       "count",
	KindRate:        "rate",
	KindPercent:     "percent",
	KindTemperature: "temperature",
	KindDuration:    "duration",
	KindKilobytes:   "kilobytes",
	KindText:        "text",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is a numeric or text scalar tagged with its kind.
type Value struct {
	kind Kind
	num  float64
	text string
}

// Missing returns the explicit "value unavailable" sentinel.
func Missing() Value { return Value{} }

// Count is a non-negative integer counter. Negative input yields Missing.
func Count(n int64) Value {
	if n < 0 {
		return Missing()
	}
	return Value{kind: KindCount, num: float64(n)}
}

// Celsius is an integer temperature reading.
func Celsius(n int64) Value { return Value{kind: KindTemperature, num: float64(n)} }

// Rate is a per-second quantity as computed by the reporting tool.
func Rate(f float64) Value { return number(KindRate, f) }

// Percent is a utilisation percentage.
func Percent(f float64) Value { return number(KindPercent, f) }

// Millis is a latency in milliseconds.
func Millis(f float64) Value { return number(KindDuration, f) }

// Kilobytes is a size or volume in KiB.
func Kilobytes(f float64) Value { return number(KindKilobytes, f) }

// Text is a string value; an empty string is treated as missing.
func Text(s string) Value {
	if s == "" {
		return Missing()
	}
	return Value{kind: KindText, text: s}
}

func number(kind Kind, f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Missing()
	}
	return Value{kind: kind, num: f}
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether v is the missing sentinel.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// Float returns the numeric value, or false for missing and text values.
func (v Value) Float() (float64, bool) {
	if v.kind == KindMissing || v.kind == KindText {
		return 0, false
	}
	return v.num, true
}

// Str returns the text value, or false for anything that is not text.
func (v Value) Str() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.text, true
}

func (v Value) isInteger() bool {
	return v.kind == KindCount || v.kind == KindTemperature
}

// String renders the value for the tabular log.
func (v Value) String() string {
	switch v.kind {
	case KindMissing:
		return MissingToken
	case KindText:
		return v.text
	}
	if v.isInteger() {
		return strconv.FormatInt(int64(v.num), 10)
	}
	return strconv.FormatFloat(v.num, 'f', -1, 64)
}

// Interface returns a plain Go value: nil, int64, float64 or string.
func (v Value) Interface() any {
	switch v.kind {
	case KindMissing:
		return nil
	case KindText:
		return v.text
	}
	if v.isInteger() {
		return int64(v.num)
	}
	return v.num
}

// MarshalJSON encodes missing as null.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}
