package codec

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
	"github.com/modern-go/reflect2"
)

var (
	timeType    = reflect.TypeOf(time.Time{})
	bytesType   = reflect.TypeOf([]byte(nil))
	float64Type = reflect.TypeOf(float64(0))
	float32Type = reflect.TypeOf(float32(0))
)

// strategyExtension applies one Strategies set to a jsoniter API.
type strategyExtension struct {
	jsoniter.DummyExtension
	s Strategies
}

func (e *strategyExtension) UpdateStructDescriptor(sd *jsoniter.StructDescriptor) {
	if e.s.Keys != KeysSnakeCase {
		return
	}
	for _, b := range sd.Fields {
		if name := b.Field.Name(); name == "" || !unicode.IsUpper([]rune(name)[0]) {
			continue
		}
		if tag, ok := b.Field.Tag().Lookup("json"); ok && strings.Split(tag, ",")[0] != "" {
			continue
		}
		name := snakeCase(b.Field.Name())
		b.FromNames = []string{name}
		b.ToNames = []string{name}
	}
}

func (e *strategyExtension) CreateDecoder(typ reflect2.Type) jsoniter.ValDecoder {
	if c := e.codecFor(typ); c != nil {
		return c
	}
	return nil
}

func (e *strategyExtension) CreateEncoder(typ reflect2.Type) jsoniter.ValEncoder {
	if c := e.codecFor(typ); c != nil {
		return c
	}
	return nil
}

type valCodec interface {
	jsoniter.ValDecoder
	jsoniter.ValEncoder
}

func (e *strategyExtension) codecFor(typ reflect2.Type) valCodec {
	switch typ.Type1() {
	case timeType:
		if e.s.Date != DateRFC3339Nano {
			return &timeCodec{strategy: e.s.Date}
		}
	case bytesType:
		if e.s.Data == DataByteArray {
			return byteArrayCodec{}
		}
	case float64Type:
		if e.s.Float == FloatConvertString {
			return &floatCodec{bits: 64}
		}
	case float32Type:
		if e.s.Float == FloatConvertString {
			return &floatCodec{bits: 32}
		}
	}
	return nil
}

// === time ===

type timeCodec struct {
	strategy DateStrategy
}

func (c *timeCodec) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	t := (*time.Time)(ptr)
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
	case jsoniter.StringValue:
		if c.strategy != DateRFC3339 {
			iter.ReportError("decode time", "expected a number")
			return
		}
		parsed, err := time.Parse(time.RFC3339, iter.ReadString())
		if err != nil {
			iter.ReportError("decode time", err.Error())
			return
		}
		*t = parsed
	case jsoniter.NumberValue:
		if c.strategy == DateRFC3339 {
			iter.ReportError("decode time", "expected an RFC 3339 string")
			return
		}
		parsed, err := parseUnix(string(iter.ReadNumber()), c.strategy == DateUnixMilliseconds)
		if err != nil {
			iter.ReportError("decode time", err.Error())
			return
		}
		*t = parsed
	default:
		iter.ReportError("decode time", "unexpected value")
	}
}

func (c *timeCodec) IsEmpty(unsafe.Pointer) bool { return false }

func (c *timeCodec) Encode(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	t := *(*time.Time)(ptr)
	switch c.strategy {
	case DateRFC3339:
		stream.WriteString(t.Format(time.RFC3339))
	case DateUnixSeconds:
		if t.Nanosecond() == 0 {
			stream.WriteInt64(t.Unix())
			return
		}
		stream.WriteRaw(formatUnix(t))
	case DateUnixMilliseconds:
		stream.WriteInt64(t.UnixMilli())
	default:
		stream.WriteString(t.Format(time.RFC3339Nano))
	}
}

// Bounds of four-digit years, 0001-01-01 to 9999-12-31T23:59:59Z.
const (
	minUnixSeconds = -62135596800
	maxUnixSeconds = 253402300799
)

// parseUnix reads a decimal number of seconds (or milliseconds) since the
// epoch without going through float64, so nanoseconds survive.
func parseUnix(num string, milli bool) (time.Time, error) {
	if strings.ContainsAny(num, "eE") {
		f, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return time.Time{}, err
		}
		num = strconv.FormatFloat(f, 'f', -1, 64)
	}
	neg := strings.HasPrefix(num, "-")
	num = strings.TrimPrefix(num, "-")
	whole, frac, _ := strings.Cut(num, ".")

	w, err := strconv.ParseUint(whole, 10, 63)
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp %s out of range", num)
	}

	digits := 9
	if milli {
		digits = 6
	}
	if len(frac) > digits {
		frac = frac[:digits]
	}
	frac += strings.Repeat("0", digits-len(frac))
	f, err := strconv.ParseUint(frac, 10, 32)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp fraction %q", frac)
	}

	sec, nsec := int64(w), int64(f)
	if milli {
		sec, nsec = int64(w/1000), int64(w%1000)*int64(time.Millisecond)+int64(f)
	}
	if neg {
		sec, nsec = -sec, -nsec
	}
	if sec < minUnixSeconds || sec > maxUnixSeconds {
		return time.Time{}, fmt.Errorf("timestamp %s out of range", num)
	}
	return time.Unix(sec, nsec).UTC(), nil
}

// formatUnix renders t as exact decimal seconds with trailing zeros trimmed.
func formatUnix(t time.Time) string {
	sec, nsec := t.Unix(), int64(t.Nanosecond())
	sign := ""
	if sec < 0 {
		sign = "-"
		sec = -sec
		if nsec > 0 {
			sec--
			nsec = int64(time.Second) - nsec
		}
	}
	frac := strings.TrimRight(fmt.Sprintf("%09d", nsec), "0")
	return fmt.Sprintf("%s%d.%s", sign, sec, frac)
}

// === bytes ===

type byteArrayCodec struct{}

func (byteArrayCodec) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	b := (*[]byte)(ptr)
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		*b = nil
	case jsoniter.ArrayValue:
		out := make([]byte, 0)
		for iter.ReadArray() {
			out = append(out, iter.ReadUint8())
		}
		*b = out
	default:
		iter.ReportError("decode bytes", "expected an array of numbers")
	}
}

func (byteArrayCodec) IsEmpty(ptr unsafe.Pointer) bool { return len(*(*[]byte)(ptr)) == 0 }

func (byteArrayCodec) Encode(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	b := *(*[]byte)(ptr)
	if b == nil {
		stream.WriteNil()
		return
	}
	stream.WriteArrayStart()
	for i, v := range b {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteUint8(v)
	}
	stream.WriteArrayEnd()
}

// === non-finite floats ===

type floatCodec struct {
	bits int
}

func (c *floatCodec) set(ptr unsafe.Pointer, f float64) {
	if c.bits == 32 {
		*(*float32)(ptr) = float32(f)
		return
	}
	*(*float64)(ptr) = f
}

func (c *floatCodec) get(ptr unsafe.Pointer) float64 {
	if c.bits == 32 {
		return float64(*(*float32)(ptr))
	}
	return *(*float64)(ptr)
}

func (c *floatCodec) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
	case jsoniter.NumberValue:
		c.set(ptr, iter.ReadFloat64())
	case jsoniter.StringValue:
		switch s := iter.ReadString(); s {
		case PositiveInfinity:
			c.set(ptr, math.Inf(1))
		case NegativeInfinity:
			c.set(ptr, math.Inf(-1))
		case NaN:
			c.set(ptr, math.NaN())
		default:
			iter.ReportError("decode float", "unrecognized non-finite value "+s)
		}
	default:
		iter.ReportError("decode float", "expected a number")
	}
}

func (c *floatCodec) IsEmpty(ptr unsafe.Pointer) bool { return c.get(ptr) == 0 }

func (c *floatCodec) Encode(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	f := c.get(ptr)
	switch {
	case math.IsInf(f, 1):
		stream.WriteString(PositiveInfinity)
	case math.IsInf(f, -1):
		stream.WriteString(NegativeInfinity)
	case math.IsNaN(f):
		stream.WriteString(NaN)
	case c.bits == 32:
		stream.WriteFloat32(float32(f))
	default:
		stream.WriteFloat64(f)
	}
}

// snakeCase converts a Go identifier: "UserID" -> "user_id", "CreatedAt" -> "created_at".
func snakeCase(name string) string {
	runes := []rune(name)
	var sb strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if prevLower || (nextLower && unicode.IsUpper(runes[i-1])) {
					sb.WriteByte('_')
				}
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
