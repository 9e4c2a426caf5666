package codec

// DataStrategy selects how []byte values are represented.
type DataStrategy int

const (
	// DataBase64 represents bytes as a base64 string.
	DataBase64 DataStrategy = iota
	// DataByteArray represents bytes as an array of numbers.
	DataByteArray
)

// DateStrategy selects how time.Time values are represented.
type DateStrategy int

const (
	// DateRFC3339Nano represents times as RFC 3339 strings with nanoseconds.
	DateRFC3339Nano DateStrategy = iota
	// DateRFC3339 represents times as RFC 3339 strings with second precision.
	DateRFC3339
	// DateUnixSeconds represents times as seconds since the Unix epoch.
	DateUnixSeconds
	// DateUnixMilliseconds represents times as milliseconds since the Unix epoch.
	DateUnixMilliseconds
)

// FloatStrategy selects how non-finite floats (±Inf, NaN) are handled.
type FloatStrategy int

const (
	// FloatThrow fails on non-finite values.
	FloatThrow FloatStrategy = iota
	// FloatConvertString maps non-finite values to the strings
	// PositiveInfinity, NegativeInfinity and NaN.
	FloatConvertString
)

const (
	PositiveInfinity = "+Inf"
	NegativeInfinity = "-Inf"
	NaN              = "NaN"
)

// KeyStrategy selects how struct field names map to document keys.
// Explicit json tags always win.
type KeyStrategy int

const (
	// KeysDefault uses the Go field name.
	KeysDefault KeyStrategy = iota
	// KeysSnakeCase uses the snake_case form of the Go field name.
	KeysSnakeCase
)

// Strategies is one set of representation choices. The zero value selects
// the defaults.
type Strategies struct {
	Data  DataStrategy
	Date  DateStrategy
	Float FloatStrategy
	Keys  KeyStrategy
}

// Config holds independent strategies for decoding and encoding.
type Config struct {
	Decode Strategies
	Encode Strategies
}

func DefaultConfig() Config { return Config{} }

// Symmetric returns a Config using s in both directions.
func Symmetric(s Strategies) Config { return Config{Decode: s, Encode: s} }
