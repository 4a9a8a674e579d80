package vulndb

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// TimestampFormat is the on-disk date format: UTC, microsecond precision and
// no offset suffix.
const TimestampFormat = "2006-01-02T15:04:05.000000"

var trailingOffset = regexp.MustCompile(`(Z|[+-]\d{2}:?\d{2})$`)

var timestampFormats = []string{
	TimestampFormat,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 date. A trailing numeric offset is
// stripped before parsing, the wall clock value is kept as UTC.
func ParseTimestamp(value string) (Timestamp, error) {
	stripped := trailingOffset.ReplaceAllString(value, "")

	var err error
	for _, format := range timestampFormats {
		var parsed time.Time
		parsed, err = time.Parse(format, stripped)
		if err == nil {
			return Timestamp{parsed.UTC()}, nil
		}
	}

	return Timestamp{}, fmt.Errorf("could not parse date %q: %w", value, err)
}

// Timestamp is a time serialized in TimestampFormat.
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Microsecond)}
}

var (
	_ json.Marshaler   = Timestamp{}
	_ json.Unmarshaler = (*Timestamp)(nil)
)

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(TimestampFormat))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var value string
	err := json.Unmarshal(b, &value)
	if err != nil {
		return err
	}

	parsed, err := ParseTimestamp(value)
	if err != nil {
		return err
	}

	*t = parsed
	return nil
}

func (t Timestamp) After(other Timestamp) bool {
	return t.Time.After(other.Time)
}

func (t Timestamp) String() string {
	return t.UTC().Format(TimestampFormat)
}
