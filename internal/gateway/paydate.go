package gateway

import "time"

// payDateLayout is the gateway's fixed-width timestamp format
// (yyyyMMddHHmmss), expressed in the gateway's local timezone.
const payDateLayout = "20060102150405"

// LoadLocation resolves the gateway's named source timezone. An empty or
// unknown name falls back to UTC so a broken tzdata entry can never take
// the callback path down.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParsePayDate converts the gateway's local-timezone timestamp to UTC.
// A missing or unparseable value falls back to the caller's clock.
func ParsePayDate(value string, loc *time.Location, now time.Time) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	if value == "" {
		return now.UTC()
	}
	t, err := time.ParseInLocation(payDateLayout, value, loc)
	if err != nil {
		return now.UTC()
	}
	return t.UTC()
}

// FormatPayDate renders a timestamp in the gateway's local-timezone
// fixed-width format, used for vnp_CreateDate on outgoing requests.
func FormatPayDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(payDateLayout)
}
