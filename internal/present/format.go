// Package present formats timestamps for conversation lists and headers.
package present

import (
	"time"

	"golang.org/x/text/language"
)

const (
	clockLayout = "15:04"
	dateLayout  = "02/01/06"
)

// words holds the localized tokens for one language.
type words struct {
	today     string
	yesterday string
	weekdays  [7]string // indexed by time.Weekday
}

var supported = []language.Tag{
	language.English, // first entry is the fallback
	language.BrazilianPortuguese,
	language.Spanish,
}

var vocab = []words{
	{"Today", "Yesterday", [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}},
	{"Hoje", "Ontem", [7]string{"dom", "seg", "ter", "qua", "qui", "sex", "sáb"}},
	{"Hoy", "Ayer", [7]string{"dom", "lun", "mar", "mié", "jue", "vie", "sáb"}},
}

var matcher = language.NewMatcher(supported)

// Formatter renders timestamps relative to a clock in a fixed location.
// The zero value is not usable; construct with New.
type Formatter struct {
	loc   *time.Location
	now   func() time.Time
	lang  language.Tag
	words words
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithLocation sets the location calendar days are computed in.
func WithLocation(loc *time.Location) Option {
	return func(f *Formatter) {
		if loc != nil {
			f.loc = loc
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *Formatter) {
		if now != nil {
			f.now = now
		}
	}
}

// New returns a formatter for the closest supported match of tag.
func New(tag language.Tag, opts ...Option) *Formatter {
	_, idx, _ := matcher.Match(tag)
	f := &Formatter{
		loc:   time.Local,
		now:   time.Now,
		lang:  supported[idx],
		words: vocab[idx],
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// ParseLocale parses a BCP 47 tag such as "pt-BR", returning English for
// empty or malformed input.
func ParseLocale(s string) language.Tag {
	if s == "" {
		return language.English
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.English
	}
	return tag
}

// Language is the supported tag the formatter resolved to.
func (f *Formatter) Language() language.Tag { return f.lang }

// Location is where calendar days are computed.
func (f *Formatter) Location() *time.Location { return f.loc }

// FormatRelativeTimestamp renders ts for a contact list: the clock time
// for today, the yesterday token, a short weekday within the last week,
// otherwise the date. Future instants render as a date.
func (f *Formatter) FormatRelativeTimestamp(ts time.Time) string {
	local := ts.In(f.loc)
	switch d := f.daysAgo(ts); {
	case d == 0:
		return local.Format(clockLayout)
	case d == 1:
		return f.words.yesterday
	case d > 1 && d < 7:
		return f.words.weekdays[local.Weekday()]
	default:
		return local.Format(dateLayout)
	}
}

// FormatDateHeader renders the separator shown above a group of messages.
func (f *Formatter) FormatDateHeader(ts time.Time) string {
	switch f.daysAgo(ts) {
	case 0:
		return f.words.today
	case 1:
		return f.words.yesterday
	default:
		return ts.In(f.loc).Format(dateLayout)
	}
}

// daysAgo counts calendar days between ts and now in the formatter's
// location. Any instant after now, even later today, counts as -1 or less.
func (f *Formatter) daysAgo(ts time.Time) int {
	now := f.now()
	d := civilDay(now.In(f.loc)) - civilDay(ts.In(f.loc))
	if d == 0 && ts.After(now) {
		return -1
	}
	return d
}

// civilDay numbers t's calendar date independent of DST offsets.
func civilDay(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}
