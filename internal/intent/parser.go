// Package intent turns free-text analytics questions into structured query
// parameters: a calendar time window, the platforms mentioned, and the metric
// families the question is about. Parsing is fully deterministic — an ordered
// table of regular-expression rules evaluated top to bottom, first match wins.
// Ambiguity never fails: an unmatched query resolves to a best-effort default
// window with a lower confidence score.
package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/guestlytics/insight-go/internal/analytics"
	"github.com/guestlytics/insight-go/internal/rag"
)

// Timeframe is the resolved time window of a query. StartTime/EndTime are
// unix-millisecond bounds; EndTime falls at 23:59:59.999 of EndDate so the
// interval is inclusive of its last day.
type Timeframe struct {
	// StartTime is midnight of the first day, unix milliseconds.
	StartTime int64

	// EndTime is end-of-day of the last day, unix milliseconds.
	EndTime int64

	// StartDate and EndDate are the calendar bounds (YYYY-MM-DD).
	StartDate string
	EndDate   string

	// Label names the window the way the user asked for it ("last month",
	// "February 2025").
	Label string

	// IsHistorical is false only for ongoing windows (today, this week,
	// this month) and the unresolved default.
	IsHistorical bool
}

// ParsedIntent is the structured reading of one query. It is created fresh
// per request and never persisted.
type ParsedIntent struct {
	Timeframe     Timeframe
	Platforms     []string
	MetricTypes   []rag.MetricType
	OriginalQuery string

	// Confidence scores how much of the query the parser understood:
	// 0.5 base, +0.3 for an explicit timeframe, +0.1 each for platform and
	// metric-type mentions, capped at 1.0.
	Confidence float64
}

// Range returns the timeframe as a rag.TimeRange for store filtering.
func (t Timeframe) Range() *rag.TimeRange {
	return &rag.TimeRange{
		From: time.UnixMilli(t.StartTime),
		To:   time.UnixMilli(t.EndTime),
	}
}

// timeRule pairs a pattern with its window resolver. Rules are evaluated in
// table order; the first pattern that matches decides the timeframe.
type timeRule struct {
	pattern *regexp.Regexp
	resolve func(m []string, now time.Time) Timeframe
}

// Parser resolves queries against a fixed rule table. Safe for concurrent
// use; construct once and share.
type Parser struct {
	timeRules []timeRule
	platforms map[string]*regexp.Regexp
	metrics   map[rag.MetricType]*regexp.Regexp
}

// NewParser compiles the rule table.
func NewParser() *Parser {
	return &Parser{
		timeRules: []timeRule{
			{regexp.MustCompile(`\btoday\b`), resolveToday},
			{regexp.MustCompile(`\byesterday\b`), resolveYesterday},
			{regexp.MustCompile(`\bthis\s+week\b`), resolveThisWeek},
			{regexp.MustCompile(`\b(last|past|previous)\s+week\b`), resolveLastWeek},
			{regexp.MustCompile(`\bthis\s+month\b`), resolveThisMonth},
			{regexp.MustCompile(`\b(last|past|previous)\s+month\b`), resolveLastMonth},
			{regexp.MustCompile(`\b(\d{1,2}|one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\s+months?\s+ago\b`), resolveMonthsAgo},
			{regexp.MustCompile(`\b(?:last|past)\s+(\d{1,3})\s+days?\b`), resolveLastNDays},
			{regexp.MustCompile(`\b(?:last|past)\s+(\d{1,2})\s+weeks?\b`), resolveLastNWeeks},
			{regexp.MustCompile(`\b(?:last|past)\s+(\d{1,2})\s+months?\b`), resolveLastNMonths},
			{regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december)\b`), resolveMonthName},
			{regexp.MustCompile(`\bq([1-4])\b`), resolveQuarter},
		},
		platforms: map[string]*regexp.Regexp{
			analytics.PlatformGoogleAds:    regexp.MustCompile(`\bgoogle(\s+ads?)?\b|\badwords\b`),
			analytics.PlatformMetaAds:      regexp.MustCompile(`\bmeta\b|\bfacebook\b|\binstagram\b`),
			analytics.PlatformMicrosoftAds: regexp.MustCompile(`\bmicrosoft(\s+ads?)?\b|\bbing\b`),
			analytics.PlatformTripAdvisor:  regexp.MustCompile(`\btrip\s*advisor\b`),
			analytics.PlatformTrivago:      regexp.MustCompile(`\btrivago\b`),
		},
		metrics: map[rag.MetricType]*regexp.Regexp{
			rag.MetricOverview:   regexp.MustCompile(`\btraffic\b|\bsessions?\b|\bvisitors?\b|\busers?\b|\bpage\s*views?\b|\boverview\b`),
			rag.MetricConversion: regexp.MustCompile(`\brevenue\b|\bbookings?\b|\bconversions?\b|\bsales\b|\bconversion\s+rate\b`),
			rag.MetricChannel:    regexp.MustCompile(`\bchannels?\b|\bsources?\b|\borganic\b|\bdirect\b|\breferrals?\b`),
			rag.MetricPlatform:   regexp.MustCompile(`\bads?\b|\badvertising\b|\bspend\b|\bplatforms?\b|\bimpressions?\b|\bclicks?\b|\broas\b`),
			rag.MetricInsight:    regexp.MustCompile(`\binsights?\b|\btrends?\b|\bsummary\b|\bperformance\b`),
			rag.MetricCampaign:   regexp.MustCompile(`\bcampaigns?\b`),
		},
	}
}

// Parse resolves a query relative to the reference time now. The optional
// fallback range is used when no time rule matches; with neither a rule match
// nor a fallback, the window defaults to the 7 days ending yesterday.
func (p *Parser) Parse(query string, now time.Time, fallback *analytics.DateRange) ParsedIntent {
	q := strings.ToLower(query)

	intent := ParsedIntent{OriginalQuery: query, Confidence: 0.5}

	matched := false
	for _, rule := range p.timeRules {
		if m := rule.pattern.FindStringSubmatch(q); m != nil {
			intent.Timeframe = rule.resolve(m, now)
			matched = true
			break
		}
	}
	switch {
	case matched:
		intent.Confidence += 0.3
	case fallback != nil:
		tf := timeframeFromDays(fallback.Start, fallback.End, fallback.Label)
		tf.IsHistorical = fallback.End.Before(startOfDay(now))
		intent.Timeframe = tf
	default:
		end := startOfDay(now).AddDate(0, 0, -1)
		intent.Timeframe = timeframeFromDays(end.AddDate(0, 0, -6), end, "last 7 days")
	}

	for _, platform := range analytics.KnownPlatforms {
		if re, ok := p.platforms[platform]; ok && re.MatchString(q) {
			intent.Platforms = append(intent.Platforms, platform)
		}
	}
	if len(intent.Platforms) > 0 {
		intent.Confidence += 0.1
	}

	for _, mt := range rag.AllMetricTypes {
		if re, ok := p.metrics[mt]; ok && re.MatchString(q) {
			intent.MetricTypes = append(intent.MetricTypes, mt)
		}
	}
	if len(intent.MetricTypes) > 0 {
		intent.Confidence += 0.1
	}

	if intent.Confidence > 1.0 {
		intent.Confidence = 1.0
	}
	return intent
}

// --- window resolvers ---

func resolveToday(_ []string, now time.Time) Timeframe {
	d := startOfDay(now)
	tf := timeframeFromDays(d, d, "today")
	tf.IsHistorical = false
	return tf
}

func resolveYesterday(_ []string, now time.Time) Timeframe {
	d := startOfDay(now).AddDate(0, 0, -1)
	tf := timeframeFromDays(d, d, "yesterday")
	tf.IsHistorical = true
	return tf
}

func resolveThisWeek(_ []string, now time.Time) Timeframe {
	monday := startOfISOWeek(now)
	tf := timeframeFromDays(monday, startOfDay(now), "this week")
	tf.IsHistorical = false
	return tf
}

func resolveLastWeek(_ []string, now time.Time) Timeframe {
	monday := startOfISOWeek(now).AddDate(0, 0, -7)
	tf := timeframeFromDays(monday, monday.AddDate(0, 0, 6), "last week")
	tf.IsHistorical = true
	return tf
}

func resolveThisMonth(_ []string, now time.Time) Timeframe {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	tf := timeframeFromDays(first, startOfDay(now), "this month")
	tf.IsHistorical = false
	return tf
}

func resolveLastMonth(_ []string, now time.Time) Timeframe {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
	tf := timeframeFromDays(first, endOfMonth(first), "last month")
	tf.IsHistorical = true
	return tf
}

// wordNumbers maps small spelled-out counts used in "N months ago" phrasing.
var wordNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
	"seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11, "twelve": 12,
}

func resolveMonthsAgo(m []string, now time.Time) Timeframe {
	n, ok := wordNumbers[m[1]]
	if !ok {
		n, _ = strconv.Atoi(m[1])
	}
	if n < 1 {
		n = 1
	}
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -n, 0)
	tf := timeframeFromDays(first, endOfMonth(first), first.Format("January 2006"))
	tf.IsHistorical = true
	return tf
}

func resolveLastNDays(m []string, now time.Time) Timeframe {
	n, _ := strconv.Atoi(m[1])
	if n < 1 {
		n = 1
	}
	end := startOfDay(now).AddDate(0, 0, -1)
	tf := timeframeFromDays(end.AddDate(0, 0, -(n-1)), end, "last "+m[1]+" days")
	tf.IsHistorical = true
	return tf
}

func resolveLastNWeeks(m []string, now time.Time) Timeframe {
	n, _ := strconv.Atoi(m[1])
	if n < 1 {
		n = 1
	}
	end := startOfDay(now).AddDate(0, 0, -1)
	tf := timeframeFromDays(end.AddDate(0, 0, -(n*7-1)), end, "last "+m[1]+" weeks")
	tf.IsHistorical = true
	return tf
}

func resolveLastNMonths(m []string, now time.Time) Timeframe {
	n, _ := strconv.Atoi(m[1])
	if n < 1 {
		n = 1
	}
	// N full calendar months ending with the previous month.
	prev := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
	first := prev.AddDate(0, -(n - 1), 0)
	tf := timeframeFromDays(first, endOfMonth(prev), "last "+m[1]+" months")
	tf.IsHistorical = true
	return tf
}

var monthsByName = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

func resolveMonthName(m []string, now time.Time) Timeframe {
	month := monthsByName[m[1]]
	year := now.Year()
	// A month later than the current one has not happened yet this year, so
	// the user means the prior year's.
	if month > now.Month() {
		year--
	}
	first := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
	tf := timeframeFromDays(first, endOfMonth(first), first.Format("January 2006"))
	tf.IsHistorical = true
	return tf
}

func resolveQuarter(m []string, now time.Time) Timeframe {
	qn, _ := strconv.Atoi(m[1])
	startMonth := time.Month((qn-1)*3 + 1)
	year := now.Year()
	if startMonth > now.Month() {
		year--
	}
	first := time.Date(year, startMonth, 1, 0, 0, 0, 0, now.Location())
	last := endOfMonth(first.AddDate(0, 2, 0))
	tf := timeframeFromDays(first, last, "Q"+m[1]+" "+strconv.Itoa(year))
	tf.IsHistorical = true
	return tf
}

// --- calendar helpers ---

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// startOfISOWeek returns midnight of the Monday of t's week.
func startOfISOWeek(t time.Time) time.Time {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return startOfDay(t).AddDate(0, 0, -(wd - 1))
}

func endOfMonth(firstOfMonth time.Time) time.Time {
	return firstOfMonth.AddDate(0, 1, -1)
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999_000_000, t.Location())
}

// timeframeFromDays builds a Timeframe from day-aligned bounds. start and end
// are both inclusive calendar days.
func timeframeFromDays(start, end time.Time, label string) Timeframe {
	return Timeframe{
		StartTime: startOfDay(start).UnixMilli(),
		EndTime:   endOfDay(end).UnixMilli(),
		StartDate: start.Format(rag.DateLayout),
		EndDate:   end.Format(rag.DateLayout),
		Label:     label,
	}
}
