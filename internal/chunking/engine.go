// Package chunking renders aggregated metrics snapshots into self-describing
// text chunks ready for embedding. The engine is a pure transformation: no
// I/O, no clock reads beyond the injected now function, one chunk per facet
// that actually carries data.
package chunking

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/guestlytics/insight-go/internal/analytics"
	"github.com/guestlytics/insight-go/internal/rag"
)

// DefaultTTL is the retention period for indexed chunks. Chunks older than
// this are removed by the sync worker's cleanup pass.
const DefaultTTL = 90 * 24 * time.Hour

// platformDisplay maps platform keys to their display names used in chunk
// text.
var platformDisplay = map[string]string{
	analytics.PlatformGoogleAds:    "Google Ads",
	analytics.PlatformMetaAds:      "Meta Ads",
	analytics.PlatformMicrosoftAds: "Microsoft Ads",
	analytics.PlatformTripAdvisor:  "TripAdvisor",
	analytics.PlatformTrivago:      "Trivago",
}

func displayPlatform(key string) string {
	if name, ok := platformDisplay[key]; ok {
		return name
	}
	return key
}

// Engine renders snapshots into chunks. Zero-value timestamps are avoided by
// always stamping CreatedAt/ExpiresAt from the engine clock.
type Engine struct {
	ttl time.Duration
	now func() time.Time
}

// Option adjusts engine construction.
type Option func(*Engine)

// WithTTL overrides the chunk retention period.
func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.ttl = ttl }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine constructs an engine with the default 90-day retention.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Chunk renders the snapshot into one chunk per present facet: traffic
// overview, conversion performance, one per acquisition channel, a
// cross-cutting insights chunk, one per advertising platform with data, and
// one per campaign. Facets with no data produce no chunk, so a sparse period
// yields a short (possibly empty) slice.
func (e *Engine) Chunk(snap *analytics.Snapshot, tenantID string, period analytics.DateRange) []rag.MetricChunk {
	if snap == nil || !snap.HasSignal() {
		return nil
	}

	now := e.now()
	var chunks []rag.MetricChunk

	emit := func(metricType rag.MetricType, platform, category, text string, payload any) {
		raw, err := json.Marshal(payload)
		if err != nil {
			raw = []byte("{}")
		}
		chunks = append(chunks, rag.MetricChunk{
			ID:   uuid.NewString(),
			Text: text,
			Metadata: rag.ChunkMetadata{
				TenantID:       tenantID,
				MetricType:     metricType,
				Platform:       platform,
				StartDate:      period.StartDate(),
				EndDate:        period.EndDate(),
				DateRangeLabel: period.Label,
				Category:       category,
				SnapshotJSON:   string(raw),
				CreatedAt:      now,
				ExpiresAt:      now.Add(e.ttl),
			},
		})
	}

	if snap.Traffic != (analytics.TrafficOverview{}) {
		emit(rag.MetricOverview, "", "traffic", e.trafficText(snap, period), snap.Traffic)
	}
	if snap.Conversions != (analytics.ConversionStats{}) {
		emit(rag.MetricConversion, "", "revenue", e.conversionText(snap, period), snap.Conversions)
	}
	for _, ch := range snap.Channels {
		if ch.Name == "" {
			continue
		}
		emit(rag.MetricChannel, "", "channels", e.channelText(ch, period), ch)
	}
	if !insightsEmpty(snap.Insights) {
		emit(rag.MetricInsight, "", "insights", e.insightText(snap, period), snap.Insights)
	}
	for _, pf := range snap.Platforms {
		if pf.Platform == "" {
			continue
		}
		emit(rag.MetricPlatform, pf.Platform, "advertising", e.platformText(pf, snap.Currency, period), pf)
	}
	for _, c := range snap.Campaigns {
		if c.Name == "" {
			continue
		}
		emit(rag.MetricCampaign, c.Platform, "campaigns", e.campaignText(c, snap.Currency, period), c)
	}

	return chunks
}

func periodPhrase(period analytics.DateRange) string {
	return fmt.Sprintf("%s (%s to %s)", period.Label, period.StartDate(), period.EndDate())
}

func (e *Engine) trafficText(snap *analytics.Snapshot, period analytics.DateRange) string {
	t := snap.Traffic
	var b strings.Builder
	fmt.Fprintf(&b, "Website traffic overview for %s: %s sessions, %s users (%s new), %s pageviews.",
		periodPhrase(period), count(t.Sessions), count(t.Users), count(t.NewUsers), count(t.Pageviews))
	if t.SessionsDeltaPct != 0 {
		fmt.Fprintf(&b, " Sessions changed %s versus the prior period.", delta(t.SessionsDeltaPct))
	}
	return b.String()
}

func (e *Engine) conversionText(snap *analytics.Snapshot, period analytics.DateRange) string {
	c := snap.Conversions
	var b strings.Builder
	fmt.Fprintf(&b, "Booking and revenue performance for %s: %s bookings generated %s in revenue at a %s conversion rate.",
		periodPhrase(period), count(c.Bookings), money(c.Revenue, snap.Currency), pct(c.ConversionRatePct))
	if c.AvgBookingValue > 0 {
		fmt.Fprintf(&b, " Average booking value was %s.", money(c.AvgBookingValue, snap.Currency))
	}
	if c.RevenueDeltaPct != 0 {
		fmt.Fprintf(&b, " Revenue changed %s versus the prior period.", delta(c.RevenueDeltaPct))
	}
	return b.String()
}

func (e *Engine) channelText(ch analytics.ChannelStats, period analytics.DateRange) string {
	return fmt.Sprintf("Acquisition channel %s for %s: %s sessions (%s of total traffic) producing %s bookings.",
		ch.Name, periodPhrase(period), count(ch.Sessions), pct(ch.SharePct), count(ch.Bookings))
}

func (e *Engine) insightText(snap *analytics.Snapshot, period analytics.DateRange) string {
	in := snap.Insights
	var parts []string
	if in.TopChannel != "" {
		parts = append(parts, fmt.Sprintf("top acquisition channel was %s", in.TopChannel))
	}
	if in.TopPlatform != "" {
		parts = append(parts, fmt.Sprintf("best performing ad platform was %s", displayPlatform(in.TopPlatform)))
	}
	if in.BookingTrendPct != 0 {
		parts = append(parts, fmt.Sprintf("bookings trended %s", delta(in.BookingTrendPct)))
	}
	text := fmt.Sprintf("Key insights for %s", periodPhrase(period))
	if len(parts) > 0 {
		text += ": " + strings.Join(parts, "; ") + "."
	} else {
		text += "."
	}
	for _, note := range in.Notes {
		text += " " + note
	}
	return text
}

func (e *Engine) platformText(pf analytics.PlatformStats, currency string, period analytics.DateRange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s performance for %s: %s impressions, %s clicks (%s CTR), %s spend.",
		displayPlatform(pf.Platform), periodPhrase(period),
		count(pf.Impressions), count(pf.Clicks), pct(pf.CTRPct), money(pf.Spend, currency))
	if pf.Conversions > 0 {
		fmt.Fprintf(&b, " %s conversions worth %s, a %s return on ad spend.",
			count(pf.Conversions), money(pf.Revenue, currency), ratio(pf.ROAS))
	}
	return b.String()
}

func (e *Engine) campaignText(c analytics.CampaignStats, currency string, period analytics.DateRange) string {
	return fmt.Sprintf("Campaign %q on %s for %s: %s impressions, %s clicks, %s spend, %s conversions.",
		c.Name, displayPlatform(c.Platform), periodPhrase(period),
		count(c.Impressions), count(c.Clicks), money(c.Spend, currency), count(c.Conversions))
}

func insightsEmpty(in analytics.Insights) bool {
	return in.TopChannel == "" && in.TopPlatform == "" && in.BookingTrendPct == 0 && len(in.Notes) == 0
}
