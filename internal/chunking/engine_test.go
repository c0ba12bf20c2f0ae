package chunking

import (
	"strings"
	"testing"
	"time"

	"github.com/guestlytics/insight-go/internal/analytics"
	"github.com/guestlytics/insight-go/internal/rag"
)

var testPeriod = analytics.DateRange{
	Start: time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2025, time.February, 28, 0, 0, 0, 0, time.UTC),
	Label: "February 2025",
}

func fullSnapshot() *analytics.Snapshot {
	return &analytics.Snapshot{
		TenantID: "hotel-a",
		Range:    testPeriod,
		Currency: "EUR",
		Traffic: analytics.TrafficOverview{
			Sessions: 12450, Users: 9800, NewUsers: 1200, Pageviews: 35600, SessionsDeltaPct: 12.5,
		},
		Conversions: analytics.ConversionStats{
			Bookings: 183, Revenue: 45230.50, ConversionRatePct: 1.5, AvgBookingValue: 247.16, RevenueDeltaPct: -3.2,
		},
		Channels: []analytics.ChannelStats{
			{Name: "organic", Sessions: 6000, SharePct: 48.2, Bookings: 90},
			{Name: "direct", Sessions: 3000, SharePct: 24.1, Bookings: 50},
		},
		Platforms: []analytics.PlatformStats{
			{Platform: analytics.PlatformGoogleAds, Impressions: 250000, Clicks: 4800, Spend: 3200, Conversions: 62, Revenue: 15000, CTRPct: 1.9, ROAS: 4.7},
		},
		Campaigns: []analytics.CampaignStats{
			{Name: "Spring Escape", Platform: analytics.PlatformGoogleAds, Impressions: 90000, Clicks: 2100, Spend: 1400, Conversions: 30},
		},
		Insights: analytics.Insights{TopChannel: "organic", TopPlatform: analytics.PlatformGoogleAds, BookingTrendPct: 8.0},
	}
}

func TestChunkEmitsOnePerFacet(t *testing.T) {
	t.Parallel()

	engine := NewEngine()
	chunks := engine.Chunk(fullSnapshot(), "hotel-a", testPeriod)

	// overview + conversion + 2 channels + insight + 1 platform + 1 campaign
	if len(chunks) != 7 {
		t.Fatalf("Chunk() produced %d chunks, want 7", len(chunks))
	}

	counts := map[rag.MetricType]int{}
	for _, c := range chunks {
		counts[c.Metadata.MetricType]++

		if c.ID == "" {
			t.Error("chunk has empty ID")
		}
		if c.Metadata.TenantID != "hotel-a" {
			t.Errorf("chunk tenant = %q, want hotel-a", c.Metadata.TenantID)
		}
		if c.Metadata.StartDate != "2025-02-01" || c.Metadata.EndDate != "2025-02-28" {
			t.Errorf("chunk period = %s..%s, want 2025-02-01..2025-02-28",
				c.Metadata.StartDate, c.Metadata.EndDate)
		}
		if c.Metadata.SnapshotJSON == "" {
			t.Error("chunk has empty snapshot payload")
		}
	}

	want := map[rag.MetricType]int{
		rag.MetricOverview:   1,
		rag.MetricConversion: 1,
		rag.MetricChannel:    2,
		rag.MetricInsight:    1,
		rag.MetricPlatform:   1,
		rag.MetricCampaign:   1,
	}
	for mt, n := range want {
		if counts[mt] != n {
			t.Errorf("%s chunks = %d, want %d", mt, counts[mt], n)
		}
	}
}

func TestChunkTextIsSelfDescribing(t *testing.T) {
	t.Parallel()

	engine := NewEngine()
	chunks := engine.Chunk(fullSnapshot(), "hotel-a", testPeriod)

	var overview, conversion, platform string
	for _, c := range chunks {
		switch c.Metadata.MetricType {
		case rag.MetricOverview:
			overview = c.Text
		case rag.MetricConversion:
			conversion = c.Text
		case rag.MetricPlatform:
			platform = c.Text
		}
	}

	for _, want := range []string{"12,450 sessions", "February 2025", "+12.5%"} {
		if !strings.Contains(overview, want) {
			t.Errorf("overview text missing %q: %s", want, overview)
		}
	}
	for _, want := range []string{"€45,230.5", "-3.2%", "183 bookings"} {
		if !strings.Contains(conversion, want) {
			t.Errorf("conversion text missing %q: %s", want, conversion)
		}
	}
	for _, want := range []string{"Google Ads", "250,000 impressions", "4.7x"} {
		if !strings.Contains(platform, want) {
			t.Errorf("platform text missing %q: %s", want, platform)
		}
	}
}

func TestChunkSkipsEmptyFacets(t *testing.T) {
	t.Parallel()

	engine := NewEngine()
	snap := &analytics.Snapshot{
		TenantID: "hotel-a",
		Range:    testPeriod,
		Currency: "EUR",
		Traffic:  analytics.TrafficOverview{Sessions: 100, Users: 80},
	}

	chunks := engine.Chunk(snap, "hotel-a", testPeriod)
	if len(chunks) != 1 {
		t.Fatalf("Chunk() produced %d chunks, want 1 (traffic only)", len(chunks))
	}
	if chunks[0].Metadata.MetricType != rag.MetricOverview {
		t.Errorf("chunk type = %s, want %s", chunks[0].Metadata.MetricType, rag.MetricOverview)
	}
}

func TestChunkNoSignalProducesNothing(t *testing.T) {
	t.Parallel()

	engine := NewEngine()
	snap := &analytics.Snapshot{TenantID: "hotel-a", Range: testPeriod, Currency: "EUR"}

	if chunks := engine.Chunk(snap, "hotel-a", testPeriod); len(chunks) != 0 {
		t.Errorf("Chunk() produced %d chunks for empty snapshot, want 0", len(chunks))
	}
	if chunks := engine.Chunk(nil, "hotel-a", testPeriod); len(chunks) != 0 {
		t.Errorf("Chunk(nil) produced %d chunks, want 0", len(chunks))
	}
}

func TestChunkExpiryFollowsTTL(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	engine := NewEngine(
		WithTTL(24*time.Hour),
		WithClock(func() time.Time { return fixed }),
	)

	chunks := engine.Chunk(fullSnapshot(), "hotel-a", testPeriod)
	if len(chunks) == 0 {
		t.Fatal("Chunk() produced no chunks")
	}
	for _, c := range chunks {
		if !c.Metadata.CreatedAt.Equal(fixed) {
			t.Errorf("CreatedAt = %v, want %v", c.Metadata.CreatedAt, fixed)
		}
		if want := fixed.Add(24 * time.Hour); !c.Metadata.ExpiresAt.Equal(want) {
			t.Errorf("ExpiresAt = %v, want %v", c.Metadata.ExpiresAt, want)
		}
	}
}
