// Package analytics defines the domain model shared by the sync worker and
// the retrieval path: aggregated metrics snapshots, calendar date ranges,
// and the narrow collaborator interfaces (metrics aggregation, platform
// fetchers, tenant catalog) through which the RAG core reaches the rest of
// the product.
package analytics

import (
	"context"
	"reflect"
	"time"
)

// Known advertising/social platforms a project can connect.
const (
	PlatformGoogleAds    = "google_ads"
	PlatformMetaAds      = "meta_ads"
	PlatformMicrosoftAds = "microsoft_ads"
	PlatformTripAdvisor  = "tripadvisor"
	PlatformTrivago      = "trivago"
)

// KnownPlatforms lists every platform the product integrates with.
var KnownPlatforms = []string{
	PlatformGoogleAds,
	PlatformMetaAds,
	PlatformMicrosoftAds,
	PlatformTripAdvisor,
	PlatformTrivago,
}

// DateRange is a closed calendar interval. Start and End are day-aligned
// (midnight local time); End names the last day of the period, not the
// first excluded one.
type DateRange struct {
	// Start is midnight on the first day of the period.
	Start time.Time

	// End is midnight on the last day of the period.
	End time.Time

	// Label is the human-readable period name ("last week", "February 2025").
	Label string
}

// dateLayout matches rag.DateLayout; duplicated to keep this package
// dependency-free.
const dateLayout = "2006-01-02"

// StartDate returns the first day formatted as a calendar date.
func (r DateRange) StartDate() string { return r.Start.Format(dateLayout) }

// EndDate returns the last day formatted as a calendar date.
func (r DateRange) EndDate() string { return r.End.Format(dateLayout) }

// EndOfDay returns the inclusive end-of-day timestamp (23:59:59.999) of the
// period's last day.
func (r DateRange) EndOfDay() time.Time {
	return time.Date(r.End.Year(), r.End.Month(), r.End.Day(), 23, 59, 59, 999_000_000, r.End.Location())
}

// Days returns the number of calendar days the range spans.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// TrafficOverview aggregates site-wide traffic for a period.
type TrafficOverview struct {
	Sessions         int64   `json:"sessions"`
	Users            int64   `json:"users"`
	NewUsers         int64   `json:"newUsers"`
	Pageviews        int64   `json:"pageviews"`
	SessionsDeltaPct float64 `json:"sessionsDeltaPct"`
}

// ConversionStats aggregates booking and revenue figures for a period.
type ConversionStats struct {
	Bookings          int64   `json:"bookings"`
	Revenue           float64 `json:"revenue"`
	ConversionRatePct float64 `json:"conversionRatePct"`
	AvgBookingValue   float64 `json:"avgBookingValue"`
	RevenueDeltaPct   float64 `json:"revenueDeltaPct"`
}

// ChannelStats describes a single acquisition channel breakdown.
type ChannelStats struct {
	Name     string  `json:"name"`
	Sessions int64   `json:"sessions"`
	SharePct float64 `json:"sharePct"`
	Bookings int64   `json:"bookings"`
}

// PlatformStats describes one connected advertising platform's performance
// for a period. Platforms without data for the period are simply absent
// from the snapshot.
type PlatformStats struct {
	Platform    string  `json:"platform"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Spend       float64 `json:"spend"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`
	CTRPct      float64 `json:"ctrPct"`
	ROAS        float64 `json:"roas"`
}

// CampaignStats describes a single campaign's performance for a period.
type CampaignStats struct {
	Name        string  `json:"name"`
	Platform    string  `json:"platform"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Spend       float64 `json:"spend"`
	Conversions int64   `json:"conversions"`
}

// Insights carries cross-cutting observations connecting the other facets.
type Insights struct {
	TopChannel      string   `json:"topChannel"`
	TopPlatform     string   `json:"topPlatform"`
	BookingTrendPct float64  `json:"bookingTrendPct"`
	Notes           []string `json:"notes"`
}

// Snapshot is the aggregated-metrics view of one tenant over one period —
// the input to the chunking engine. TenantID, Range, and Currency are
// identity fields; everything else is measurement.
type Snapshot struct {
	TenantID string    `json:"tenantId"`
	Range    DateRange `json:"-"`

	// Currency is the ISO currency code used for revenue/spend formatting.
	Currency string `json:"currency"`

	Traffic     TrafficOverview `json:"traffic"`
	Conversions ConversionStats `json:"conversions"`
	Channels    []ChannelStats  `json:"channels"`
	Platforms   []PlatformStats `json:"platforms"`
	Campaigns   []CampaignStats `json:"campaigns"`
	Insights    Insights        `json:"insights"`
}

// HasSignal reports whether the snapshot carries any non-default
// measurement. The comparison is against an identity-only copy, so a facet
// added to Snapshot later is covered automatically instead of requiring an
// enumerated check to be extended in lockstep.
func (s *Snapshot) HasSignal() bool {
	if s == nil {
		return false
	}
	identity := Snapshot{TenantID: s.TenantID, Range: s.Range, Currency: s.Currency}
	return !reflect.DeepEqual(*s, identity)
}

// MetricsProvider is the aggregation collaborator: it derives a tenant's
// combined metrics snapshot for a period from the product's data stores.
type MetricsProvider interface {
	// ProjectMetrics returns the aggregated snapshot for the tenant over
	// the given period. A snapshot with no signal is a valid result — the
	// caller decides whether to skip it.
	ProjectMetrics(ctx context.Context, tenantID string, period DateRange) (*Snapshot, error)
}

// PlatformFetcher retrieves authoritative live stats for one platform.
// Used by the agent's live-data tools, bypassing the vector index.
type PlatformFetcher func(ctx context.Context, tenantID string, period DateRange) (*PlatformStats, error)

// PlatformFetchers maps platform names to their fetchers.
type PlatformFetchers map[string]PlatformFetcher

// Tenant is a project eligible for metric indexing.
type Tenant struct {
	// ID is the project identifier, used as the vector-store partition key.
	ID string

	// Name is the display name of the property/project.
	Name string

	// Currency is the ISO currency code for this project's revenue figures.
	Currency string

	// Platforms lists the connected advertising platforms.
	Platforms []string
}

// TenantCatalog is the read model over the product's project store used to
// select sync-eligible tenants.
type TenantCatalog interface {
	// ListSyncEligible returns every tenant with at least one connected
	// data source.
	ListSyncEligible(ctx context.Context) ([]Tenant, error)

	// Get returns a single tenant by ID.
	Get(ctx context.Context, tenantID string) (*Tenant, error)

	// Close releases any resources held by the catalog.
	Close() error
}
