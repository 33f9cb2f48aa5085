package clientdata

import "time"

// TTL constants for the durable cache tables.
// These are added to time.Now() when storing to calculate expires_at.
// Quote and series rows use the gateway's configured stale and history windows instead.
const (
	// Sentiment and global metrics are served stale after an outage, so keep them longer
	TTLMarketOverview = 7 * 24 * time.Hour
)
