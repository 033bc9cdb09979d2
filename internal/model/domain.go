package model

import "time"

// ThreatStatus is the threat-intelligence verdict for a domain.
type ThreatStatus string

const (
	ThreatSafe     ThreatStatus = "safe"
	ThreatMalware  ThreatStatus = "malware"
	ThreatPhishing ThreatStatus = "phishing"
	ThreatUnwanted ThreatStatus = "unwanted"
	ThreatUnknown  ThreatStatus = "unknown"
)

// ParseThreatStatus maps a stored or configured label to a ThreatStatus.
// Unrecognized labels map to ThreatUnknown.
func ParseThreatStatus(s string) ThreatStatus {
	switch ThreatStatus(s) {
	case ThreatSafe, ThreatMalware, ThreatPhishing, ThreatUnwanted:
		return ThreatStatus(s)
	default:
		return ThreatUnknown
	}
}

// DomainSignals is a snapshot of externally observed facts about a domain.
// Nil pointers mean the fact could not be determined.
type DomainSignals struct {
	DomainAgeDays *int         `json:"domain_age_days,omitempty"`
	SSLValid      *bool        `json:"ssl_valid,omitempty"`
	HTTPStatus    *int         `json:"http_status,omitempty"`
	ThreatStatus  ThreatStatus `json:"threat_status"`
}

// DomainCacheEntry is the cached signal snapshot for a domain.
type DomainCacheEntry struct {
	Domain string `json:"domain"`
	DomainSignals
	CheckedAt time.Time `json:"checked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Fresh reports whether the entry is still within its TTL at now.
func (e *DomainCacheEntry) Fresh(now time.Time) bool {
	if e == nil {
		return false
	}
	return now.Before(e.ExpiresAt)
}
