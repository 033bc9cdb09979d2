package model

// MergeURLStats folds freshly computed stats into the stored row. Derived
// fields always come from incoming; URL and Domain fall back to the stored
// values when incoming leaves them empty. LastUpdated only moves when a
// derived value actually changed, so recomputing the same inputs yields an
// identical row.
func MergeURLStats(existing *URLStats, incoming URLStats) URLStats {
	if existing == nil {
		return incoming
	}
	merged := incoming
	merged.URLHash = existing.URLHash
	if merged.URL == "" {
		merged.URL = existing.URL
	}
	if merged.Domain == "" {
		merged.Domain = existing.Domain
	}
	if sameDerived(*existing, merged) {
		merged.LastUpdated = existing.LastUpdated
	}
	return merged
}

func sameDerived(a, b URLStats) bool {
	return a.URL == b.URL &&
		a.Domain == b.Domain &&
		a.DomainScore == b.DomainScore &&
		a.CommunityScore == b.CommunityScore &&
		a.FinalScore == b.FinalScore &&
		a.ContentType == b.ContentType &&
		a.RatingCount == b.RatingCount &&
		a.AverageRating == b.AverageRating &&
		a.SpamReports == b.SpamReports &&
		a.MisleadingReports == b.MisleadingReports &&
		a.ScamReports == b.ScamReports &&
		a.ProcessingStatus == b.ProcessingStatus
}

// MergeDomainCacheEntry overlays a new signal snapshot on the cached one.
// Timestamps and threat status come from incoming. While the cached entry is
// still fresh at incoming.CheckedAt, signals the provider could not determine
// this time (nil) keep their previously known value. An expired entry
// contributes nothing: incoming is taken as-is, with an empty threat status
// recorded as unknown.
func MergeDomainCacheEntry(existing *DomainCacheEntry, incoming DomainCacheEntry) DomainCacheEntry {
	merged := incoming
	if existing != nil {
		merged.Domain = existing.Domain
	}
	if !existing.Fresh(incoming.CheckedAt) {
		if merged.ThreatStatus == "" {
			merged.ThreatStatus = ThreatUnknown
		}
		return merged
	}
	if merged.DomainAgeDays == nil {
		merged.DomainAgeDays = existing.DomainAgeDays
	}
	if merged.SSLValid == nil {
		merged.SSLValid = existing.SSLValid
	}
	if merged.HTTPStatus == nil {
		merged.HTTPStatus = existing.HTTPStatus
	}
	if merged.ThreatStatus == "" {
		merged.ThreatStatus = existing.ThreatStatus
	}
	return merged
}

// MergeBlacklistRule replaces a rule keyed by pattern.
func MergeBlacklistRule(existing *BlacklistRule, incoming BlacklistRule) BlacklistRule {
	if existing != nil {
		incoming.Pattern = existing.Pattern
	}
	return incoming
}

// MergeContentTypeRule replaces a rule keyed by ID.
func MergeContentTypeRule(existing *ContentTypeRule, incoming ContentTypeRule) ContentTypeRule {
	if existing != nil {
		incoming.ID = existing.ID
	}
	return incoming
}
