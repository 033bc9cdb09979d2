package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/trustscore/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer at a time. Aggregation workers run read-merge-write
	// transactions that would otherwise fail lock upgrades with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS ratings (
	id            TEXT PRIMARY KEY,
	url_hash      TEXT NOT NULL,
	url           TEXT NOT NULL DEFAULT '',
	domain        TEXT NOT NULL DEFAULT '',
	user_ref      TEXT NOT NULL DEFAULT '',
	score         INTEGER NOT NULL CHECK (score BETWEEN 1 AND 5),
	is_spam       INTEGER NOT NULL DEFAULT 0,
	is_misleading INTEGER NOT NULL DEFAULT 0,
	is_scam       INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL,
	processed     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS domain_cache (
	domain          TEXT PRIMARY KEY,
	domain_age_days INTEGER,
	ssl_valid       INTEGER,
	http_status     INTEGER,
	threat_status   TEXT NOT NULL DEFAULT 'unknown',
	checked_at      DATETIME NOT NULL,
	expires_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS blacklist_rules (
	pattern    TEXT PRIMARY KEY,
	category   TEXT NOT NULL,
	severity   INTEGER NOT NULL CHECK (severity BETWEEN 1 AND 10),
	reason     TEXT NOT NULL DEFAULT '',
	active     INTEGER NOT NULL DEFAULT 1,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS content_type_rules (
	id                   TEXT PRIMARY KEY,
	domain               TEXT NOT NULL,
	content_type         TEXT NOT NULL,
	url_pattern          TEXT NOT NULL DEFAULT '',
	trust_modifier       REAL NOT NULL DEFAULT 0,
	min_ratings_required INTEGER NOT NULL DEFAULT 0,
	priority             INTEGER NOT NULL DEFAULT 0,
	active               INTEGER NOT NULL DEFAULT 1,
	updated_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS url_stats (
	url_hash           TEXT PRIMARY KEY,
	url                TEXT NOT NULL DEFAULT '',
	domain             TEXT NOT NULL DEFAULT '',
	domain_score       REAL NOT NULL,
	community_score    REAL NOT NULL,
	final_score        REAL NOT NULL,
	content_type       TEXT NOT NULL,
	rating_count       INTEGER NOT NULL,
	average_rating     REAL NOT NULL,
	spam_reports       INTEGER NOT NULL DEFAULT 0,
	misleading_reports INTEGER NOT NULL DEFAULT 0,
	scam_reports       INTEGER NOT NULL DEFAULT 0,
	processing_status  TEXT NOT NULL,
	last_updated       DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ratings_unprocessed ON ratings(processed, url_hash);
CREATE INDEX IF NOT EXISTS idx_ratings_url_hash ON ratings(url_hash);
CREATE INDEX IF NOT EXISTS idx_ratings_created_at ON ratings(created_at);
CREATE INDEX IF NOT EXISTS idx_domain_cache_expires_at ON domain_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_content_type_rules_domain ON content_type_rules(domain, priority);
CREATE INDEX IF NOT EXISTS idx_url_stats_domain ON url_stats(domain);
CREATE INDEX IF NOT EXISTS idx_url_stats_last_updated ON url_stats(last_updated);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Ratings ---

const ratingColumns = `id, url_hash, url, domain, user_ref, score, is_spam, is_misleading, is_scam, created_at, processed`

func (s *SQLiteStore) AppendRating(ctx context.Context, r *model.Rating) (string, error) {
	if err := prepareRating(r, utcNow()); err != nil {
		return "", err
	}
	if err := insertRating(ctx, s.db, r); err != nil {
		return "", err
	}
	return r.ID, nil
}

func (s *SQLiteStore) AppendRatings(ctx context.Context, rs []model.Rating) (int64, error) {
	if len(rs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin append ratings")
	}
	defer tx.Rollback() //nolint:errcheck

	now := utcNow()
	for i := range rs {
		if err := prepareRating(&rs[i], now); err != nil {
			return 0, err
		}
		if err := insertRating(ctx, tx, &rs[i]); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit append ratings")
	}
	return int64(len(rs)), nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRating(ctx context.Context, db execer, r *model.Rating) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO ratings (`+ratingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.URLHash, r.URL, r.Domain, r.UserRef, r.Score,
		r.Flags.IsSpam, r.Flags.IsMisleading, r.Flags.IsScam, r.CreatedAt, r.Processed,
	)
	return eris.Wrapf(err, "sqlite: insert rating for %s", r.URLHash)
}

func (s *SQLiteStore) UnprocessedURLHashes(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT url_hash FROM ratings WHERE processed = 0
		 GROUP BY url_hash ORDER BY MIN(created_at), url_hash LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: unprocessed url hashes")
	}
	defer rows.Close() //nolint:errcheck

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan url hash")
		}
		hashes = append(hashes, h)
	}
	return hashes, eris.Wrap(rows.Err(), "sqlite: unprocessed url hashes iterate")
}

func (s *SQLiteStore) RatingsForURL(ctx context.Context, urlHash string) ([]model.Rating, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ratingColumns+` FROM ratings WHERE url_hash = ? ORDER BY created_at, id`,
		urlHash,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: ratings for %s", urlHash)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Rating
	for rows.Next() {
		var r model.Rating
		if err := rows.Scan(&r.ID, &r.URLHash, &r.URL, &r.Domain, &r.UserRef, &r.Score,
			&r.Flags.IsSpam, &r.Flags.IsMisleading, &r.Flags.IsScam, &r.CreatedAt, &r.Processed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rating")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: ratings iterate")
}

func (s *SQLiteStore) MarkProcessed(ctx context.Context, urlHash string, ratingIDs []string) (int, error) {
	if len(ratingIDs) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ratingIDs)+1)
	args = append(args, urlHash)
	for _, id := range ratingIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ratingIDs)), ", ")

	res, err := s.db.ExecContext(ctx,
		`UPDATE ratings SET processed = 1
		 WHERE url_hash = ? AND processed = 0 AND id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: mark processed %s", urlHash)
	}
	return rowsAffected(res)
}

func (s *SQLiteStore) ResetProcessed(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE ratings SET processed = 0 WHERE processed = 1`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: reset processed")
	}
	return rowsAffected(res)
}

func (s *SQLiteStore) CountUnprocessed(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ratings WHERE processed = 0`).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count unprocessed")
}

func (s *SQLiteStore) DeleteRatingsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM ratings WHERE processed = 1 AND created_at < ?`, cutoff.UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete old ratings")
	}
	return rowsAffected(res)
}

// --- Domain cache ---

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDomainCache(ctx context.Context, db queryRower, domain string) (*model.DomainCacheEntry, error) {
	var e model.DomainCacheEntry
	var threat string
	err := db.QueryRowContext(ctx,
		`SELECT domain, domain_age_days, ssl_valid, http_status, threat_status, checked_at, expires_at
		 FROM domain_cache WHERE domain = ?`,
		domain,
	).Scan(&e.Domain, &e.DomainAgeDays, &e.SSLValid, &e.HTTPStatus, &threat, &e.CheckedAt, &e.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get domain cache %s", domain)
	}
	e.ThreatStatus = model.ParseThreatStatus(threat)
	return &e, nil
}

func (s *SQLiteStore) GetDomainCache(ctx context.Context, domain string) (*model.DomainCacheEntry, error) {
	return getDomainCache(ctx, s.db, domain)
}

func (s *SQLiteStore) PutDomainCache(ctx context.Context, e model.DomainCacheEntry) (model.DomainCacheEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.DomainCacheEntry{}, eris.Wrap(err, "sqlite: begin put domain cache")
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := getDomainCache(ctx, tx, e.Domain)
	if err != nil {
		return model.DomainCacheEntry{}, err
	}
	merged := model.MergeDomainCacheEntry(existing, e)

	if existing == nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO domain_cache (domain, domain_age_days, ssl_valid, http_status, threat_status, checked_at, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			merged.Domain, merged.DomainAgeDays, merged.SSLValid, merged.HTTPStatus,
			string(merged.ThreatStatus), merged.CheckedAt.UTC(), merged.ExpiresAt.UTC(),
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE domain_cache SET domain_age_days = ?, ssl_valid = ?, http_status = ?, threat_status = ?,
			 checked_at = ?, expires_at = ? WHERE domain = ?`,
			merged.DomainAgeDays, merged.SSLValid, merged.HTTPStatus, string(merged.ThreatStatus),
			merged.CheckedAt.UTC(), merged.ExpiresAt.UTC(), merged.Domain,
		)
	}
	if err != nil {
		return model.DomainCacheEntry{}, eris.Wrapf(err, "sqlite: write domain cache %s", e.Domain)
	}
	if err := tx.Commit(); err != nil {
		return model.DomainCacheEntry{}, eris.Wrap(err, "sqlite: commit domain cache")
	}
	return merged, nil
}

func (s *SQLiteStore) ExpireDomainCache(ctx context.Context, domain string, at time.Time) error {
	at = at.UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE domain_cache SET expires_at = ? WHERE domain = ? AND expires_at > ?`,
		at, domain, at,
	)
	return eris.Wrapf(err, "sqlite: expire domain cache %s", domain)
}

func (s *SQLiteStore) DeleteDomainCacheBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM domain_cache WHERE expires_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete old domain cache")
	}
	return rowsAffected(res)
}

// --- Rules ---

func (s *SQLiteStore) ListBlacklistRules(ctx context.Context, activeOnly bool) ([]model.BlacklistRule, error) {
	query := `SELECT pattern, category, severity, reason, active, updated_at FROM blacklist_rules`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY pattern`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list blacklist rules")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.BlacklistRule
	for rows.Next() {
		var r model.BlacklistRule
		if err := rows.Scan(&r.Pattern, &r.Category, &r.Severity, &r.Reason, &r.Active, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan blacklist rule")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list blacklist rules iterate")
}

func (s *SQLiteStore) UpsertBlacklistRule(ctx context.Context, r model.BlacklistRule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin blacklist upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := upsertBlacklistRule(ctx, tx, r, utcNow()); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit blacklist upsert")
}

func upsertBlacklistRule(ctx context.Context, tx *sql.Tx, r model.BlacklistRule, now time.Time) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.Pattern = strings.ToLower(strings.TrimSpace(r.Pattern))

	var existing *model.BlacklistRule
	var cur model.BlacklistRule
	err := tx.QueryRowContext(ctx,
		`SELECT pattern, category, severity, reason, active, updated_at FROM blacklist_rules WHERE pattern = ?`,
		r.Pattern,
	).Scan(&cur.Pattern, &cur.Category, &cur.Severity, &cur.Reason, &cur.Active, &cur.UpdatedAt)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return eris.Wrapf(err, "sqlite: get blacklist rule %s", r.Pattern)
	default:
		existing = &cur
	}

	merged := model.MergeBlacklistRule(existing, r)
	merged.UpdatedAt = now

	if existing == nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO blacklist_rules (pattern, category, severity, reason, active, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			merged.Pattern, merged.Category, merged.Severity, merged.Reason, merged.Active, merged.UpdatedAt,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE blacklist_rules SET category = ?, severity = ?, reason = ?, active = ?, updated_at = ? WHERE pattern = ?`,
			merged.Category, merged.Severity, merged.Reason, merged.Active, merged.UpdatedAt, merged.Pattern,
		)
	}
	return eris.Wrapf(err, "sqlite: write blacklist rule %s", r.Pattern)
}

func (s *SQLiteStore) ListContentTypeRules(ctx context.Context, activeOnly bool) ([]model.ContentTypeRule, error) {
	query := `SELECT id, domain, content_type, url_pattern, trust_modifier, min_ratings_required, priority, active, updated_at
		FROM content_type_rules`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY domain, priority, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list content rules")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ContentTypeRule
	for rows.Next() {
		var r model.ContentTypeRule
		if err := rows.Scan(&r.ID, &r.Domain, &r.ContentType, &r.URLPattern, &r.TrustModifier,
			&r.MinRatingsRequired, &r.Priority, &r.Active, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan content rule")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list content rules iterate")
}

func (s *SQLiteStore) UpsertContentTypeRule(ctx context.Context, r model.ContentTypeRule) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin content rule upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	id, err := upsertContentTypeRule(ctx, tx, r, utcNow())
	if err != nil {
		return "", err
	}
	return id, eris.Wrap(tx.Commit(), "sqlite: commit content rule upsert")
}

func upsertContentTypeRule(ctx context.Context, tx *sql.Tx, r model.ContentTypeRule, now time.Time) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	r.Domain = strings.ToLower(strings.TrimSpace(r.Domain))
	if r.ID == "" {
		r.ID = newID()
	}

	var exists bool
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM content_type_rules WHERE id = ?`, r.ID).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return "", eris.Wrapf(err, "sqlite: get content rule %s", r.ID)
	}

	var existing *model.ContentTypeRule
	if exists {
		existing = &model.ContentTypeRule{ID: r.ID}
	}
	merged := model.MergeContentTypeRule(existing, r)
	merged.UpdatedAt = now

	if existing == nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO content_type_rules (id, domain, content_type, url_pattern, trust_modifier, min_ratings_required, priority, active, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			merged.ID, merged.Domain, merged.ContentType, merged.URLPattern, merged.TrustModifier,
			merged.MinRatingsRequired, merged.Priority, merged.Active, merged.UpdatedAt,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE content_type_rules SET domain = ?, content_type = ?, url_pattern = ?, trust_modifier = ?,
			 min_ratings_required = ?, priority = ?, active = ?, updated_at = ? WHERE id = ?`,
			merged.Domain, merged.ContentType, merged.URLPattern, merged.TrustModifier,
			merged.MinRatingsRequired, merged.Priority, merged.Active, merged.UpdatedAt, merged.ID,
		)
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: write content rule %s", merged.ID)
	}
	return merged.ID, nil
}

func (s *SQLiteStore) ImportRules(ctx context.Context, blacklist []model.BlacklistRule, content []model.ContentTypeRule) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin import rules")
	}
	defer tx.Rollback() //nolint:errcheck

	now := utcNow()
	n := 0
	for _, r := range blacklist {
		if err := upsertBlacklistRule(ctx, tx, r, now); err != nil {
			return 0, err
		}
		n++
	}
	for _, r := range content {
		if _, err := upsertContentTypeRule(ctx, tx, r, now); err != nil {
			return 0, err
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit import rules")
	}
	return n, nil
}

// --- URL stats ---

const statsColumns = `url_hash, url, domain, domain_score, community_score, final_score, content_type,
	rating_count, average_rating, spam_reports, misleading_reports, scam_reports, processing_status, last_updated`

func getURLStats(ctx context.Context, db queryRower, urlHash string) (*model.URLStats, error) {
	var st model.URLStats
	var status string
	err := db.QueryRowContext(ctx,
		`SELECT `+statsColumns+` FROM url_stats WHERE url_hash = ?`, urlHash,
	).Scan(&st.URLHash, &st.URL, &st.Domain, &st.DomainScore, &st.CommunityScore, &st.FinalScore,
		&st.ContentType, &st.RatingCount, &st.AverageRating, &st.SpamReports, &st.MisleadingReports,
		&st.ScamReports, &status, &st.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get url stats %s", urlHash)
	}
	st.ProcessingStatus = model.ProcessingStatus(status)
	return &st, nil
}

func (s *SQLiteStore) GetURLStats(ctx context.Context, urlHash string) (*model.URLStats, error) {
	return getURLStats(ctx, s.db, urlHash)
}

func (s *SQLiteStore) UpsertURLStats(ctx context.Context, in model.URLStats) (model.URLStats, error) {
	if in.LastUpdated.IsZero() {
		in.LastUpdated = utcNow()
	}
	in.LastUpdated = in.LastUpdated.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.URLStats{}, eris.Wrap(err, "sqlite: begin url stats upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	existing, err := getURLStats(ctx, tx, in.URLHash)
	if err != nil {
		return model.URLStats{}, err
	}
	m := model.MergeURLStats(existing, in)

	if existing == nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO url_stats (`+statsColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.URLHash, m.URL, m.Domain, m.DomainScore, m.CommunityScore, m.FinalScore, m.ContentType,
			m.RatingCount, m.AverageRating, m.SpamReports, m.MisleadingReports, m.ScamReports,
			string(m.ProcessingStatus), m.LastUpdated,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE url_stats SET url = ?, domain = ?, domain_score = ?, community_score = ?, final_score = ?,
			 content_type = ?, rating_count = ?, average_rating = ?, spam_reports = ?, misleading_reports = ?,
			 scam_reports = ?, processing_status = ?, last_updated = ? WHERE url_hash = ?`,
			m.URL, m.Domain, m.DomainScore, m.CommunityScore, m.FinalScore, m.ContentType,
			m.RatingCount, m.AverageRating, m.SpamReports, m.MisleadingReports, m.ScamReports,
			string(m.ProcessingStatus), m.LastUpdated.UTC(), m.URLHash,
		)
	}
	if err != nil {
		return model.URLStats{}, eris.Wrapf(err, "sqlite: write url stats %s", in.URLHash)
	}
	if err := tx.Commit(); err != nil {
		return model.URLStats{}, eris.Wrap(err, "sqlite: commit url stats")
	}
	return m, nil
}

func (s *SQLiteStore) GetDomainStats(ctx context.Context, domain string) (*model.DomainStats, error) {
	ds := model.DomainStats{Domain: domain}
	var weighted float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(rating_count), 0), COALESCE(SUM(average_rating * rating_count), 0),
		 COALESCE(AVG(domain_score), 0), COALESCE(AVG(community_score), 0), COALESCE(AVG(final_score), 0),
		 COALESCE(MIN(final_score), 0), COALESCE(MAX(final_score), 0),
		 COALESCE(SUM(spam_reports), 0), COALESCE(SUM(misleading_reports), 0), COALESCE(SUM(scam_reports), 0)
		 FROM url_stats WHERE domain = ? AND processing_status <> ?`,
		domain, string(model.StatusPending),
	).Scan(&ds.URLCount, &ds.RatingCount, &weighted, &ds.AverageDomainScore, &ds.AverageCommunityScore,
		&ds.AverageFinalScore, &ds.MinFinalScore, &ds.MaxFinalScore,
		&ds.SpamReports, &ds.MisleadingReports, &ds.ScamReports)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: domain stats %s", domain)
	}
	if ds.URLCount == 0 {
		return nil, nil
	}

	// Aggregates lose the DATETIME column type, so the newest timestamp is
	// read from the row itself.
	err = s.db.QueryRowContext(ctx,
		`SELECT last_updated FROM url_stats WHERE domain = ? AND processing_status <> ?
		 ORDER BY last_updated DESC LIMIT 1`,
		domain, string(model.StatusPending),
	).Scan(&ds.LastUpdated)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: domain stats last updated %s", domain)
	}

	summarizeDomain(&ds, weighted)
	return &ds, nil
}

func (s *SQLiteStore) ClearURLScores(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE url_stats SET domain_score = 0, community_score = 0, final_score = 0,
		 processing_status = ?, last_updated = ?`,
		string(model.StatusPending), utcNow(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear url scores")
	}
	return rowsAffected(res)
}

func (s *SQLiteStore) DeleteURLStatsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM url_stats WHERE last_updated < ?`, cutoff.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete old url stats")
	}
	return rowsAffected(res)
}

func rowsAffected(res sql.Result) (int, error) {
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "rows affected")
}
