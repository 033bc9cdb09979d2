package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/trustscore/internal/db"
	"github.com/sells-group/trustscore/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// preparedStatements lists the hot-path queries of an aggregation pass,
// prepared on each new connection.
var preparedStatements = map[string]string{
	"unprocessed_url_hashes": `SELECT url_hash FROM ratings WHERE NOT processed GROUP BY url_hash ORDER BY MIN(created_at), url_hash LIMIT $1`,
	"ratings_for_url":        `SELECT ` + ratingColumns + ` FROM ratings WHERE url_hash = $1 ORDER BY created_at, id`,
	"mark_processed":         `UPDATE ratings SET processed = true WHERE url_hash = $1 AND NOT processed AND id = ANY($2)`,
	"get_domain_cache":       `SELECT domain, domain_age_days, ssl_valid, http_status, threat_status, checked_at, expires_at FROM domain_cache WHERE domain = $1`,
	"get_url_stats":          `SELECT ` + statsColumns + ` FROM url_stats WHERE url_hash = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Statements reference tables, so migrations must have run before the
	// pool opens its first connection; `trustscore migrate` does that.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS ratings (
	id            TEXT PRIMARY KEY,
	url_hash      TEXT NOT NULL,
	url           TEXT NOT NULL DEFAULT '',
	domain        TEXT NOT NULL DEFAULT '',
	user_ref      TEXT NOT NULL DEFAULT '',
	score         SMALLINT NOT NULL CHECK (score BETWEEN 1 AND 5),
	is_spam       BOOLEAN NOT NULL DEFAULT false,
	is_misleading BOOLEAN NOT NULL DEFAULT false,
	is_scam       BOOLEAN NOT NULL DEFAULT false,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed     BOOLEAN NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS idx_ratings_unprocessed ON ratings(url_hash, created_at) WHERE NOT processed;
CREATE INDEX IF NOT EXISTS idx_ratings_url_hash ON ratings(url_hash);
CREATE INDEX IF NOT EXISTS idx_ratings_created_at ON ratings(created_at);

CREATE TABLE IF NOT EXISTS domain_cache (
	domain          TEXT PRIMARY KEY,
	domain_age_days INTEGER,
	ssl_valid       BOOLEAN,
	http_status     INTEGER,
	threat_status   TEXT NOT NULL DEFAULT 'unknown',
	checked_at      TIMESTAMPTZ NOT NULL,
	expires_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_domain_cache_expires_at ON domain_cache(expires_at);

CREATE TABLE IF NOT EXISTS blacklist_rules (
	pattern    TEXT PRIMARY KEY,
	category   TEXT NOT NULL,
	severity   SMALLINT NOT NULL CHECK (severity BETWEEN 1 AND 10),
	reason     TEXT NOT NULL DEFAULT '',
	active     BOOLEAN NOT NULL DEFAULT true,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS content_type_rules (
	id                   TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	domain               TEXT NOT NULL,
	content_type         TEXT NOT NULL,
	url_pattern          TEXT NOT NULL DEFAULT '',
	trust_modifier       DOUBLE PRECISION NOT NULL DEFAULT 0,
	min_ratings_required INTEGER NOT NULL DEFAULT 0,
	priority             INTEGER NOT NULL DEFAULT 0,
	active               BOOLEAN NOT NULL DEFAULT true,
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_content_type_rules_domain ON content_type_rules(domain, priority);

CREATE TABLE IF NOT EXISTS url_stats (
	url_hash           TEXT PRIMARY KEY,
	url                TEXT NOT NULL DEFAULT '',
	domain             TEXT NOT NULL DEFAULT '',
	domain_score       DOUBLE PRECISION NOT NULL,
	community_score    DOUBLE PRECISION NOT NULL,
	final_score        DOUBLE PRECISION NOT NULL,
	content_type       TEXT NOT NULL,
	rating_count       INTEGER NOT NULL,
	average_rating     DOUBLE PRECISION NOT NULL,
	spam_reports       INTEGER NOT NULL DEFAULT 0,
	misleading_reports INTEGER NOT NULL DEFAULT 0,
	scam_reports       INTEGER NOT NULL DEFAULT 0,
	processing_status  TEXT NOT NULL,
	last_updated       TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_url_stats_domain ON url_stats(domain);
CREATE INDEX IF NOT EXISTS idx_url_stats_last_updated ON url_stats(last_updated);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Ratings ---

func (s *PostgresStore) AppendRating(ctx context.Context, r *model.Rating) (string, error) {
	if err := prepareRating(r, utcNow()); err != nil {
		return "", err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ratings (`+ratingColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.URLHash, r.URL, r.Domain, r.UserRef, r.Score,
		r.Flags.IsSpam, r.Flags.IsMisleading, r.Flags.IsScam, r.CreatedAt, r.Processed,
	)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: insert rating for %s", r.URLHash)
	}
	return r.ID, nil
}

func (s *PostgresStore) AppendRatings(ctx context.Context, rs []model.Rating) (int64, error) {
	now := utcNow()
	rows := make([][]any, 0, len(rs))
	for i := range rs {
		r := &rs[i]
		if err := prepareRating(r, now); err != nil {
			return 0, err
		}
		rows = append(rows, []any{
			r.ID, r.URLHash, r.URL, r.Domain, r.UserRef, r.Score,
			r.Flags.IsSpam, r.Flags.IsMisleading, r.Flags.IsScam, r.CreatedAt, r.Processed,
		})
	}
	return db.CopyFrom(ctx, s.pool, "ratings", splitColumns(ratingColumns), rows)
}

func (s *PostgresStore) UnprocessedURLHashes(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx, preparedStatements["unprocessed_url_hashes"], limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: unprocessed url hashes")
	}
	hashes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return hashes, eris.Wrap(err, "postgres: scan url hashes")
}

func (s *PostgresStore) RatingsForURL(ctx context.Context, urlHash string) ([]model.Rating, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["ratings_for_url"], urlHash)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: ratings for %s", urlHash)
	}
	defer rows.Close()

	var out []model.Rating
	for rows.Next() {
		var r model.Rating
		if err := rows.Scan(&r.ID, &r.URLHash, &r.URL, &r.Domain, &r.UserRef, &r.Score,
			&r.Flags.IsSpam, &r.Flags.IsMisleading, &r.Flags.IsScam, &r.CreatedAt, &r.Processed); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rating")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: ratings iterate")
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, urlHash string, ratingIDs []string) (int, error) {
	if len(ratingIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, preparedStatements["mark_processed"], urlHash, ratingIDs)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: mark processed %s", urlHash)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ResetProcessed(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `UPDATE ratings SET processed = false WHERE processed`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: reset processed")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) CountUnprocessed(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ratings WHERE NOT processed`).Scan(&n)
	return n, eris.Wrap(err, "postgres: count unprocessed")
}

func (s *PostgresStore) DeleteRatingsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ratings WHERE processed AND created_at < $1`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete old ratings")
	}
	return int(tag.RowsAffected()), nil
}

// --- Domain cache ---

type pgQueryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pgGetDomainCache(ctx context.Context, q pgQueryRower, query, domain string) (*model.DomainCacheEntry, error) {
	var e model.DomainCacheEntry
	var threat string
	err := q.QueryRow(ctx, query, domain).
		Scan(&e.Domain, &e.DomainAgeDays, &e.SSLValid, &e.HTTPStatus, &threat, &e.CheckedAt, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get domain cache %s", domain)
	}
	e.ThreatStatus = model.ParseThreatStatus(threat)
	return &e, nil
}

func (s *PostgresStore) GetDomainCache(ctx context.Context, domain string) (*model.DomainCacheEntry, error) {
	return pgGetDomainCache(ctx, s.pool, preparedStatements["get_domain_cache"], domain)
}

func (s *PostgresStore) PutDomainCache(ctx context.Context, e model.DomainCacheEntry) (model.DomainCacheEntry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.DomainCacheEntry{}, eris.Wrap(err, "postgres: begin put domain cache")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	existing, err := pgGetDomainCache(ctx, tx, preparedStatements["get_domain_cache"]+` FOR UPDATE`, e.Domain)
	if err != nil {
		return model.DomainCacheEntry{}, err
	}
	merged := model.MergeDomainCacheEntry(existing, e)

	if existing == nil {
		_, err = tx.Exec(ctx,
			`INSERT INTO domain_cache (domain, domain_age_days, ssl_valid, http_status, threat_status, checked_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			merged.Domain, merged.DomainAgeDays, merged.SSLValid, merged.HTTPStatus,
			string(merged.ThreatStatus), merged.CheckedAt, merged.ExpiresAt,
		)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE domain_cache SET domain_age_days = $1, ssl_valid = $2, http_status = $3, threat_status = $4,
			 checked_at = $5, expires_at = $6 WHERE domain = $7`,
			merged.DomainAgeDays, merged.SSLValid, merged.HTTPStatus, string(merged.ThreatStatus),
			merged.CheckedAt, merged.ExpiresAt, merged.Domain,
		)
	}
	if err != nil {
		return model.DomainCacheEntry{}, eris.Wrapf(err, "postgres: write domain cache %s", e.Domain)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.DomainCacheEntry{}, eris.Wrap(err, "postgres: commit domain cache")
	}
	return merged, nil
}

func (s *PostgresStore) ExpireDomainCache(ctx context.Context, domain string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE domain_cache SET expires_at = $1 WHERE domain = $2 AND expires_at > $1`,
		at, domain,
	)
	return eris.Wrapf(err, "postgres: expire domain cache %s", domain)
}

func (s *PostgresStore) DeleteDomainCacheBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM domain_cache WHERE expires_at < $1`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete old domain cache")
	}
	return int(tag.RowsAffected()), nil
}

// --- Rules ---

func (s *PostgresStore) ListBlacklistRules(ctx context.Context, activeOnly bool) ([]model.BlacklistRule, error) {
	query := `SELECT pattern, category, severity, reason, active, updated_at FROM blacklist_rules`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY pattern`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list blacklist rules")
	}
	defer rows.Close()

	var out []model.BlacklistRule
	for rows.Next() {
		var r model.BlacklistRule
		if err := rows.Scan(&r.Pattern, &r.Category, &r.Severity, &r.Reason, &r.Active, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan blacklist rule")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list blacklist rules iterate")
}

// UpsertBlacklistRule replaces a single rule. Rules are keyed by pattern and
// replaced wholesale, so the ON CONFLICT write is the merge.
func (s *PostgresStore) UpsertBlacklistRule(ctx context.Context, r model.BlacklistRule) error {
	_, err := s.ImportRules(ctx, []model.BlacklistRule{r}, nil)
	return err
}

func (s *PostgresStore) ListContentTypeRules(ctx context.Context, activeOnly bool) ([]model.ContentTypeRule, error) {
	query := `SELECT id, domain, content_type, url_pattern, trust_modifier, min_ratings_required, priority, active, updated_at
		FROM content_type_rules`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY domain, priority, id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list content rules")
	}
	defer rows.Close()

	var out []model.ContentTypeRule
	for rows.Next() {
		var r model.ContentTypeRule
		if err := rows.Scan(&r.ID, &r.Domain, &r.ContentType, &r.URLPattern, &r.TrustModifier,
			&r.MinRatingsRequired, &r.Priority, &r.Active, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan content rule")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list content rules iterate")
}

func (s *PostgresStore) UpsertContentTypeRule(ctx context.Context, r model.ContentTypeRule) (string, error) {
	if r.ID == "" {
		r.ID = newID()
	}
	if _, err := s.ImportRules(ctx, nil, []model.ContentTypeRule{r}); err != nil {
		return "", err
	}
	return r.ID, nil
}

var (
	blacklistUpsert = db.UpsertConfig{
		Table:        "blacklist_rules",
		Columns:      []string{"pattern", "category", "severity", "reason", "active", "updated_at"},
		ConflictKeys: []string{"pattern"},
	}
	contentRuleUpsert = db.UpsertConfig{
		Table: "content_type_rules",
		Columns: []string{"id", "domain", "content_type", "url_pattern", "trust_modifier",
			"min_ratings_required", "priority", "active", "updated_at"},
		ConflictKeys: []string{"id"},
	}
)

func (s *PostgresStore) ImportRules(ctx context.Context, blacklist []model.BlacklistRule, content []model.ContentTypeRule) (int, error) {
	now := utcNow()

	blRows := make([][]any, 0, len(blacklist))
	for _, r := range blacklist {
		if err := r.Validate(); err != nil {
			return 0, err
		}
		blRows = append(blRows, []any{
			strings.ToLower(strings.TrimSpace(r.Pattern)), r.Category, r.Severity, r.Reason, r.Active, now,
		})
	}

	ctRows := make([][]any, 0, len(content))
	for _, r := range content {
		if err := r.Validate(); err != nil {
			return 0, err
		}
		if r.ID == "" {
			r.ID = newID()
		}
		ctRows = append(ctRows, []any{
			r.ID, strings.ToLower(strings.TrimSpace(r.Domain)), r.ContentType, r.URLPattern, r.TrustModifier,
			r.MinRatingsRequired, r.Priority, r.Active, now,
		})
	}

	nb, err := db.BulkUpsert(ctx, s.pool, blacklistUpsert, blRows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: import blacklist rules")
	}
	nc, err := db.BulkUpsert(ctx, s.pool, contentRuleUpsert, ctRows)
	if err != nil {
		return int(nb), eris.Wrap(err, "postgres: import content rules")
	}
	return int(nb + nc), nil
}

// --- URL stats ---

func pgGetURLStats(ctx context.Context, q pgQueryRower, query, urlHash string) (*model.URLStats, error) {
	var st model.URLStats
	var status string
	err := q.QueryRow(ctx, query, urlHash).
		Scan(&st.URLHash, &st.URL, &st.Domain, &st.DomainScore, &st.CommunityScore, &st.FinalScore,
			&st.ContentType, &st.RatingCount, &st.AverageRating, &st.SpamReports, &st.MisleadingReports,
			&st.ScamReports, &status, &st.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get url stats %s", urlHash)
	}
	st.ProcessingStatus = model.ProcessingStatus(status)
	st.LastUpdated = st.LastUpdated.UTC()
	return &st, nil
}

func (s *PostgresStore) GetURLStats(ctx context.Context, urlHash string) (*model.URLStats, error) {
	return pgGetURLStats(ctx, s.pool, preparedStatements["get_url_stats"], urlHash)
}

func (s *PostgresStore) UpsertURLStats(ctx context.Context, in model.URLStats) (model.URLStats, error) {
	if in.LastUpdated.IsZero() {
		in.LastUpdated = utcNow()
	}
	in.LastUpdated = in.LastUpdated.UTC().Truncate(time.Microsecond)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.URLStats{}, eris.Wrap(err, "postgres: begin url stats upsert")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	existing, err := pgGetURLStats(ctx, tx, preparedStatements["get_url_stats"]+` FOR UPDATE`, in.URLHash)
	if err != nil {
		return model.URLStats{}, err
	}
	m := model.MergeURLStats(existing, in)

	if existing == nil {
		_, err = tx.Exec(ctx,
			`INSERT INTO url_stats (`+statsColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			m.URLHash, m.URL, m.Domain, m.DomainScore, m.CommunityScore, m.FinalScore, m.ContentType,
			m.RatingCount, m.AverageRating, m.SpamReports, m.MisleadingReports, m.ScamReports,
			string(m.ProcessingStatus), m.LastUpdated,
		)
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE url_stats SET url = $1, domain = $2, domain_score = $3, community_score = $4, final_score = $5,
			 content_type = $6, rating_count = $7, average_rating = $8, spam_reports = $9, misleading_reports = $10,
			 scam_reports = $11, processing_status = $12, last_updated = $13 WHERE url_hash = $14`,
			m.URL, m.Domain, m.DomainScore, m.CommunityScore, m.FinalScore, m.ContentType,
			m.RatingCount, m.AverageRating, m.SpamReports, m.MisleadingReports, m.ScamReports,
			string(m.ProcessingStatus), m.LastUpdated, m.URLHash,
		)
	}
	if err != nil {
		return model.URLStats{}, eris.Wrapf(err, "postgres: write url stats %s", in.URLHash)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.URLStats{}, eris.Wrap(err, "postgres: commit url stats")
	}
	return m, nil
}

func (s *PostgresStore) GetDomainStats(ctx context.Context, domain string) (*model.DomainStats, error) {
	ds := model.DomainStats{Domain: domain}
	var weighted float64
	var lastUpdated *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(rating_count), 0), COALESCE(SUM(average_rating * rating_count), 0)::float8,
		 COALESCE(AVG(domain_score), 0)::float8, COALESCE(AVG(community_score), 0)::float8, COALESCE(AVG(final_score), 0)::float8,
		 COALESCE(MIN(final_score), 0), COALESCE(MAX(final_score), 0),
		 COALESCE(SUM(spam_reports), 0), COALESCE(SUM(misleading_reports), 0), COALESCE(SUM(scam_reports), 0),
		 MAX(last_updated)
		 FROM url_stats WHERE domain = $1 AND processing_status <> $2`,
		domain, string(model.StatusPending),
	).Scan(&ds.URLCount, &ds.RatingCount, &weighted, &ds.AverageDomainScore, &ds.AverageCommunityScore,
		&ds.AverageFinalScore, &ds.MinFinalScore, &ds.MaxFinalScore,
		&ds.SpamReports, &ds.MisleadingReports, &ds.ScamReports, &lastUpdated)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: domain stats %s", domain)
	}
	if ds.URLCount == 0 {
		return nil, nil
	}
	if lastUpdated != nil {
		ds.LastUpdated = lastUpdated.UTC()
	}
	summarizeDomain(&ds, weighted)
	return &ds, nil
}

func (s *PostgresStore) ClearURLScores(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE url_stats SET domain_score = 0, community_score = 0, final_score = 0,
		 processing_status = $1, last_updated = $2`,
		string(model.StatusPending), utcNow(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear url scores")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) DeleteURLStatsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM url_stats WHERE last_updated < $1`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete old url stats")
	}
	return int(tag.RowsAffected()), nil
}

// splitColumns turns a column list constant into COPY column names.
func splitColumns(cols string) []string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
