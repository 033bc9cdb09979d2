package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/trustscore/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertAggregationBacklog  AlertType = "aggregation_backlog"
	AlertAggregationSkipRate AlertType = "aggregation_skip_rate"
	AlertCircuitOpen         AlertType = "signal_provider_circuit_open"
)

// minAttemptedForSkipRate keeps a tiny pass from tripping the skip-rate alert.
const minAttemptedForSkipRate = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if a.cfg.BacklogThreshold > 0 && snap.UnprocessedRatings > a.cfg.BacklogThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertAggregationBacklog,
			Severity: "high",
			Message: fmt.Sprintf(
				"%d unprocessed ratings exceed backlog threshold %d",
				snap.UnprocessedRatings, a.cfg.BacklogThreshold,
			),
			Details: map[string]any{
				"unprocessed":   snap.UnprocessedRatings,
				"threshold":     a.cfg.BacklogThreshold,
				"skipped_ticks": snap.SkippedTicks,
			},
			Timestamp: now,
		})
	}

	attempted := snap.LastPassProcessed + snap.LastPassSkipped
	if a.cfg.SkipRateThreshold > 0 && attempted >= minAttemptedForSkipRate &&
		snap.LastPassSkipRate > a.cfg.SkipRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertAggregationSkipRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Aggregation skip rate %.1f%% exceeds threshold %.1f%% (%d skipped / %d urls)",
				snap.LastPassSkipRate*100, a.cfg.SkipRateThreshold*100,
				snap.LastPassSkipped, attempted,
			),
			Details: map[string]any{
				"skip_rate": snap.LastPassSkipRate,
				"threshold": a.cfg.SkipRateThreshold,
				"skipped":   snap.LastPassSkipped,
				"attempted": attempted,
			},
			Timestamp: now,
		})
	}

	if len(snap.OpenCircuits) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertCircuitOpen,
			Severity: "medium",
			Message: fmt.Sprintf(
				"Signal provider circuit open: %s; domains score with neutral defaults",
				strings.Join(snap.OpenCircuits, ", "),
			),
			Details: map[string]any{
				"providers":       snap.OpenCircuits,
				"refresh_failed":  snap.RefreshFailed,
				"refresh_dropped": snap.RefreshDropped,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
