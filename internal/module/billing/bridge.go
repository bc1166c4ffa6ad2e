package billing

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/squirrelhq/billing-service/internal/shared/config"
	"github.com/squirrelhq/billing-service/internal/shared/metrics"
)

// UsageReport is the inbound message shape on the usage-report topic.
// The account identity arrives as either userId or organizationId.
type UsageReport struct {
	UserID         string         `json:"userId"`
	OrganizationID string         `json:"organizationId"`
	Type           string         `json:"type"`
	Amount         int64          `json:"amount"`
	Metadata       map[string]any `json:"metadata"`
	DeductCredits  bool           `json:"deductCredits"`
}

// Account resolves the report's identity into a scope. Organization
// wins when both are set.
func (r *UsageReport) Account() (AccountScope, bool) {
	if r.OrganizationID != "" {
		return OrgScope(r.OrganizationID), true
	}
	if r.UserID != "" {
		return UserScope(r.UserID), true
	}
	return AccountScope{}, false
}

// Bridge consumes usage reports from Redis pub/sub and feeds them into
// the ledger. Processing is at-most-once: malformed or failing messages
// are logged and dropped, never redelivered.
type Bridge struct {
	rdb     redis.UniversalClient
	ledger  *Ledger
	cfg     config.BillingConfig
	metrics *metrics.Metrics
	logger  *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewBridge creates a new event bridge.
func NewBridge(rdb redis.UniversalClient, ledger *Ledger, cfg config.BillingConfig, m *metrics.Metrics, logger *zap.Logger) *Bridge {
	return &Bridge{rdb: rdb, ledger: ledger, cfg: cfg, metrics: m, logger: logger}
}

// Start subscribes to the usage-report topic and processes messages
// until Stop is called or the context ends.
func (b *Bridge) Start(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})

	sub := b.rdb.Subscribe(ctx, b.cfg.UsageReportTopic)
	// Force the subscription to be established before returning.
	if _, err := sub.Receive(ctx); err != nil {
		b.cancel()
		close(b.done)
		return err
	}

	b.logger.Info("usage report bridge started", zap.String("topic", b.cfg.UsageReportTopic))
	go func() {
		defer close(b.done)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.handleMessage(ctx, msg.Payload)
			}
		}
	}()
	return nil
}

// Stop shuts the bridge down and waits for in-flight processing.
func (b *Bridge) Stop() {
	b.once.Do(func() {
		if b.cancel != nil {
			b.cancel()
		}
		if b.done != nil {
			<-b.done
		}
		b.logger.Info("usage report bridge stopped")
	})
}

func (b *Bridge) handleMessage(ctx context.Context, payload string) {
	report, err := parseUsageReport([]byte(payload))
	if err != nil {
		b.metrics.BridgeMessagesTotal.WithLabelValues("malformed").Inc()
		b.logger.Warn("dropping malformed usage report",
			zap.Error(err),
			zap.String("payload", payload))
		return
	}
	account, ok := report.Account()
	if !ok || report.Type == "" {
		b.metrics.BridgeMessagesTotal.WithLabelValues("malformed").Inc()
		b.logger.Warn("dropping usage report with missing fields",
			zap.String("payload", payload))
		return
	}

	if report.DeductCredits {
		_, err = b.ledger.DeductCredits(ctx, account, report.Amount, report.Type, report.Metadata)
	} else {
		_, err = b.ledger.RecordUsage(ctx, account, report.Type, report.Amount, report.Metadata)
	}
	if err != nil {
		// Terminal for this message. No retry, no dead letter.
		b.metrics.BridgeMessagesTotal.WithLabelValues("failed").Inc()
		b.logger.Error("dropping usage report after processing failure",
			append(account.Fields(),
				zap.String("type", report.Type),
				zap.Bool("deduct", report.DeductCredits),
				zap.Error(err))...)
		return
	}
	b.metrics.BridgeMessagesTotal.WithLabelValues("processed").Inc()
}

// parseUsageReport decodes a report, tolerating payloads that arrive
// double-encoded as a JSON string wrapping the object.
func parseUsageReport(data []byte) (*UsageReport, error) {
	var report UsageReport
	if err := json.Unmarshal(data, &report); err == nil {
		return &report, nil
	}
	var wrapped string
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, ErrMalformedReport
	}
	if err := json.Unmarshal([]byte(wrapped), &report); err != nil {
		return nil, ErrMalformedReport
	}
	return &report, nil
}
