// Package notifier delivers completion notices to the points webhook.
package notifier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/Gamified-Coaching-App/challenges-user-progress/internal/domain"
	"github.com/Gamified-Coaching-App/challenges-user-progress/internal/observability"
)

// Webhook POSTs completion notices to a fixed HTTPS endpoint. Delivery is
// best-effort: each notice is attempted in a detached goroutine with a small
// bounded number of retries, and failures are logged and swallowed so they
// never affect the invocation's reported outcome.
type Webhook struct {
	client      *resty.Client
	url         string
	timeout     time.Duration
	maxRetries  uint64
	baseBackoff time.Duration
	logger      *zap.Logger

	wg sync.WaitGroup
}

// Option configures optional behaviour for the Webhook.
type Option func(*Webhook)

// WithBaseBackoff overrides the initial retry backoff.
func WithBaseBackoff(d time.Duration) Option {
	return func(w *Webhook) {
		w.baseBackoff = d
	}
}

// NewWebhook constructs a Webhook notifier. timeout bounds one notice's whole
// delivery attempt including retries; maxRetries is the number of re-attempts
// after the first.
func NewWebhook(url string, timeout time.Duration, maxRetries uint64, logger *zap.Logger, opts ...Option) *Webhook {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Webhook{
		client:      resty.New().SetHeader("Content-Type", "application/json"),
		url:         url,
		timeout:     timeout,
		maxRetries:  maxRetries,
		baseBackoff: 200 * time.Millisecond,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// NotifyCompletion dispatches the notice without blocking the caller. The
// send carries its own timeout and survives cancellation of the invocation
// that produced it.
func (w *Webhook) NotifyCompletion(ctx context.Context, notice domain.CompletionNotice) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
		defer cancel()
		w.send(sendCtx, notice)
	}()
}

// Close waits for in-flight notices to finish. Call on shutdown after the
// triggers have stopped.
func (w *Webhook) Close() {
	w.wg.Wait()
}

func (w *Webhook) send(ctx context.Context, notice domain.CompletionNotice) {
	logger := w.logger.With(
		zap.String("user_id", notice.UserID),
		zap.Int("points_earned", notice.PointsEarned),
	)

	backoff := retry.WithMaxRetries(w.maxRetries, retry.NewExponential(w.baseBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := w.client.R().
			SetContext(ctx).
			SetBody(notice).
			Post(w.url)
		if err != nil {
			return retry.RetryableError(err)
		}
		if resp.IsError() {
			return retry.RetryableError(fmt.Errorf("notification endpoint returned %s", resp.Status()))
		}
		logger.Info("completion notice delivered",
			zap.ByteString("response", resp.Body()))
		return nil
	})
	if err != nil {
		logger.Warn("completion notice dropped", zap.Error(err))
		observability.RecordNoticeFailed()
		return
	}
	observability.RecordNoticeDelivered()
}
