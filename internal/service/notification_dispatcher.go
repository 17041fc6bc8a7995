package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/girishdigge/graduate-voter-lokmangal-sub002/internal/models"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/phone"
	"github.com/girishdigge/graduate-voter-lokmangal-sub002/pkg/whatsapp"
)

type messageGateway interface {
	Configured() bool
	TemplateName() string
	SendTemplate(ctx context.Context, to string, msg whatsapp.TemplateMessage) (*whatsapp.SendResult, error)
	SendText(ctx context.Context, to, body string) (*whatsapp.SendResult, error)
}

// DeliveryResult is the notification outcome for one reference.
type DeliveryResult struct {
	ReferenceID  string
	Sent         bool
	SentAt       *time.Time
	FallbackUsed bool
	Skipped      bool
	Err          error
}

// Delivery outcome labels used for metrics.
const (
	deliverySent         = "sent"
	deliveryFallbackSent = "fallback_sent"
	deliveryFailed       = "failed"
	deliverySkipped      = "skipped"
)

func (r DeliveryResult) label() string {
	switch {
	case r.Skipped:
		return deliverySkipped
	case r.Sent && r.FallbackUsed:
		return deliveryFallbackSent
	case r.Sent:
		return deliverySent
	default:
		return deliveryFailed
	}
}

// NotificationDispatcher notifies reference contacts through the messaging gateway.
type NotificationDispatcher struct {
	gateway messageGateway
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewNotificationDispatcher constructs the dispatcher.
func NewNotificationDispatcher(gateway messageGateway, metrics *MetricsService, logger *zap.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationDispatcher{
		gateway: gateway,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch notifies every reference concurrently and returns one result per
// reference in input order. onResult, when set, runs inside each task as soon
// as that reference's outcome is known. Dispatch never fails.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, voter models.Voter, refs []models.Reference, onResult func(DeliveryResult)) []DeliveryResult {
	ctx, span := tracer.Start(ctx, "NotificationDispatcher.Dispatch")
	defer span.End()
	span.SetAttributes(attribute.Int("references.count", len(refs)))

	results := make([]DeliveryResult, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	for i := range refs {
		i, ref := i, refs[i]
		g.Go(func() error {
			res := d.notify(gctx, voter, ref)
			results[i] = res
			d.metrics.RecordDelivery(res.label())
			if onResult != nil {
				onResult(res)
			}
			return nil
		})
	}
	_ = g.Wait()

	sent := 0
	for _, res := range results {
		if res.Sent {
			sent++
		}
	}
	span.SetAttributes(attribute.Int("references.sent", sent))
	return results
}

func (d *NotificationDispatcher) notify(ctx context.Context, voter models.Voter, ref models.Reference) (res DeliveryResult) {
	res = DeliveryResult{ReferenceID: ref.ID}
	masked := phone.Mask(ref.ReferenceContact)

	defer func() {
		if r := recover(); r != nil {
			res = DeliveryResult{ReferenceID: ref.ID, Err: fmt.Errorf("notify panic: %v", r)}
			d.logger.Error("reference notification panicked", zap.String("reference_id", ref.ID), zap.String("contact", masked), zap.Any("panic", r))
		}
	}()

	if d.gateway == nil || !d.gateway.Configured() {
		res.Skipped = true
		d.logger.Debug("messaging gateway not configured, skipping notification", zap.String("reference_id", ref.ID), zap.String("contact", masked))
		return res
	}

	_, span := tracer.Start(ctx, "NotificationDispatcher.notify")
	defer span.End()
	span.SetAttributes(attribute.String("reference.id", ref.ID))

	to := phone.ForGateway(ref.ReferenceContact)
	_, err := d.gateway.SendTemplate(ctx, to, whatsapp.TemplateMessage{
		Name:       d.gateway.TemplateName(),
		BodyParams: []string{ref.ReferenceName, voter.FullName, phone.Mask(voter.ContactNumber)},
	})
	if err == nil {
		return d.markSent(res, masked, false)
	}

	class := whatsapp.Classify(err)
	fields := []zap.Field{
		zap.String("reference_id", ref.ID),
		zap.String("contact", masked),
		zap.String("error_class", class.String()),
		zap.Error(err),
	}
	var apiErr *whatsapp.APIError
	if errors.As(err, &apiErr) {
		fields = append(fields, zap.Int("gateway_code", apiErr.Code), zap.Int("http_status", apiErr.HTTPStatus), zap.String("trace_id", apiErr.TraceID))
	}

	switch class {
	case whatsapp.ClassTemplateRejected:
		d.logger.Warn("template rejected, falling back to text message", fields...)
		if _, err = d.gateway.SendText(ctx, to, fallbackText(ref, voter)); err == nil {
			return d.markSent(res, masked, true)
		}
		res.FallbackUsed = true
		d.logger.Warn("fallback text message failed", zap.String("reference_id", ref.ID), zap.String("contact", masked), zap.String("error_class", whatsapp.Classify(err).String()), zap.Error(err))
	case whatsapp.ClassCredentialInvalid:
		d.logger.Error("messaging gateway rejected credentials, check WHATSAPP_ACCESS_TOKEN", fields...)
	case whatsapp.ClassRecipientMisconfigured:
		d.logger.Error("messaging gateway reports misconfigured sender or recipient, check WHATSAPP_PHONE_NUMBER_ID", fields...)
	default:
		d.logger.Warn("reference notification failed", fields...)
	}

	res.Err = err
	span.RecordError(err)
	span.SetStatus(codes.Error, "notification failed")
	return res
}

func (d *NotificationDispatcher) markSent(res DeliveryResult, masked string, fallback bool) DeliveryResult {
	at := d.now()
	res.Sent = true
	res.SentAt = &at
	res.FallbackUsed = fallback
	d.logger.Info("reference notified", zap.String("reference_id", res.ReferenceID), zap.String("contact", masked), zap.Bool("fallback", fallback))
	return res
}

func fallbackText(ref models.Reference, voter models.Voter) string {
	return fmt.Sprintf("Hello %s, %s has named you as a reference for graduate constituency voter registration. Our volunteers may contact you shortly.",
		ref.ReferenceName, voter.FullName)
}
