package mail

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/avisolabs/aviso/internal/metrics"
	"github.com/avisolabs/aviso/internal/template"
)

// Renderer is the template contract the dispatcher needs. Satisfied by
// template.Renderer.
type Renderer interface {
	Render(name string, vars map[string]string) (string, error)
}

// Config holds dispatcher-level settings. From is the fixed sender
// address stamped on every outbound message.
type Config struct {
	From        string
	PlatformURL string
	// MaxAttempts bounds delivery attempts per message. 1 disables
	// retries, restoring the propagate-first-failure behavior.
	MaxAttempts int
	// RetryBase is the first backoff delay; it doubles per attempt.
	RetryBase time.Duration
}

// Dispatcher composes messages, renders templates when no HTML body was
// supplied, and hands the result to the transport with bounded retries.
type Dispatcher struct {
	renderer  Renderer
	transport Transport
	config    Config
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher. Zero retry settings fall back to
// 3 attempts starting at 500ms.
func NewDispatcher(renderer Renderer, transport Transport, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	return &Dispatcher{
		renderer:  renderer,
		transport: transport,
		config:    cfg,
		logger:    logger,
	}
}

// SendMail composes and delivers msg using the base template when no
// HTML body is supplied.
func (d *Dispatcher) SendMail(ctx context.Context, msg *Message) (*Receipt, error) {
	return d.SendMailWithTemplate(ctx, msg, template.Base)
}

// SendMailWithTemplate is SendMail with an explicit template name.
//
// When msg.HTML is set it is used verbatim and the renderer is never
// invoked. Otherwise the template variables are seeded with the subject
// and text body, overlaid by msg.Variables (caller keys win), and the
// named template produces the HTML. The text body is carried through in
// both cases for multipart delivery.
func (d *Dispatcher) SendMailWithTemplate(ctx context.Context, msg *Message, templateName string) (*Receipt, error) {
	if msg.To == "" {
		return nil, fmt.Errorf("%w: missing recipient", ErrInvalidMessage)
	}
	if msg.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidMessage)
	}

	html := msg.HTML
	if html == "" {
		vars := map[string]string{
			"subject": msg.Subject,
			"body":    msg.Text,
		}
		for k, v := range msg.Variables {
			vars[k] = v
		}

		rendered, err := d.renderer.Render(templateName, vars)
		if err != nil {
			return nil, err
		}
		html = rendered
	}

	if html == "" && msg.Text == "" {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidMessage)
	}

	out := &Outbound{
		From:    d.config.From,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    html,
		Text:    msg.Text,
	}

	receipt, err := d.deliver(ctx, out, templateName)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// deliver retries transient failures with exponential backoff up to the
// configured budget. Permanent failures surface immediately.
func (d *Dispatcher) deliver(ctx context.Context, out *Outbound, templateName string) (*Receipt, error) {
	var last *DeliveryError
	delay := d.config.RetryBase

	for attempt := 1; attempt <= d.config.MaxAttempts; attempt++ {
		receipt, err := d.transport.Deliver(ctx, out)
		if err == nil {
			metrics.RecordMailSent(templateName)
			return receipt, nil
		}

		last = asDeliveryError(err)
		if last.Permanent || attempt == d.config.MaxAttempts {
			break
		}

		d.logger.Warn("delivery attempt failed, backing off",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("to", out.To),
			zap.Error(last.Err),
		)
		metrics.RecordMailRetry()

		select {
		case <-ctx.Done():
			return nil, &DeliveryError{Err: ctx.Err()}
		case <-time.After(delay):
		}
		delay *= 2
	}

	kind := "transient"
	if last.Permanent {
		kind = "permanent"
	}
	d.logger.Error("delivery failed",
		zap.String("to", out.To),
		zap.String("kind", kind),
		zap.Error(last.Err),
	)
	metrics.RecordMailFailure(kind)

	return nil, last
}

// SendWelcomeEmail delivers the welcome message for a newly registered
// account.
func (d *Dispatcher) SendWelcomeEmail(ctx context.Context, to, userName, userEmail string) (*Receipt, error) {
	msg := &Message{
		To:      to,
		Subject: "Bienvenido a la plataforma",
		Variables: map[string]string{
			"userName":    userName,
			"userEmail":   userEmail,
			"platformUrl": d.config.PlatformURL,
			"currentDate": currentDate(),
		},
	}
	return d.SendMailWithTemplate(ctx, msg, template.Welcome)
}

// SendPropertyNotification delivers a property-match alert. Absent
// match score and URLs fall back to the platform's placeholder values.
func (d *Dispatcher) SendPropertyNotification(ctx context.Context, to, userName string, property PropertySummary) (*Receipt, error) {
	matchScore := property.MatchScore
	if matchScore == "" {
		matchScore = "95"
	}
	listingURL := property.ListingURL
	if listingURL == "" {
		listingURL = "#"
	}
	schedulingURL := property.SchedulingURL
	if schedulingURL == "" {
		schedulingURL = "#"
	}

	msg := &Message{
		To:      to,
		Subject: fmt.Sprintf("Nueva propiedad para ti: %s", property.Title),
		Variables: map[string]string{
			"userName":      userName,
			"propertyTitle": property.Title,
			"propertyPrice": property.Price,
			"propertySize":  property.Size,
			"bedrooms":      property.Bedrooms,
			"bathrooms":     property.Bathrooms,
			"parkingSpots":  property.ParkingSpots,
			"location":      property.Location,
			"description":   property.Description,
			"matchScore":    matchScore,
			"listingUrl":    listingURL,
			"schedulingUrl": schedulingURL,
			"currentDate":   currentDate(),
		},
	}
	return d.SendMailWithTemplate(ctx, msg, template.PropertyNotification)
}

// SendPasswordRecovery delivers the reset-password message. An empty
// expirationLabel defaults to "24 horas".
func (d *Dispatcher) SendPasswordRecovery(ctx context.Context, to, userName, resetURL, expirationLabel string) (*Receipt, error) {
	if expirationLabel == "" {
		expirationLabel = "24 horas"
	}
	msg := &Message{
		To:      to,
		Subject: "Recupera tu contrasena",
		Variables: map[string]string{
			"userName":         userName,
			"userEmail":        to,
			"resetPasswordUrl": resetURL,
			"expirationTime":   expirationLabel,
			"currentDate":      currentDate(),
		},
	}
	return d.SendMailWithTemplate(ctx, msg, template.PasswordRecovery)
}

// currentDate formats today in the dd/mm/yyyy convention the audience
// expects.
func currentDate() string {
	return time.Now().Format("02/01/2006")
}
