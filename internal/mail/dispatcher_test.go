package mail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/avisolabs/aviso/internal/template"
)

// fakeTransport returns the queued errors in order, then succeeds.
type fakeTransport struct {
	errs  []error
	calls []*Outbound
}

func (f *fakeTransport) Deliver(ctx context.Context, out *Outbound) (*Receipt, error) {
	f.calls = append(f.calls, out)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &Receipt{MessageID: "msg-1"}, nil
}

type fakeRenderer struct {
	lastName string
	lastVars map[string]string
	err      error
}

func (f *fakeRenderer) Render(name string, vars map[string]string) (string, error) {
	f.lastName = name
	f.lastVars = vars
	if f.err != nil {
		return "", f.err
	}
	return "<html>" + vars["subject"] + "</html>", nil
}

func newTestDispatcher(transport Transport, renderer Renderer) *Dispatcher {
	return NewDispatcher(renderer, transport, Config{
		From:        "noreply@aviso.local",
		PlatformURL: "https://aviso.example",
		MaxAttempts: 3,
		RetryBase:   time.Millisecond,
	}, zap.NewNop())
}

func TestSendMailValidation(t *testing.T) {
	d := newTestDispatcher(&fakeTransport{}, &fakeRenderer{})
	ctx := context.Background()

	_, err := d.SendMail(ctx, &Message{Subject: "hola", Text: "cuerpo"})
	assert.ErrorIs(t, err, ErrInvalidMessage)

	_, err = d.SendMail(ctx, &Message{To: "ana@example.com", Text: "cuerpo"})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestSendMailHTMLBypassesRenderer(t *testing.T) {
	transport := &fakeTransport{}
	renderer := &fakeRenderer{}
	d := newTestDispatcher(transport, renderer)

	_, err := d.SendMail(context.Background(), &Message{
		To:      "ana@example.com",
		Subject: "hola",
		HTML:    "<p>listo</p>",
	})
	require.NoError(t, err)

	assert.Empty(t, renderer.lastName, "renderer must not run when HTML is supplied")
	require.Len(t, transport.calls, 1)
	assert.Equal(t, "<p>listo</p>", transport.calls[0].HTML)
	assert.Equal(t, "noreply@aviso.local", transport.calls[0].From)
}

func TestSendMailRendersBaseTemplate(t *testing.T) {
	transport := &fakeTransport{}
	renderer := &fakeRenderer{}
	d := newTestDispatcher(transport, renderer)

	_, err := d.SendMail(context.Background(), &Message{
		To:        "ana@example.com",
		Subject:   "hola",
		Text:      "cuerpo plano",
		Variables: map[string]string{"extra": "si"},
	})
	require.NoError(t, err)

	assert.Equal(t, template.Base, renderer.lastName)
	assert.Equal(t, "hola", renderer.lastVars["subject"])
	assert.Equal(t, "cuerpo plano", renderer.lastVars["body"])
	assert.Equal(t, "si", renderer.lastVars["extra"])
	require.Len(t, transport.calls, 1)
	assert.Equal(t, "cuerpo plano", transport.calls[0].Text)
}

func TestSendMailCallerVariablesWin(t *testing.T) {
	renderer := &fakeRenderer{}
	d := newTestDispatcher(&fakeTransport{}, renderer)

	_, err := d.SendMail(context.Background(), &Message{
		To:        "ana@example.com",
		Subject:   "hola",
		Text:      "cuerpo",
		Variables: map[string]string{"body": "sobrescrito"},
	})
	require.NoError(t, err)
	assert.Equal(t, "sobrescrito", renderer.lastVars["body"])
}

func TestSendMailRendererErrorPropagates(t *testing.T) {
	renderer := &fakeRenderer{err: template.ErrTemplateNotFound}
	transport := &fakeTransport{}
	d := newTestDispatcher(transport, renderer)

	_, err := d.SendMailWithTemplate(context.Background(), &Message{
		To:      "ana@example.com",
		Subject: "hola",
		Text:    "cuerpo",
	}, "missing")
	assert.ErrorIs(t, err, template.ErrTemplateNotFound)
	assert.Empty(t, transport.calls)
}

func TestDeliverRetriesTransientFailures(t *testing.T) {
	transport := &fakeTransport{errs: []error{
		&DeliveryError{Err: errors.New("timeout")},
		&DeliveryError{Err: errors.New("timeout")},
		nil,
	}}
	d := newTestDispatcher(transport, &fakeRenderer{})

	receipt, err := d.SendMail(context.Background(), &Message{
		To:      "ana@example.com",
		Subject: "hola",
		Text:    "cuerpo",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", receipt.MessageID)
	assert.Len(t, transport.calls, 3)
}

func TestDeliverGivesUpAfterBudget(t *testing.T) {
	transient := &DeliveryError{Err: errors.New("timeout")}
	transport := &fakeTransport{errs: []error{transient, transient, transient}}
	d := newTestDispatcher(transport, &fakeRenderer{})

	_, err := d.SendMail(context.Background(), &Message{
		To:      "ana@example.com",
		Subject: "hola",
		Text:    "cuerpo",
	})
	require.Error(t, err)

	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.False(t, derr.Permanent)
	assert.Len(t, transport.calls, 3)
}

func TestDeliverPermanentFailureIsImmediate(t *testing.T) {
	transport := &fakeTransport{errs: []error{
		&DeliveryError{Permanent: true, Err: errors.New("address rejected")},
	}}
	d := newTestDispatcher(transport, &fakeRenderer{})

	_, err := d.SendMail(context.Background(), &Message{
		To:      "ana@example.com",
		Subject: "hola",
		Text:    "cuerpo",
	})
	require.Error(t, err)

	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.True(t, derr.Permanent)
	assert.Len(t, transport.calls, 1, "permanent failures must not retry")
}

func TestDeliverUnclassifiedErrorTreatedTransient(t *testing.T) {
	transport := &fakeTransport{errs: []error{errors.New("boom"), nil}}
	d := newTestDispatcher(transport, &fakeRenderer{})

	_, err := d.SendMail(context.Background(), &Message{
		To:      "ana@example.com",
		Subject: "hola",
		Text:    "cuerpo",
	})
	require.NoError(t, err)
	assert.Len(t, transport.calls, 2)
}

func TestDeliverSingleAttemptBudget(t *testing.T) {
	transport := &fakeTransport{errs: []error{&DeliveryError{Err: errors.New("timeout")}}}
	d := NewDispatcher(&fakeRenderer{}, transport, Config{
		From:        "noreply@aviso.local",
		MaxAttempts: 1,
		RetryBase:   time.Millisecond,
	}, zap.NewNop())

	_, err := d.SendMail(context.Background(), &Message{
		To:      "ana@example.com",
		Subject: "hola",
		Text:    "cuerpo",
	})
	require.Error(t, err)
	assert.Len(t, transport.calls, 1)
}

func TestSendWelcomeEmail(t *testing.T) {
	renderer := &fakeRenderer{}
	d := newTestDispatcher(&fakeTransport{}, renderer)

	_, err := d.SendWelcomeEmail(context.Background(), "ana@example.com", "Ana", "ana@example.com")
	require.NoError(t, err)

	assert.Equal(t, template.Welcome, renderer.lastName)
	assert.Equal(t, "Ana", renderer.lastVars["userName"])
	assert.Equal(t, "https://aviso.example", renderer.lastVars["platformUrl"])
	assert.NotEmpty(t, renderer.lastVars["currentDate"])
}

func TestSendPropertyNotificationDefaults(t *testing.T) {
	renderer := &fakeRenderer{}
	transport := &fakeTransport{}
	d := newTestDispatcher(transport, renderer)

	_, err := d.SendPropertyNotification(context.Background(), "ana@example.com", "Ana", PropertySummary{
		Title: "Depto centro",
		Price: "120000",
	})
	require.NoError(t, err)

	assert.Equal(t, template.PropertyNotification, renderer.lastName)
	assert.Equal(t, "95", renderer.lastVars["matchScore"])
	assert.Equal(t, "#", renderer.lastVars["listingUrl"])
	assert.Equal(t, "#", renderer.lastVars["schedulingUrl"])
	require.Len(t, transport.calls, 1)
	assert.Equal(t, "Nueva propiedad para ti: Depto centro", transport.calls[0].Subject)
}

func TestSendPropertyNotificationExplicitValues(t *testing.T) {
	renderer := &fakeRenderer{}
	d := newTestDispatcher(&fakeTransport{}, renderer)

	_, err := d.SendPropertyNotification(context.Background(), "ana@example.com", "Ana", PropertySummary{
		Title:         "Casa jardin",
		MatchScore:    "82",
		ListingURL:    "https://aviso.example/p/1",
		SchedulingURL: "https://aviso.example/p/1/visit",
	})
	require.NoError(t, err)

	assert.Equal(t, "82", renderer.lastVars["matchScore"])
	assert.Equal(t, "https://aviso.example/p/1", renderer.lastVars["listingUrl"])
	assert.Equal(t, "https://aviso.example/p/1/visit", renderer.lastVars["schedulingUrl"])
}

func TestSendPasswordRecoveryDefaultExpiration(t *testing.T) {
	renderer := &fakeRenderer{}
	d := newTestDispatcher(&fakeTransport{}, renderer)

	_, err := d.SendPasswordRecovery(context.Background(), "ana@example.com", "Ana", "https://aviso.example/reset?t=abc", "")
	require.NoError(t, err)

	assert.Equal(t, template.PasswordRecovery, renderer.lastName)
	assert.Equal(t, "24 horas", renderer.lastVars["expirationTime"])
	assert.Equal(t, "https://aviso.example/reset?t=abc", renderer.lastVars["resetPasswordUrl"])
}
