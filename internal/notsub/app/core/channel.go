package core

import "context"

// PrimaryChannel is a session-window messaging provider.
type PrimaryChannel interface {
	// SendText sends freeform content; it fails with KindSessionExpired when
	// the window is closed.
	SendText(ctx context.Context, to, body string) error
	// SendTemplate sends the pre-registered template that reopens the window.
	SendTemplate(ctx context.Context, to string, params []string) error
}

type SecondaryStatus string

const (
	SecondarySent    SecondaryStatus = "sent"
	SecondarySkipped SecondaryStatus = "skipped"
	SecondaryFailed  SecondaryStatus = "failed"
)

// SecondaryChannel is a short-text channel. An unconfigured channel reports
// SecondarySkipped with a nil error.
type SecondaryChannel interface {
	Send(ctx context.Context, phone, text string) (SecondaryStatus, error)
}

type Recipient struct {
	Name  string
	Phone string
}

type Message struct {
	Text string
	// TemplateParams fill the body placeholders of the session template.
	TemplateParams []string
	// SkipSecondary suppresses the short-text copy, which already went out on
	// the first delivery of a requeued request.
	SkipSecondary bool
}

type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
)

type DeliveryResult struct {
	Outcome     Outcome
	ViaTemplate bool
	// Err is a *NotificationError when Outcome is failed.
	Err error
}

func (r DeliveryResult) Delivered() bool { return r.Outcome == OutcomeDelivered }
