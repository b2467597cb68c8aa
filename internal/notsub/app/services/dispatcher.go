package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"restaurant-pos/internal/notsub/app/core"
	"restaurant-pos/internal/xpkg/logger"
)

// MaxShortTextLen is the single-segment limit of the secondary channel.
const MaxShortTextLen = 160

// Dispatcher delivers one logical message over the primary channel, reopening
// a closed session window with a template when it has to.
type Dispatcher struct {
	primary   core.PrimaryChannel
	secondary core.SecondaryChannel
	timeout   time.Duration
	mylog     logger.Logger

	wg sync.WaitGroup
}

// NewDispatcher builds a dispatcher. secondary may be nil. timeout bounds
// every single outbound call.
func NewDispatcher(primary core.PrimaryChannel, secondary core.SecondaryChannel, timeout time.Duration, mylog logger.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		primary:   primary,
		secondary: secondary,
		timeout:   timeout,
		mylog:     mylog,
	}
}

// Notify runs the send protocol: direct send, then on a closed session one
// template send and exactly one retry of the original content. Any other
// direct failure ends the attempt. At most three primary calls are made.
func (d *Dispatcher) Notify(ctx context.Context, to core.Recipient, msg core.Message) core.DeliveryResult {
	mylog := d.mylog.Action("notify").With("phone", maskPhone(to.Phone))

	if to.Phone == "" {
		return d.failed(mylog, core.StageDirect, core.ErrNoRecipient)
	}

	if !msg.SkipSecondary {
		d.sendSecondary(ctx, to, msg)
	}

	err := d.step(ctx, func(ctx context.Context) error {
		return d.primary.SendText(ctx, to.Phone, msg.Text)
	})
	if err == nil {
		mylog.Info("Notification delivered")
		return core.DeliveryResult{Outcome: core.OutcomeDelivered}
	}
	if core.KindOf(err) != core.KindSessionExpired {
		return d.failed(mylog, core.StageDirect, err)
	}
	mylog.Info("Session window closed, reopening with template")

	if err := d.step(ctx, func(ctx context.Context) error {
		return d.primary.SendTemplate(ctx, to.Phone, msg.TemplateParams)
	}); err != nil {
		return d.failed(mylog, core.StageTemplateOpen, err)
	}

	if err := d.step(ctx, func(ctx context.Context) error {
		return d.primary.SendText(ctx, to.Phone, msg.Text)
	}); err != nil {
		return d.failed(mylog, core.StagePostTemplateRetry, err)
	}

	mylog.Info("Notification delivered after template", "via_template", true)
	return core.DeliveryResult{Outcome: core.OutcomeDelivered, ViaTemplate: true}
}

// Wait blocks until every secondary send started by Notify has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// step runs one outbound call under its own deadline. A bare timeout is
// transient, never a closed session.
func (d *Dispatcher) step(ctx context.Context, call func(ctx context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := call(stepCtx)
	if err == nil {
		return nil
	}
	var ce *core.ChannelError
	if !errors.As(err, &ce) && errors.Is(err, context.DeadlineExceeded) {
		return &core.ChannelError{Kind: core.KindTransient, Message: "request timed out", Err: err}
	}
	return err
}

func (d *Dispatcher) failed(mylog logger.Logger, stage core.Stage, err error) core.DeliveryResult {
	nerr := &core.NotificationError{Stage: stage, Err: err}
	mylog.Error("Notification failed", nerr, "stage", stage, "kind", core.KindOf(err))
	return core.DeliveryResult{Outcome: core.OutcomeFailed, Err: nerr}
}

// sendSecondary fires the condensed copy and returns at once.
func (d *Dispatcher) sendSecondary(ctx context.Context, to core.Recipient, msg core.Message) {
	if d.secondary == nil {
		return
	}
	text := Condense(msg.Text, MaxShortTextLen)
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		mylog := d.mylog.Action("notify_secondary")
		status, err := d.secondary.Send(ctx, to.Phone, text)
		if err != nil {
			mylog.Warn("Secondary send failed", "status", status, "error", err.Error())
			return
		}
		mylog.Debug("Secondary send finished", "status", status)
	}()
}

// Condense folds whitespace and cuts text to at most limit runes.
func Condense(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}
	const ellipsis = "..."
	if limit <= len(ellipsis) {
		return string([]rune(text)[:limit])
	}
	runes := []rune(text)
	return strings.TrimRight(string(runes[:limit-len(ellipsis)]), " ") + ellipsis
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
