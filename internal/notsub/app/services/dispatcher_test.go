package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"restaurant-pos/internal/notsub/app/core"
	"restaurant-pos/internal/xpkg/logger"
	"restaurant-pos/internal/xpkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPrimary returns the queued errors in call order.
type scriptedPrimary struct {
	mu       sync.Mutex
	text     []error
	template []error
	calls    []string
	block    bool
}

func (p *scriptedPrimary) SendText(ctx context.Context, to, body string) error {
	p.mu.Lock()
	p.calls = append(p.calls, "text")
	var err error
	if len(p.text) > 0 {
		err, p.text = p.text[0], p.text[1:]
	}
	block := p.block
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (p *scriptedPrimary) SendTemplate(ctx context.Context, to string, params []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "template")
	var err error
	if len(p.template) > 0 {
		err, p.template = p.template[0], p.template[1:]
	}
	return err
}

type blockingSecondary struct {
	release chan struct{}
	mu      sync.Mutex
	texts   []string
}

func (s *blockingSecondary) Send(ctx context.Context, phone, text string) (core.SecondaryStatus, error) {
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return core.SecondarySent, nil
}

var (
	expired  = &core.ChannelError{Kind: core.KindSessionExpired, Code: 131047, Message: "Re-engagement message"}
	rejected = &core.ChannelError{Kind: core.KindRejected, Code: 100, Message: "Invalid parameter"}
	to       = core.Recipient{Name: "Asha", Phone: "+919800000001"}
	msg      = core.Message{Text: "Hi Asha, your order 20250314-007-DL is confirmed.", TemplateParams: []string{"Asha", "20250314-007-DL"}}
)

func newDispatcher(p core.PrimaryChannel, s core.SecondaryChannel) *Dispatcher {
	return NewDispatcher(p, s, time.Second, logger.Nop())
}

func TestNotify_DirectSuccess(t *testing.T) {
	p := &scriptedPrimary{}
	res := newDispatcher(p, nil).Notify(context.Background(), to, msg)

	assert.True(t, res.Delivered())
	assert.False(t, res.ViaTemplate)
	assert.Equal(t, []string{"text"}, p.calls)
}

func TestNotify_SessionExpiredThenTemplate(t *testing.T) {
	p := &scriptedPrimary{text: []error{expired, nil}}
	res := newDispatcher(p, nil).Notify(context.Background(), to, msg)

	assert.True(t, res.Delivered())
	assert.True(t, res.ViaTemplate)
	assert.Equal(t, []string{"text", "template", "text"}, p.calls)
}

func TestNotify_TemplateFailureShortCircuits(t *testing.T) {
	p := &scriptedPrimary{text: []error{expired}, template: []error{rejected}}
	res := newDispatcher(p, nil).Notify(context.Background(), to, msg)

	assert.Equal(t, core.OutcomeFailed, res.Outcome)
	assert.Equal(t, []string{"text", "template"}, p.calls)

	var nerr *core.NotificationError
	require.ErrorAs(t, res.Err, &nerr)
	assert.Equal(t, core.StageTemplateOpen, nerr.Stage)
}

func TestNotify_RetryFailure(t *testing.T) {
	p := &scriptedPrimary{text: []error{expired, expired}}
	res := newDispatcher(p, nil).Notify(context.Background(), to, msg)

	assert.Equal(t, core.OutcomeFailed, res.Outcome)
	assert.Equal(t, []string{"text", "template", "text"}, p.calls, "the retry happens exactly once")

	var nerr *core.NotificationError
	require.ErrorAs(t, res.Err, &nerr)
	assert.Equal(t, core.StagePostTemplateRetry, nerr.Stage)
}

func TestNotify_UnrelatedErrorFailsImmediately(t *testing.T) {
	for name, err := range map[string]error{
		"rejected":  rejected,
		"transient": &core.ChannelError{Kind: core.KindTransient, Code: 500},
		"plain":     errors.New("connection refused"),
	} {
		t.Run(name, func(t *testing.T) {
			p := &scriptedPrimary{text: []error{err}}
			res := newDispatcher(p, nil).Notify(context.Background(), to, msg)

			assert.Equal(t, core.OutcomeFailed, res.Outcome)
			assert.Equal(t, []string{"text"}, p.calls, "no template and no retry")

			var nerr *core.NotificationError
			require.ErrorAs(t, res.Err, &nerr)
			assert.Equal(t, core.StageDirect, nerr.Stage)
		})
	}
}

func TestNotify_TimeoutIsNotSessionExpired(t *testing.T) {
	p := &scriptedPrimary{block: true}
	d := NewDispatcher(p, nil, 20*time.Millisecond, logger.Nop())

	res := d.Notify(context.Background(), to, msg)
	assert.Equal(t, core.OutcomeFailed, res.Outcome)
	assert.Equal(t, []string{"text"}, p.calls)
	assert.Equal(t, core.KindTransient, core.KindOf(res.Err))
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestNotify_NoPhone(t *testing.T) {
	p := &scriptedPrimary{}
	res := newDispatcher(p, nil).Notify(context.Background(), core.Recipient{Name: "Walk-in"}, msg)

	assert.Equal(t, core.OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, core.ErrNoRecipient)
	assert.Empty(t, p.calls)
}

func TestNotify_SecondaryNeverBlocks(t *testing.T) {
	p := &scriptedPrimary{}
	s := &blockingSecondary{release: make(chan struct{})}
	d := newDispatcher(p, s)

	res := d.Notify(context.Background(), to, core.Message{Text: strings.Repeat("long  text\n", 40)})
	assert.True(t, res.Delivered(), "primary finishes while the secondary is still blocked")

	close(s.release)
	d.Wait()
	require.Len(t, s.texts, 1)
	assert.LessOrEqual(t, utf8.RuneCountInString(s.texts[0]), MaxShortTextLen)
	assert.NotContains(t, s.texts[0], "\n")
}

func TestNotify_SkipSecondaryOnRedelivery(t *testing.T) {
	p := &scriptedPrimary{}
	s := &blockingSecondary{release: make(chan struct{})}
	close(s.release)
	d := newDispatcher(p, s)

	redelivered := msg
	redelivered.SkipSecondary = true
	assert.True(t, d.Notify(context.Background(), to, redelivered).Delivered())
	d.Wait()
	assert.Empty(t, s.texts)

	assert.True(t, d.Notify(context.Background(), to, msg).Delivered())
	d.Wait()
	assert.Len(t, s.texts, 1)
}

func TestCondense(t *testing.T) {
	assert.Equal(t, "a b c", Condense(" a\n b\t\tc ", 160))

	long := strings.Repeat("é", 200)
	out := Condense(long, 160)
	assert.Equal(t, 160, utf8.RuneCountInString(out))
	assert.True(t, strings.HasSuffix(out, "..."))

	assert.Equal(t, "ab", Condense("abcdef", 2))
}

func TestBuildMessage(t *testing.T) {
	created := BuildMessage(models.NotificationMessage{
		Kind:         models.KindOrderCreated,
		OrderNo:      "20250314-007-DL",
		CustomerName: "Asha",
		Items:        []models.NotificationItem{{Name: "Masala Dosa", Quantity: 2, UnitPrice: 125}},
		Subtotal:     250,
		TaxAmount:    13,
		TotalAmount:  263,
	})
	assert.Contains(t, created.Text, "20250314-007-DL is confirmed")
	assert.Contains(t, created.Text, "2 x Masala Dosa @ 125.00 = 250.00")
	assert.Contains(t, created.Text, "Total: 263.00")
	assert.Equal(t, []string{"Asha", "20250314-007-DL"}, created.TemplateParams)

	status := BuildMessage(models.NotificationMessage{
		Kind:      models.KindStatusChanged,
		OrderNo:   "20250314-007-DL",
		OldStatus: "preparing",
		NewStatus: "ready",
	})
	assert.Equal(t, "Hi there, your order 20250314-007-DL is ready.", status.Text)
}
