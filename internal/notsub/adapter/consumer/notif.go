package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"restaurant-pos/internal/notsub/adapter/sms"
	"restaurant-pos/internal/notsub/adapter/whatsapp"
	"restaurant-pos/internal/notsub/app/core"
	"restaurant-pos/internal/notsub/app/services"
	"restaurant-pos/internal/xpkg/config"
	"restaurant-pos/internal/xpkg/logger"
	"restaurant-pos/internal/xpkg/models"

	brokermessage "restaurant-pos/internal/notsub/adapter/broker_message"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

const consumerName = "notification-subscriber"

type notifier interface {
	Notify(ctx context.Context, to core.Recipient, msg core.Message) core.DeliveryResult
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type decision int

const (
	ack decision = iota
	requeue
	drop
)

type Notification struct {
	cfg           *config.Config
	maxConcurrent int
	mylog         logger.Logger
	mb            core.IRabbitMQ
	dispatcher    *services.Dispatcher
	notifier      notifier
	ctx           context.Context
	cancel        context.CancelFunc
	appCtx        context.Context

	mu   sync.Mutex
	g    *errgroup.Group
	done chan struct{}
}

func NewNotification(
	ctx context.Context,
	cancel context.CancelFunc,
	appCtx context.Context,
	cfg *config.Config,
	maxConcurrent int,
	mylog logger.Logger,
) *Notification {
	return &Notification{
		ctx:           ctx,
		cancel:        cancel,
		appCtx:        appCtx,
		cfg:           cfg,
		maxConcurrent: maxConcurrent,
		mylog:         mylog,
		done:          make(chan struct{}),
	}
}

// Run connects to the broker and starts consuming in the background.
func (n *Notification) Run() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	mylog := n.mylog.Action("run_notifications")

	if err := n.initializeRabbitMQ(); err != nil {
		mylog.Action("mb_connection_failed").Error("Failed to connect to message broker", err)
		return err
	}
	mylog.Action("mb_connected").Info("Successful message broker connection")

	n.initializeDispatcher()

	messageBus, err := n.mb.ConsumeMessage(n.ctx, consumerName)
	if err != nil {
		return fmt.Errorf("failed to consume message from rabbitmq: %w", err)
	}

	n.g = &errgroup.Group{}
	n.g.SetLimit(n.maxConcurrent)

	go n.work(messageBus)
	mylog.WithGroup("details").With("queue", models.NotificationQueue, "max-concurrent", n.maxConcurrent).Info("Consuming notification requests")
	return nil
}

func (n *Notification) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.mylog.Action("graceful_shutdown_started").Info("Shutting down")

	waited := make(chan struct{})
	go func() {
		if n.g != nil {
			<-n.done
			_ = n.g.Wait()
		}
		if n.dispatcher != nil {
			n.dispatcher.Wait()
		}
		close(waited)
	}()

	select {
	case <-waited:
	case <-ctx.Done():
		n.mylog.Action("graceful_shutdown_timeout").Warn("In-flight notifications did not finish in time")
	}

	if n.mb != nil {
		if err := n.mb.Close(); err != nil {
			n.mylog.Action("mb_close_failed").Error("Failed to close message broker", err)
			return fmt.Errorf("mb close: %w", err)
		}
		n.mylog.Action("mb_closed").Info("Message broker closed")
	}

	n.mylog.Action("graceful_shutdown_completed").Info("Successfully shut down")
	return nil
}

func (n *Notification) work(notifCh <-chan amqp.Delivery) {
	defer close(n.done)
	for {
		select {
		case <-n.ctx.Done():
			n.mylog.Action("work_shutdown").Info("Stopping message consumption due to context cancel")
			return

		case msg, ok := <-notifCh:
			if !ok {
				if n.ctx.Err() == nil {
					n.mylog.Action("delivery_channel_closed").Error("Broker closed the delivery channel", core.ErrMBCh)
					n.cancel()
				}
				return
			}
			// Go blocks while maxConcurrent sends are in flight
			n.g.Go(func() error {
				n.settle(msg, n.processMsg(n.appCtx, msg.Body, msg.Redelivered))
				return nil
			})
		}
	}
}

func (n *Notification) settle(msg acknowledger, d decision) {
	var err error
	switch d {
	case ack:
		err = msg.Ack(false)
	case requeue:
		err = msg.Nack(false, true)
	case drop:
		err = msg.Nack(false, false)
	}
	if err != nil {
		n.mylog.Action("settle_failed").Error("Failed to settle message", err, "decision", d)
	}
}

// processMsg sends one notification and decides how to settle the delivery.
// Only a transient failure of the first direct send is requeued, once, so a
// session template is never sent twice.
func (n *Notification) processMsg(ctx context.Context, body []byte, redelivered bool) decision {
	var msg models.NotificationMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		n.mylog.Action("process_msg").Error("Failed to decode notification request", fmt.Errorf("%w: %w", core.ErrMalformedMessage, err))
		return drop
	}

	log := n.mylog.WithGroup("details").With("order_no", msg.OrderNo, "kind", msg.Kind, "new_status", msg.NewStatus)
	log.Action("notification_received").Info("Received notification request")

	if msg.Phone == "" {
		log.Action("notification_skipped").Info("No phone number on order")
		return ack
	}

	out := services.BuildMessage(msg)
	out.SkipSecondary = redelivered
	res := n.notifier.Notify(ctx, core.Recipient{Name: msg.CustomerName, Phone: msg.Phone}, out)
	if res.Delivered() {
		log.Action("notification_delivered").Info("Customer notified", "via_template", res.ViaTemplate)
		return ack
	}

	var nerr *core.NotificationError
	if errors.As(res.Err, &nerr) && nerr.Stage == core.StageDirect && core.KindOf(nerr) == core.KindTransient && !redelivered {
		log.Action("notification_requeued").Warn("Transient failure, requeueing once", "error", nerr.Error())
		return requeue
	}
	log.Action("notification_failed").Error("Customer notification failed", res.Err)
	return ack
}

func (n *Notification) initializeRabbitMQ() error {
	mb, err := brokermessage.New(n.cfg.RMQ, n.maxConcurrent, n.mylog)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	n.mb = mb
	return nil
}

func (n *Notification) initializeDispatcher() {
	timeout := time.Duration(n.cfg.WhatsApp.TimeoutSeconds) * time.Second
	primary := whatsapp.New(n.cfg.WhatsApp, &http.Client{Timeout: timeout})

	var secondary core.SecondaryChannel
	if s := sms.New(n.cfg.SMS, nil); s.Configured() {
		secondary = s
	} else {
		n.mylog.Action("sms_disabled").Info("SMS endpoint or key not configured, secondary channel skipped")
	}

	n.dispatcher = services.NewDispatcher(primary, secondary, timeout, n.mylog)
	n.notifier = n.dispatcher
}
