package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"restaurant-pos/internal/order/app/core"
	"restaurant-pos/internal/order/domain/dto"
	"restaurant-pos/internal/order/domain/geo"
	"restaurant-pos/internal/order/domain/models"
	"restaurant-pos/internal/xpkg/logger"
	xmodels "restaurant-pos/internal/xpkg/models"
)

type OrderService struct {
	ctx           context.Context
	orderRepo     core.IOrderRepo
	regionRepo    core.IRegionRepo
	sequence      *SequenceCounter
	messageBroker core.IRabbitMQ
	taxRate       float64
	mylog         logger.Logger
}

// NewOrderService wires the order flow. messageBroker may be nil, in which
// case no notifications are requested.
func NewOrderService(
	ctx context.Context,
	orderRepo core.IOrderRepo,
	regionRepo core.IRegionRepo,
	sequence *SequenceCounter,
	messageBroker core.IRabbitMQ,
	taxRate float64,
	mylogger logger.Logger,
) *OrderService {
	return &OrderService{
		ctx:           ctx,
		orderRepo:     orderRepo,
		regionRepo:    regionRepo,
		sequence:      sequence,
		messageBroker: messageBroker,
		taxRate:       taxRate,
		mylog:         mylogger,
	}
}

// Checkout places a storefront order. Delivery addresses are checked against
// the region before an order number is minted.
func (os *OrderService) Checkout(ctx context.Context, req dto.CheckoutRequest) (models.Order, error) {
	mylog := os.mylog.Action("checkout")

	orderType := models.OrderType(req.OrderType)
	items := dto.ToItems(req.Items)
	if err := models.ValidateItems(items); err != nil {
		return models.Order{}, err
	}
	customer := req.Customer.ToModel()
	if err := models.ValidateUID(customer.UID); err != nil {
		return models.Order{}, err
	}

	if orderType == models.OrderTypeDelivery {
		if err := os.checkDeliveryAddress(ctx, customer.Address); err != nil {
			mylog.Warn("Delivery address refused", "reason", err.Error(), "customer_uid", customer.UID)
			return models.Order{}, err
		}
	}

	source := models.SourceWeb
	if req.Source != "" {
		source = models.Source(req.Source)
	}
	method := models.PaymentMethod(req.PaymentMethod)
	status := models.PaymentInitiated
	if method == models.PaymentCOD {
		status = models.PaymentPending
	}
	if req.TotalAmount != nil {
		mylog.Debug("Ignoring client total", "client_total", *req.TotalAmount)
	}

	return os.place(ctx, mylog, models.Order{
		Items:     items,
		OrderType: orderType,
		Source:    source,
		Payment:   models.Payment{Method: method, Status: status},
		Customer:  customer,
	})
}

// CreatePOSOrder places an order from a billing terminal. The cashier has the
// customer in front of them, so no geofence check is made.
func (os *OrderService) CreatePOSOrder(ctx context.Context, req dto.POSOrderRequest) (models.Order, error) {
	mylog := os.mylog.Action("pos_order")

	items := dto.ToItems(req.Items)
	if err := models.ValidateItems(items); err != nil {
		return models.Order{}, err
	}

	status := models.PaymentPending
	if req.PaymentStatus != "" {
		status = models.PaymentStatus(req.PaymentStatus)
	}
	order := models.Order{
		Items:     items,
		OrderType: models.OrderType(req.OrderType),
		Source:    models.SourcePOS,
		Payment:   models.Payment{Method: models.PaymentMethod(req.PaymentMethod), Status: status},
	}
	if req.Customer != nil {
		order.Customer = req.Customer.ToModel()
		if err := models.ValidateUID(order.Customer.UID); err != nil {
			return models.Order{}, err
		}
	}
	return os.place(ctx, mylog, order)
}

func (os *OrderService) place(ctx context.Context, mylog logger.Logger, order models.Order) (models.Order, error) {
	orderNo, err := os.sequence.Next(ctx, order.OrderType)
	if err != nil {
		return models.Order{}, err
	}
	order.OrderNo = orderNo
	order.Status = models.StatusPlaced
	order.ApplyBill(models.ComputeBill(order.Items, os.taxRate))

	newOrder, err := os.orderRepo.Create(ctx, order)
	if err != nil {
		mylog.Error("Failed to save order record", err, "order_no", orderNo)
		return models.Order{}, fmt.Errorf("cannot save order: %w", err)
	}
	mylog.Info("Order created successfully", "order_id", newOrder.ID, "order_no", newOrder.OrderNo, "total", newOrder.TotalAmount)

	os.notify(newOrder, xmodels.KindOrderCreated, "")
	return newOrder, nil
}

func (os *OrderService) checkDeliveryAddress(ctx context.Context, addr *models.Address) error {
	if !addr.Complete() {
		return &core.AddressError{Reason: "delivery address must include street, city and zip", DistanceKm: math.Inf(1)}
	}
	region, err := os.regionRepo.Get(ctx)
	if err != nil {
		if errors.Is(err, core.ErrRegionNotConfigured) {
			return &core.AddressError{Reason: "delivery is not available", DistanceKm: math.Inf(1)}
		}
		return fmt.Errorf("cannot read delivery region: %w", err)
	}
	p := geo.Point{Lat: addr.Lat, Lng: addr.Lng}
	if region.Bounded() && p.Lat != nil && p.Lng != nil && !region.CoarseContains(p) {
		d := geo.Haversine(*p.Lat, *p.Lng, *region.CenterLat, *region.CenterLng)
		return &core.AddressError{Reason: "delivery address is outside the delivery region", DistanceKm: d, RadiusKm: region.RadiusKm}
	}
	res := geo.IsWithinRegion(p, region)
	if res.OK {
		return nil
	}
	if math.IsInf(res.DistanceKm, 1) {
		return &core.AddressError{Reason: "delivery address has no coordinates", DistanceKm: res.DistanceKm, RadiusKm: region.RadiusKm}
	}
	return &core.AddressError{Reason: "delivery address is outside the delivery region", DistanceKm: res.DistanceKm, RadiusKm: region.RadiusKm}
}

func (os *OrderService) GetOrder(ctx context.Context, id string) (models.Order, error) {
	return os.orderRepo.Get(ctx, id)
}

func (os *OrderService) ListCustomerOrders(ctx context.Context, uid string) ([]models.Order, error) {
	return os.orderRepo.ListByCustomer(ctx, uid)
}

func (os *OrderService) Accept(ctx context.Context, id string) (models.Order, error) {
	return os.transition(ctx, id, models.ActionAccept, models.Accept)
}

func (os *OrderService) Reject(ctx context.Context, id string) (models.Order, error) {
	return os.transition(ctx, id, models.ActionReject, models.Reject)
}

func (os *OrderService) Advance(ctx context.Context, id string) (models.Order, error) {
	return os.transition(ctx, id, models.ActionAdvance, models.Advance)
}

func (os *OrderService) transition(ctx context.Context, id, action string, next func(models.Status) (models.Status, error)) (models.Order, error) {
	mylog := os.mylog.Action("order_" + action)

	var from models.Status
	order, err := os.orderRepo.Mutate(ctx, id, func(o *models.Order) error {
		from = o.Status
		to, err := next(o.Status)
		if err != nil {
			return err
		}
		o.Status = to
		return nil
	})
	if err != nil {
		if errors.Is(err, core.ErrOrderTransitionInvalid) {
			mylog.Warn("Transition refused", "order_id", id, "reason", err.Error())
		}
		return models.Order{}, err
	}
	mylog.Info("Order status changed", "order_id", id, "order_no", order.OrderNo, "old_status", from, "new_status", order.Status)

	os.notify(order, xmodels.KindStatusChanged, from)
	return order, nil
}

// ReplaceItems swaps the bill of a live order and recomputes the totals with
// the configured tax rate.
func (os *OrderService) ReplaceItems(ctx context.Context, id string, req dto.ReplaceItemsRequest) (models.Order, error) {
	items := dto.ToItems(req.Items)
	if err := models.ValidateItems(items); err != nil {
		return models.Order{}, err
	}
	bill := models.ComputeBill(items, os.taxRate)

	order, err := os.orderRepo.Mutate(ctx, id, func(o *models.Order) error {
		if err := models.CanEdit(o.Status); err != nil {
			return err
		}
		o.Items = items
		o.ApplyBill(bill)
		return nil
	})
	if err != nil {
		return models.Order{}, err
	}
	os.mylog.Action("order_edit").Info("Order items replaced", "order_id", id, "items", len(items), "total", order.TotalAmount)
	return order, nil
}

// CheckAddress is the interactive check shown while the customer types an
// address. It only warns; Checkout makes the binding decision.
func (os *OrderService) CheckAddress(ctx context.Context, req dto.CheckAddressRequest) (dto.CheckAddressResponse, error) {
	region, err := os.regionRepo.Get(ctx)
	if err != nil {
		return dto.CheckAddressResponse{}, err
	}
	res := geo.IsWithinRegion(geo.Point{Lat: req.Lat, Lng: req.Lng}, region)

	resp := dto.CheckAddressResponse{OK: res.OK, RadiusKm: region.RadiusKm}
	if !math.IsInf(res.DistanceKm, 0) {
		d := math.Round(res.DistanceKm*100) / 100
		resp.DistanceKm = &d
	}
	if !res.OK {
		var e *core.AddressError
		if resp.DistanceKm != nil {
			e = &core.AddressError{Reason: "outside the delivery region", DistanceKm: res.DistanceKm, RadiusKm: region.RadiusKm}
		} else {
			e = &core.AddressError{Reason: "location could not be measured", DistanceKm: res.DistanceKm}
		}
		resp.Warning = e.Error()
	}
	return resp, nil
}

func (os *OrderService) GetRegion(ctx context.Context) (geo.Region, error) {
	return os.regionRepo.Get(ctx)
}

func (os *OrderService) UpdateRegion(ctx context.Context, req dto.RegionRequest) (geo.Region, error) {
	region, err := os.regionRepo.Save(ctx, geo.Region{
		CenterLat: req.CenterLat,
		CenterLng: req.CenterLng,
		RadiusKm:  req.RadiusKm,
	})
	if err != nil {
		return geo.Region{}, err
	}
	os.mylog.Action("region_updated").Info("Delivery region updated", "center_lat", *region.CenterLat, "center_lng", *region.CenterLng, "radius_km", region.RadiusKm)
	return region, nil
}

// notify hands the event to the broker. A failure is logged and dropped:
// the order is already persisted and must stand.
func (os *OrderService) notify(order models.Order, kind string, from models.Status) {
	if os.messageBroker == nil {
		return
	}
	if order.Customer.Phone == "" {
		os.mylog.Action("notification_skipped").Debug("Order has no phone number", "order_id", order.ID)
		return
	}

	ctx, cancel := context.WithTimeout(os.ctx, core.PublishTimeout*time.Second)
	defer cancel()

	msg := notificationFor(order, kind, from)
	if err := os.messageBroker.PushMessage(ctx, msg); err != nil {
		os.mylog.Action("notification_publish_failed").Error("Failed to publish notification request", err, "order_id", order.ID, "kind", kind)
		return
	}
	os.mylog.Action("notification_published").Debug("Notification request published", "order_id", order.ID, "kind", kind)
}

func notificationFor(order models.Order, kind string, from models.Status) xmodels.NotificationMessage {
	items := make([]xmodels.NotificationItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, xmodels.NotificationItem{Name: it.Name, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return xmodels.NotificationMessage{
		Kind:         kind,
		OrderID:      order.ID,
		OrderNo:      order.OrderNo,
		OrderType:    string(order.OrderType),
		CustomerName: order.Customer.Name,
		Phone:        order.Customer.Phone,
		Items:        items,
		Subtotal:     order.Subtotal,
		TaxAmount:    order.TaxAmount,
		TotalAmount:  order.TotalAmount,
		OldStatus:    string(from),
		NewStatus:    string(order.Status),
		Timestamp:    order.UpdatedAt,
	}
}
