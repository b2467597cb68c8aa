package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"restaurant-pos/internal/order/adapter/db"
	"restaurant-pos/internal/order/app/core"
	"restaurant-pos/internal/order/domain/dto"
	"restaurant-pos/internal/order/domain/geo"
	"restaurant-pos/internal/order/domain/models"
	"restaurant-pos/internal/xpkg/docstore"
	"restaurant-pos/internal/xpkg/logger"
	xmodels "restaurant-pos/internal/xpkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	centerLat = 12.9716
	centerLng = 77.5946
)

type fakeBroker struct {
	mu   sync.Mutex
	msgs []xmodels.NotificationMessage
	err  error
}

func (f *fakeBroker) Close() error   { return nil }
func (f *fakeBroker) IsAlive() error { return nil }

func (f *fakeBroker) PushMessage(_ context.Context, msg xmodels.NotificationMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeBroker) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for _, m := range f.msgs {
		out = append(out, m.Kind)
	}
	return out
}

type fixture struct {
	svc      *OrderService
	store    *docstore.Memory
	counters *db.CounterRepo
	broker   *fakeBroker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, docstore.Options{})
}

func newFixtureWithStore(t *testing.T, opts docstore.Options) *fixture {
	t.Helper()
	ctx := context.Background()
	store := docstore.NewMemory(opts)
	counters := db.NewCounterRepo(store)
	regions := db.NewRegionRepo(store)
	require.NoError(t, regions.EnsureDefault(ctx, geo.NewRegion(centerLat, centerLng, 8)))

	seq := NewSequenceCounter(counters, time.UTC, logger.Nop())
	seq.now = fixedClock(time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))

	broker := &fakeBroker{}
	svc := NewOrderService(ctx, db.NewOrderRepo(store, logger.Nop()), regions, seq, broker, 0.05, logger.Nop())
	return &fixture{svc: svc, store: store, counters: counters, broker: broker}
}

func (f *fixture) total(t *testing.T) int {
	t.Helper()
	c, err := f.counters.Get(context.Background(), "20250314")
	require.NoError(t, err)
	return c.Total
}

func ptr(v float64) *float64 { return &v }

func deliveryCheckout(lat, lng float64) dto.CheckoutRequest {
	paid := 1.0
	return dto.CheckoutRequest{
		Items:         []dto.Item{{Name: "Masala Dosa", UnitPrice: 125, Quantity: 2}},
		OrderType:     string(models.OrderTypeDelivery),
		PaymentMethod: string(models.PaymentUPI),
		Customer: dto.Customer{
			UID:   "u-1",
			Name:  "Asha",
			Phone: "+919800000001",
			Address: &dto.Address{
				Street: "12 MG Road", City: "Bengaluru", Zip: "560001",
				Lat: ptr(lat), Lng: ptr(lng),
			},
		},
		TotalAmount: &paid,
	}
}

func TestCheckout_DeliveryWithinRegion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.Checkout(ctx, deliveryCheckout(centerLat+0.02, centerLng))
	require.NoError(t, err)

	assert.Equal(t, "20250314-001-DL", order.OrderNo)
	assert.Equal(t, models.StatusPlaced, order.Status)
	assert.Equal(t, models.SourceWeb, order.Source)
	assert.Equal(t, models.PaymentInitiated, order.Payment.Status)
	assert.Equal(t, 250.0, order.Subtotal)
	assert.Equal(t, 13.0, order.TaxAmount, "12.5 rounds half away from zero")
	assert.Equal(t, 263.0, order.TotalAmount, "client total is ignored")
	assert.Equal(t, []string{xmodels.KindOrderCreated}, f.broker.kinds())

	primary, err := f.store.Get(ctx, "orders/"+order.ID)
	require.NoError(t, err)
	customerCopy, err := f.store.Get(ctx, "users/u-1/orders/"+order.ID)
	require.NoError(t, err)
	assert.JSONEq(t, string(primary.Data), string(customerCopy.Data))
}

func TestCheckout_OutsideRegionBurnsNoSequence(t *testing.T) {
	f := newFixture(t)

	// about 9 km north of an 8 km region
	_, err := f.svc.Checkout(context.Background(), deliveryCheckout(centerLat+0.0809, centerLng))
	require.ErrorIs(t, err, core.ErrInvalidAddress)

	var addrErr *core.AddressError
	require.True(t, errors.As(err, &addrErr))
	assert.InDelta(t, 9, addrErr.DistanceKm, 0.05)
	assert.Equal(t, 8.0, addrErr.RadiusKm)
	assert.Contains(t, err.Error(), "delivery radius is 8.00 km")

	assert.Equal(t, 0, f.total(t))
	assert.Empty(t, f.broker.kinds())
}

func TestCheckout_IncompleteAddress(t *testing.T) {
	f := newFixture(t)

	req := deliveryCheckout(centerLat, centerLng)
	req.Customer.Address.Zip = ""
	_, err := f.svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, core.ErrInvalidAddress)

	req = deliveryCheckout(centerLat, centerLng)
	req.Customer.Address.Lat = nil
	_, err = f.svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, core.ErrInvalidAddress)
	assert.Equal(t, "delivery address has no coordinates", err.Error())

	assert.Equal(t, 0, f.total(t))
}

func TestCheckout_TakeawaySkipsGeofence(t *testing.T) {
	f := newFixture(t)

	req := deliveryCheckout(0, 0)
	req.OrderType = string(models.OrderTypeTakeaway)
	req.PaymentMethod = string(models.PaymentCOD)
	order, err := f.svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "20250314-001-TK", order.OrderNo)
	assert.Equal(t, models.PaymentPending, order.Payment.Status)
}

func TestCheckout_InvalidItems(t *testing.T) {
	f := newFixture(t)

	req := deliveryCheckout(centerLat, centerLng)
	req.Items[0].Quantity = 0
	_, err := f.svc.Checkout(context.Background(), req)
	require.ErrorIs(t, err, models.ErrInvalidItems)
	assert.Equal(t, 0, f.total(t))
}

func TestCheckout_PublishFailureKeepsOrder(t *testing.T) {
	f := newFixture(t)
	f.broker.err = errors.New("channel closed")

	order, err := f.svc.Checkout(context.Background(), deliveryCheckout(centerLat, centerLng))
	require.NoError(t, err)

	stored, err := f.svc.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNo, stored.OrderNo)
}

func TestCheckout_SequenceUnavailable(t *testing.T) {
	f := newFixture(t)
	f.svc.sequence = NewSequenceCounter(failingCounter{}, time.UTC, logger.Nop())

	_, err := f.svc.Checkout(context.Background(), deliveryCheckout(centerLat, centerLng))
	require.ErrorIs(t, err, core.ErrSequenceUnavailable)

	list, err := f.store.List(context.Background(), "orders")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreatePOSOrder(t *testing.T) {
	f := newFixture(t)

	order, err := f.svc.CreatePOSOrder(context.Background(), dto.POSOrderRequest{
		Items:         []dto.Item{{Name: "Filter Coffee", UnitPrice: 40, Quantity: 3}},
		OrderType:     string(models.OrderTypeDelivery),
		PaymentMethod: string(models.PaymentCard),
		PaymentStatus: string(models.PaymentPaid),
	})
	require.NoError(t, err)
	assert.Equal(t, "20250314-001-DL", order.OrderNo)
	assert.Equal(t, models.SourcePOS, order.Source)
	assert.Equal(t, models.PaymentPaid, order.Payment.Status)
	assert.Equal(t, 126.0, order.TotalAmount)
	assert.Empty(t, f.broker.kinds(), "anonymous walk-in has no phone")
}

func TestOrderLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.Checkout(ctx, deliveryCheckout(centerLat, centerLng))
	require.NoError(t, err)

	order, err = f.svc.Accept(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPreparing, order.Status)

	_, err = f.svc.Reject(ctx, order.ID)
	var te *models.TransitionError
	require.ErrorAs(t, err, &te)
	assert.False(t, te.Final)

	for _, want := range []models.Status{models.StatusReady, models.StatusDelivered} {
		order, err = f.svc.Advance(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, want, order.Status)
	}

	_, err = f.svc.Advance(ctx, order.ID)
	require.ErrorIs(t, err, core.ErrOrderTransitionInvalid)
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Final)

	_, err = f.svc.ReplaceItems(ctx, order.ID, dto.ReplaceItemsRequest{Items: []dto.Item{{Name: "Idli", UnitPrice: 30, Quantity: 1}}})
	require.ErrorIs(t, err, core.ErrOrderTransitionInvalid)

	list, err := f.svc.ListCustomerOrders(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.StatusDelivered, list[0].Status)

	msgs := f.broker.msgs
	require.Len(t, msgs, 4)
	assert.Equal(t, "ready", msgs[3].OldStatus)
	assert.Equal(t, "delivered", msgs[3].NewStatus)
}

func TestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.Checkout(ctx, deliveryCheckout(centerLat, centerLng))
	require.NoError(t, err)

	order, err = f.svc.Reject(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, order.Status)

	_, err = f.svc.Accept(ctx, order.ID)
	var te *models.TransitionError
	require.ErrorAs(t, err, &te)
	assert.True(t, te.Final)

	_, err = f.svc.Accept(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrOrderNotFound)
}

func TestReplaceItems_RecomputesBill(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.Checkout(ctx, deliveryCheckout(centerLat, centerLng))
	require.NoError(t, err)

	order, err = f.svc.ReplaceItems(ctx, order.ID, dto.ReplaceItemsRequest{Items: []dto.Item{
		{Name: "Masala Dosa", UnitPrice: 125, Quantity: 1},
		{Name: "Filter Coffee", UnitPrice: 40, Quantity: 2},
	}})
	require.NoError(t, err)
	assert.Equal(t, 205.0, order.Subtotal)
	assert.Equal(t, 10.0, order.TaxAmount)
	assert.Equal(t, 215.0, order.TotalAmount)
	assert.Equal(t, "20250314-001-DL", order.OrderNo)

	list, err := f.svc.ListCustomerOrders(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 215.0, list[0].TotalAmount)
}

func TestCheckAddress(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resp, err := f.svc.CheckAddress(ctx, dto.CheckAddressRequest{Lat: ptr(centerLat + 0.01), Lng: ptr(centerLng)})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	require.NotNil(t, resp.DistanceKm)
	assert.InDelta(t, 1.11, *resp.DistanceKm, 0.01)
	assert.Empty(t, resp.Warning)

	resp, err = f.svc.CheckAddress(ctx, dto.CheckAddressRequest{Lat: ptr(centerLat + 0.0809), Lng: ptr(centerLng)})
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Warning, "delivery radius is 8.00 km")

	resp, err = f.svc.CheckAddress(ctx, dto.CheckAddressRequest{Lat: ptr(centerLat)})
	require.NoError(t, err)
	assert.False(t, resp.OK)
	assert.Nil(t, resp.DistanceKm)
}

func TestUpdateRegion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	region, err := f.svc.UpdateRegion(ctx, dto.RegionRequest{CenterLat: ptr(centerLat), CenterLng: ptr(centerLng), RadiusKm: 10})
	require.NoError(t, err)
	assert.Greater(t, region.MaxLat, centerLat)

	// 9 km is now inside
	_, err = f.svc.Checkout(ctx, deliveryCheckout(centerLat+0.0809, centerLng))
	require.NoError(t, err)

	got, err := f.svc.GetRegion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.RadiusKm)
	assert.Equal(t, region.MinLng, got.MinLng)
}

func TestCheckout_RejectsUIDOutsidePathSegment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, uid := range []string{"a/b", "x/orders/y", " u-1"} {
		req := deliveryCheckout(centerLat, centerLng)
		req.Customer.UID = uid
		_, err := f.svc.Checkout(ctx, req)
		assert.ErrorIs(t, err, models.ErrInvalidCustomer, uid)

		_, err = f.svc.CreatePOSOrder(ctx, dto.POSOrderRequest{
			Items:         []dto.Item{{Name: "Vada", UnitPrice: 20, Quantity: 1}},
			OrderType:     string(models.OrderTypeTakeaway),
			PaymentMethod: string(models.PaymentCOD),
			Customer:      &dto.Customer{UID: uid, Name: "Ravi"},
		})
		assert.ErrorIs(t, err, models.ErrInvalidCustomer, uid)
	}

	assert.Equal(t, 0, f.total(t), "no order number is minted for a bad uid")
	junk, err := f.store.List(ctx, "users/x/orders/y/orders")
	require.NoError(t, err)
	assert.Empty(t, junk)
}

func TestAdvance_ConcurrentCallsNeverLoseATransition(t *testing.T) {
	f := newFixtureWithStore(t, docstore.Options{MaxAttempts: 500})
	ctx := context.Background()

	order, err := f.svc.Checkout(ctx, deliveryCheckout(centerLat, centerLng))
	require.NoError(t, err)

	const callers = 10
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Advance(ctx, order.ID)
		}(i)
	}
	wg.Wait()

	advanced := 0
	for _, err := range errs {
		if err == nil {
			advanced++
			continue
		}
		var te *models.TransitionError
		require.ErrorAs(t, err, &te)
		assert.True(t, te.Final)
		assert.Equal(t, models.StatusDelivered, te.From)
	}
	assert.Equal(t, 3, advanced)

	got, err := f.svc.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got.Status)

	list, err := f.svc.ListCustomerOrders(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.StatusDelivered, list[0].Status)

	assert.Equal(t, []string{xmodels.KindOrderCreated, xmodels.KindStatusChanged, xmodels.KindStatusChanged, xmodels.KindStatusChanged}, f.broker.kinds())
}

func TestCheckout_RegionWithoutBoundingBox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lat, lng := centerLat, centerLng
	require.NoError(t, f.store.Set(ctx, core.RegionDocumentPath, geo.Region{CenterLat: &lat, CenterLng: &lng, RadiusKm: 8}))

	_, err := f.svc.Checkout(ctx, deliveryCheckout(centerLat+0.02, centerLng))
	require.NoError(t, err)

	_, err = f.svc.Checkout(ctx, deliveryCheckout(centerLat+0.0809, centerLng))
	var addrErr *core.AddressError
	require.ErrorAs(t, err, &addrErr)
	assert.InDelta(t, 9, addrErr.DistanceKm, 0.05)
}
