package handle

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"restaurant-pos/internal/order/app/core"
	"restaurant-pos/internal/order/app/services"
	"restaurant-pos/internal/order/domain/dto"
	"restaurant-pos/internal/order/domain/models"
	"restaurant-pos/internal/xpkg/logger"

	"github.com/go-playground/validator/v10"
)

type OrderHandler struct {
	orderService *services.OrderService
	validate     *validator.Validate
	mylog        logger.Logger
}

func NewOrderHandler(orderService *services.OrderService, validate *validator.Validate, mylog logger.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		validate:     validate,
		mylog:        mylog,
	}
}

// NewValidator reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (oh *OrderHandler) Checkout() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.CheckoutRequest
		if !oh.parse(w, r, &req) {
			return
		}
		oh.mylog.Action("received").Debug("Received checkout", "order_type", req.OrderType, "customer_uid", req.Customer.UID, "number_of_items", len(req.Items))

		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		order, err := oh.orderService.Checkout(ctx, req)
		if err != nil {
			oh.fail(w, "checkout_failed", err)
			return
		}
		jsonResponse(w, http.StatusCreated, dto.NewOrderResponse(order))
	}
}

func (oh *OrderHandler) CreatePOS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.POSOrderRequest
		if !oh.parse(w, r, &req) {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		order, err := oh.orderService.CreatePOSOrder(ctx, req)
		if err != nil {
			oh.fail(w, "pos_order_failed", err)
			return
		}
		jsonResponse(w, http.StatusCreated, dto.NewOrderResponse(order))
	}
}

func (oh *OrderHandler) Get() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := oh.orderService.GetOrder(r.Context(), r.PathValue("id"))
		if err != nil {
			oh.fail(w, "get_order_failed", err)
			return
		}
		jsonResponse(w, http.StatusOK, order)
	}
}

func (oh *OrderHandler) ListByCustomer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orders, err := oh.orderService.ListCustomerOrders(r.Context(), r.PathValue("uid"))
		if err != nil {
			oh.fail(w, "list_orders_failed", err)
			return
		}
		jsonResponse(w, http.StatusOK, orders)
	}
}

func (oh *OrderHandler) Accept() http.HandlerFunc {
	return oh.transition(oh.orderService.Accept)
}

func (oh *OrderHandler) Reject() http.HandlerFunc {
	return oh.transition(oh.orderService.Reject)
}

func (oh *OrderHandler) Advance() http.HandlerFunc {
	return oh.transition(oh.orderService.Advance)
}

func (oh *OrderHandler) transition(fn func(ctx context.Context, id string) (models.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		order, err := fn(ctx, r.PathValue("id"))
		if err != nil {
			oh.fail(w, "transition_failed", err)
			return
		}
		jsonResponse(w, http.StatusOK, order)
	}
}

func (oh *OrderHandler) ReplaceItems() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.ReplaceItemsRequest
		if !oh.parse(w, r, &req) {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), core.WaitTime*time.Second)
		defer cancel()

		order, err := oh.orderService.ReplaceItems(ctx, r.PathValue("id"), req)
		if err != nil {
			oh.fail(w, "edit_failed", err)
			return
		}
		jsonResponse(w, http.StatusOK, order)
	}
}

func (oh *OrderHandler) CheckAddress() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.CheckAddressRequest
		if !oh.parse(w, r, &req) {
			return
		}
		resp, err := oh.orderService.CheckAddress(r.Context(), req)
		if err != nil {
			oh.fail(w, "address_check_failed", err)
			return
		}
		jsonResponse(w, http.StatusOK, resp)
	}
}

func (oh *OrderHandler) GetRegion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		region, err := oh.orderService.GetRegion(r.Context())
		if err != nil {
			oh.fail(w, "get_region_failed", err)
			return
		}
		jsonResponse(w, http.StatusOK, region)
	}
}

func (oh *OrderHandler) UpdateRegion() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.RegionRequest
		if !oh.parse(w, r, &req) {
			return
		}
		region, err := oh.orderService.UpdateRegion(r.Context(), req)
		if err != nil {
			oh.fail(w, "update_region_failed", err)
			return
		}
		jsonResponse(w, http.StatusOK, region)
	}
}

// parse decodes and validates the body, writing a 400 on failure.
func (oh *OrderHandler) parse(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := decode(r, v); err != nil {
		oh.mylog.Action("parse_failed").Error("Failed to parse request", err, "path", r.URL.Path)
		jsonError(w, http.StatusBadRequest, err)
		return false
	}
	if err := validate(r.Context(), oh.validate, v); err != nil {
		oh.mylog.Action("validation_failed").Warn("Request rejected", "path", r.URL.Path, "reason", err.Error())
		jsonError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (oh *OrderHandler) fail(w http.ResponseWriter, action string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError && code != http.StatusServiceUnavailable {
		oh.mylog.Action(action).Error("Request failed", err)
		jsonError(w, code, errInternal)
		return
	}
	oh.mylog.Action(action).Info("Request refused", "code", code, "reason", err.Error())
	jsonError(w, code, err)
}
