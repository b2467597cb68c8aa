package core

import (
	"errors"
	"fmt"
	"math"

	"restaurant-pos/internal/order/domain/models"
	xerrors "restaurant-pos/internal/xpkg/errors"
)

var (
	ErrParseCmd = xerrors.ErrParseCmd
	ErrHelp     = xerrors.ErrHelp

	ErrDBConn  = errors.New("db connection failure")
	ErrRMQConn = xerrors.ErrRMQConn
	ErrMBConn  = xerrors.ErrMBConn
	ErrMBCh    = xerrors.ErrMBCh

	ErrOrderNotFound       = errors.New("order not found")
	ErrRegionNotConfigured = errors.New("delivery region is not configured")

	// ErrSequenceUnavailable means no order number could be minted; the
	// order must not be created.
	ErrSequenceUnavailable = errors.New("order sequence unavailable")
	// ErrInvalidAddress is matched by every *AddressError.
	ErrInvalidAddress         = errors.New("invalid delivery address")
	ErrOrderTransitionInvalid = models.ErrOrderTransitionInvalid
)

// AddressError explains why a delivery address was refused. DistanceKm and
// RadiusKm are set when the geofence check ran.
type AddressError struct {
	Reason     string
	DistanceKm float64
	RadiusKm   float64
}

func (e *AddressError) Error() string {
	if e.RadiusKm > 0 && !math.IsInf(e.DistanceKm, 0) {
		return fmt.Sprintf("%s: address is %.2f km away, delivery radius is %.2f km", e.Reason, e.DistanceKm, e.RadiusKm)
	}
	return e.Reason
}

func (e *AddressError) Unwrap() error { return ErrInvalidAddress }
