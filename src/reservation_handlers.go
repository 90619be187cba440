package main

import (
	"errors"
	"log"
	"net/http"

	"wab/src/db"
	"wab/src/middlewares"
	"wab/src/models"
	"wab/src/types"
	"wab/src/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// respondBusinessError maps a stable business error code to an HTTP
// status. Anything unrecognized is treated as an internal failure.
func respondBusinessError(ctx *gin.Context, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	var be *types.BusinessError
	if !errors.As(err, &be) {
		log.Printf("Unexpected error: %s\n", err.Error())
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "something went wrong"})
		return
	}
	status := http.StatusBadRequest
	switch be {
	case types.ErrCapacityNotFound:
		status = http.StatusNotFound
	case types.ErrInsufficientCapacity, types.ErrDuplicateActiveReservation, types.ErrIllegalStateTransition:
		status = http.StatusConflict
	case types.ErrConcurrencyConflict, types.ErrRequestInFlight:
		status = http.StatusConflict
		ctx.Header("Retry-After", "1")
	case types.ErrIdempotencyKeyReuseConflict:
		status = http.StatusUnprocessableEntity
	case types.ErrMembershipInactive:
		status = http.StatusForbidden
	}
	ctx.JSON(status, gin.H{"error": be.Message, "code": be.Code})
}

func toReservationResponse(r *models.Reservation) types.APIResponseReservation {
	return types.APIResponseReservation{
		ID:           r.ID,
		TrackingCode: r.TrackingCode,
		Status:       r.Status,
		ExpiresAt:    r.ExpiresAt,
		Amount:       r.RequestedAmount,
		Currency:     r.Currency,
	}
}

func reservationHandlers(g *gin.RouterGroup) *gin.RouterGroup {
	g.
		POST("/reservations", middlewares.IdempotencyMiddleware, func(ctx *gin.Context) {
			var body types.CreateReservationRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ownerId := ctx.GetUint("id")
			reservation, err := utils.CreateReservation(ctx, &body, ownerId)
			if err != nil {
				respondBusinessError(ctx, err)
				return
			}
			ctx.JSON(http.StatusCreated, gin.H{"data": toReservationResponse(reservation)})
		}).
		GET("/reservations", func(ctx *gin.Context) {
			ownerId := ctx.GetUint("id")
			var reservations []models.Reservation
			db := db.GetDb()
			err := db.
				Where(&models.Reservation{OwnerID: ownerId}).
				Preload("Tour").
				Preload("Participants").
				Order("created_at DESC").
				Limit(20).
				Find(&reservations).
				Error
			if err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": reservations, "count": len(reservations)})
		}).
		GET("/reservations/:id", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			ownerId := ctx.GetUint("id")
			var reservation models.Reservation
			db := db.GetDb()
			err := db.
				Where(&models.Reservation{ID: params.ID, OwnerID: ownerId}).
				Preload("Tour").
				Preload("Participants").
				Preload("PriceSnapshots").
				First(&reservation).
				Error
			if err != nil {
				err := errors.New("reservation not found")
				ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": reservation})
		}).
		POST("/reservations/:id/checkout", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			ownerId := ctx.GetUint("id")
			reservation, checkoutURL, err := utils.StartPayment(params.ID, ownerId)
			if err != nil {
				respondBusinessError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{
				"data":         toReservationResponse(reservation),
				"checkout_url": checkoutURL,
			})
		}).
		PUT("/reservations/:id/cancel", func(ctx *gin.Context) {
			var params types.SimpleRequestParams
			if err := ctx.ShouldBindUri(&params); err != nil {
				ctx.Status(http.StatusBadRequest)
				return
			}
			var body types.CancelReservationRequestBody
			if err := ctx.ShouldBindJSON(&body); err != nil {
				ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			ownerId := ctx.GetUint("id")
			reservation, err := utils.CancelReservation(params.ID, ownerId, body.Reason)
			if err != nil {
				respondBusinessError(ctx, err)
				return
			}
			ctx.JSON(http.StatusOK, gin.H{"data": toReservationResponse(reservation)})
		})
	return g
}
