package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"

	"wab/src/types"
	"wab/src/utils"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// stripeWebhookRoute receives gateway results over the webhook surface.
// The Stripe event id doubles as the callback id, so a redelivered event
// replays instead of confirming twice.
func stripeWebhookRoute(g *gin.Engine) *gin.RouterGroup {
	apiv1 := apiv1Group(g)
	apiv1.POST("/webhook/payments", func(ctx *gin.Context) {
		payload, err := io.ReadAll(ctx.Request.Body)
		if err != nil {
			log.Printf("Error reading request body: %s\n", err.Error())
			ctx.Status(http.StatusServiceUnavailable)
			return
		}
		whsecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
		event, err := webhook.ConstructEvent(payload, ctx.GetHeader("Stripe-Signature"), whsecret)
		if err != nil {
			log.Printf("Error verifying webhook signature: %s\n", err.Error())
			ctx.Status(http.StatusBadRequest)
			return
		}
		log.Printf("[StripeEvent] %s\n", event.Type)
		switch event.Type {
		case "checkout.session.completed":
			var cs stripe.CheckoutSession
			if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
				log.Printf("[Stripe] Error parsing CheckoutSession: %s\n", err.Error())
				break
			}
			reservationId, ok := reservationIdFromMetadata(cs.Metadata)
			if !ok {
				log.Printf("Could not retrieve reservation id for session %s\n", cs.ID)
				break
			}
			cb := types.PaymentCallback{
				CallbackID:    event.ID,
				ReservationID: reservationId,
				Succeeded:     true,
				PaidAmount:    cs.AmountTotal,
			}
			if err := utils.ApplyPaymentResult(&cb); err != nil {
				log.Printf("Error applying payment result %s: %s\n", event.ID, err.Error())
				ctx.Status(http.StatusInternalServerError)
				return
			}
		case "checkout.session.expired":
			var cs stripe.CheckoutSession
			if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
				log.Printf("[Stripe] Error parsing CheckoutSession: %s\n", err.Error())
				break
			}
			reservationId, ok := reservationIdFromMetadata(cs.Metadata)
			if !ok {
				log.Printf("Could not retrieve reservation id for session %s\n", cs.ID)
				break
			}
			cb := types.PaymentCallback{
				CallbackID:    event.ID,
				ReservationID: reservationId,
				Succeeded:     false,
				Reason:        "checkout session expired",
			}
			if err := utils.ApplyPaymentResult(&cb); err != nil {
				log.Printf("Error applying payment result %s: %s\n", event.ID, err.Error())
				ctx.Status(http.StatusInternalServerError)
				return
			}
		}
		ctx.Status(http.StatusOK)
	})
	return apiv1
}

func reservationIdFromMetadata(metadata map[string]string) (uint, bool) {
	raw, ok := metadata["reservation_id"]
	if !ok {
		return 0, false
	}
	atoi, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return uint(atoi), true
}
