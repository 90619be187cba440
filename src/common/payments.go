package common

import (
	"log"

	awslib "wab/src/lib/aws"
	"wab/src/types"
	"wab/src/utils"

	"github.com/tidwall/gjson"
)

// PaymentCallbacksConsumer drains gateway results delivered over the
// queue. Delivery is at-least-once; ApplyPaymentResult absorbs the
// duplicates through its callback-id idempotency record.
func PaymentCallbacksConsumer() {
	qname := "PaymentCallbacks"
	log.Printf("%s: Listening for messages...", qname)
	c := awslib.NewSQSConsumer(qname, func(body string) {
		if !gjson.Valid(body) {
			log.Printf("[%s]: Received invalid json body. Aborting", qname)
			return
		}
		cb := types.PaymentCallback{
			CallbackID:    gjson.Get(body, "callback_id").String(),
			ReservationID: uint(gjson.Get(body, "reservation_id").Uint()),
			Succeeded:     gjson.Get(body, "succeeded").Bool(),
			Reason:        gjson.Get(body, "reason").String(),
			PaidAmount:    gjson.Get(body, "paid_amount").Int(),
		}
		if cb.CallbackID == "" || cb.ReservationID == 0 {
			log.Printf("[%s]: Message missing callback_id or reservation_id. Aborting", qname)
			return
		}
		if err := utils.ApplyPaymentResult(&cb); err != nil {
			log.Printf("[%s]: Error applying payment result %s: %s\n", qname, cb.CallbackID, err.Error())
		}
	})
	c.Listen()
}

func SQSConsumers() {
	go PaymentCallbacksConsumer()
}
