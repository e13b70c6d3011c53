package settlement

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	kafkax "github.com/ismartsell/go-pickup-orders/internal/kafka"
	"github.com/ismartsell/go-pickup-orders/internal/orders"
	"github.com/ismartsell/go-pickup-orders/internal/redisx"
	"github.com/ismartsell/go-pickup-orders/internal/reservation"
)

// Consumer memproses event penyelesaian pembayaran yang dikirim gateway ke
// topic payments.events. Aman terhadap kiriman ulang: dedup by event_id plus
// klaim reservasi yang memang cuma bisa menang sekali.
type Consumer struct {
	Settlement *Service
	Redis      *redis.Client
}

// HandlePaymentEvent dipasang sebagai handler consumer.
func (c *Consumer) HandlePaymentEvent(ctx context.Context, m kafkago.Message) error {
	// saring murah via header; pesan tanpa header jatuh ke cek envelope
	if ht := kafkax.HeaderValue(m, kafkax.HeaderEventType); ht != "" && ht != orders.EventPaymentCompleted {
		return nil
	}

	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventPaymentCompleted {
		return nil
	} // ignore

	// dedup via Redis (pakai event_id); tandai sukses belakangan supaya
	// redelivery setelah error transient tetap diproses
	dkey := ""
	if c.Redis != nil {
		dkey = fmt.Sprintf(redisx.KeyDedup, "settlement", env.EventID)
		exists, _ := redisx.Exists(ctx, c.Redis, dkey)
		if exists {
			return nil
		}
	}

	p, err := kafkax.UnwrapPayload[orders.PaymentCompletedPayload](env.Payload)
	if err != nil {
		return err
	}

	pay, err := c.Settlement.CompletePayment(ctx, p.OrderID, p.GrossCents)
	switch {
	case err == nil:
		if dkey != "" {
			_ = c.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
		}
		log.WithFields(log.Fields{"order_id": p.OrderID, "payment_id": pay.ID}).Info("payment settled")
		return nil
	case alreadyResolved(err):
		// reservasi keburu expired / sudah settled: final, jangan retry
		if dkey != "" {
			_ = c.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
		}
		log.WithFields(log.Fields{"order_id": p.OrderID}).WithError(err).Warn("payment event dropped")
		return nil
	default:
		return err
	}
}

func alreadyResolved(err error) bool {
	var exp *reservation.ReservationExpiredError
	var nf *reservation.ReservationNotFoundError
	return errors.As(err, &exp) || errors.As(err, &nf)
}
