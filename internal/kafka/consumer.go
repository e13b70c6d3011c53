package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// Handler return nil hanya jika pesan selesai diproses dan offset boleh
// di-commit; error membuat pesan dikirim ulang broker.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r       *kafka.Reader
	workers int
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		CommitInterval: 0, // commit manual per pesan
	})
	return &Consumer{r: r, workers: workers}
}

// Start memblok sampai ctx selesai atau reader error. Pesan dibagikan ke
// worker pool; tiap worker commit offset-nya sendiri setelah handler sukses.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	jobs := make(chan kafka.Message, 4*c.workers)
	slow := make(chan struct{}, 1)

	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				if err := h(ctx, m); err != nil {
					log.WithFields(log.Fields{
						"topic":     m.Topic,
						"partition": m.Partition,
						"offset":    m.Offset,
					}).WithError(err).Error("handle message")
					// minta dispatcher menahan laju; pesan akan di-redeliver
					select {
					case slow <- struct{}{}:
					default:
					}
					continue
				}
				if err := c.r.CommitMessages(ctx, m); err != nil {
					log.WithError(err).Error("commit offset")
				}
			}
		}()
	}

	var err error
	for {
		var m kafka.Message
		// FetchMessage, bukan ReadMessage: offset tidak boleh ke-commit
		// sebelum handler sukses, supaya pesan gagal di-redeliver
		m, err = c.r.FetchMessage(ctx)
		if err != nil {
			break
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if err != nil {
			break
		}
		select {
		case <-slow:
			time.Sleep(200 * time.Millisecond) // backoff ringan
		default:
		}
	}

	close(jobs)
	wg.Wait() // commit in-flight dulu, baru tutup reader
	cerr := c.r.Close()
	if ctx.Err() != nil {
		return nil // shutdown normal
	}
	if err != nil {
		return err
	}
	return cerr
}
