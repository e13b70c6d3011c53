package settlement

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Gateway mendaftarkan intent pembayaran di provider eksternal. Detail
// protokol provider bukan urusan core; cukup ref untuk rekonsiliasi.
type Gateway interface {
	CreateIntent(ctx context.Context, orderID string, amountCents int64) (providerRef string, err error)
}

type RestyGateway struct {
	c *resty.Client
}

var _ Gateway = (*RestyGateway)(nil)

func NewRestyGateway(baseURL, apiKey string) *RestyGateway {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second).
		SetHeader("Authorization", "Bearer "+apiKey)
	return &RestyGateway{c: c}
}

type intentReq struct {
	OrderID     string `json:"order_id"`
	AmountCents int64  `json:"amount_cents"`
}

type intentResp struct {
	Ref string `json:"ref"`
}

func (g *RestyGateway) CreateIntent(ctx context.Context, orderID string, amountCents int64) (string, error) {
	var out intentResp
	resp, err := g.c.R().
		SetContext(ctx).
		SetBody(intentReq{OrderID: orderID, AmountCents: amountCents}).
		SetResult(&out).
		Post("/v1/intents")
	if err != nil {
		return "", errors.Wrap(err, "call payment provider")
	}
	if resp.IsError() {
		return "", errors.Errorf("payment provider returned status %d", resp.StatusCode())
	}
	return out.Ref, nil
}

// StubGateway untuk dev/test: ref lokal, tanpa network.
type StubGateway struct{}

var _ Gateway = StubGateway{}

func (StubGateway) CreateIntent(ctx context.Context, orderID string, _ int64) (string, error) {
	return "stub-" + orderID, nil
}
