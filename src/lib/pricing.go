package lib

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"wab/src/types"

	"github.com/go-resty/resty/v2"
)

// PricingResolver freezes the amount a participant of the given type pays
// for a tour. It is consumed exactly once, at reservation creation; the
// resulting snapshot is never recalculated afterwards.
type PricingResolver interface {
	ResolvePrice(ctx context.Context, tourId uint, participantType types.ParticipantType, memberCapabilities []string, memberFeatures []string) (*types.PriceQuote, error)
}

type HTTPPricingResolver struct {
	client *resty.Client
}

func (p *HTTPPricingResolver) ResolvePrice(ctx context.Context, tourId uint, participantType types.ParticipantType, memberCapabilities []string, memberFeatures []string) (*types.PriceQuote, error) {
	cacheKey := fmt.Sprintf("tour::%d:price:%s", tourId, participantType)
	rd := GetRedisClient()
	if rd != nil {
		if cached, err := rd.Get(ctx, cacheKey).Result(); err == nil {
			var quote types.PriceQuote
			if err := json.Unmarshal([]byte(cached), &quote); err == nil {
				return &quote, nil
			}
		}
	}

	var quote types.PriceQuote
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"tour":             tourId,
			"participant_type": participantType,
			"capabilities":     memberCapabilities,
			"features":         memberFeatures,
		}).
		SetResult(&quote).
		Post("/prices/resolve")
	if err != nil {
		log.Printf("Error resolving price for tour %d: %s\n", tourId, err.Error())
		return nil, err
	}
	if resp.IsError() {
		err := fmt.Errorf("pricing resolver returned status %d", resp.StatusCode())
		log.Printf("Error resolving price for tour %d: %s\n", tourId, err.Error())
		return nil, err
	}
	if rd != nil {
		if raw, err := json.Marshal(&quote); err == nil {
			rd.SetEx(ctx, cacheKey, string(raw), 5*time.Minute)
		}
	}
	return &quote, nil
}

var pricingResolver PricingResolver

func GetPricingResolver() PricingResolver {
	if pricingResolver != nil {
		return pricingResolver
	}
	client := resty.New().
		SetBaseURL(os.Getenv("PRICING_API_URL")).
		SetTimeout(5 * time.Second)
	pricingResolver = &HTTPPricingResolver{client: client}
	return pricingResolver
}

// NewPricingResolver Replace the resolver, used by tests to inject a stub.
func NewPricingResolver(r PricingResolver) {
	pricingResolver = r
}
