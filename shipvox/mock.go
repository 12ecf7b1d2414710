package shipvox

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// mockQuoter generates plausible quotes and labels locally. The carrier and
// service matrix and the pricing formula mirror what the real rate service
// returns, so demos and tests exercise the same response shapes.
type mockQuoter struct {
	carriers     []string
	serviceTypes map[string][]string
}

func newMockQuoter() *mockQuoter {
	return &mockQuoter{
		carriers: []string{"FedEx", "UPS", "USPS", "DHL"},
		serviceTypes: map[string][]string{
			"FedEx": {"Ground", "2Day", "Priority Overnight"},
			"UPS":   {"Ground", "3 Day Select", "2nd Day Air", "Next Day Air"},
			"USPS":  {"First Class", "Priority Mail", "Priority Mail Express"},
			"DHL":   {"Express", "Ground", "eCommerce"},
		},
	}
}

func (m *mockQuoter) getRates(ctx context.Context, req *RateRequest) (*RateResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	quotes := m.generateQuotes(req.OriginZip, req.DestinationZip, req.Weight)
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Cost < quotes[j].Cost })

	resp := &RateResponse{
		AllOptions: quotes,
		Request:    *req,
	}
	if len(quotes) > 0 {
		cheapest := quotes[0]
		resp.CheapestOption = &cheapest

		fastest := quotes[0]
		for _, q := range quotes[1:] {
			if q.TransitDays < fastest.TransitDays {
				fastest = q
			}
		}
		resp.FastestOption = &fastest
	}
	return resp, nil
}

func (m *mockQuoter) createLabel(ctx context.Context, req *LabelRequest) (*LabelResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:12]
	return &LabelResponse{
		TrackingNumber:    fmt.Sprintf("%s-%s", strings.ToUpper(req.Carrier), id),
		Carrier:           req.Carrier,
		LabelURL:          fmt.Sprintf("https://shipvox.example/labels/%s.pdf", id),
		FallbackQRCodeURL: fmt.Sprintf("https://shipvox.example/labels/%s.qr.png", id),
		EstimatedDelivery: time.Now().AddDate(0, 0, 3).Format("2006-01-02"),
	}, nil
}

func (m *mockQuoter) generateQuotes(originZip, destinationZip string, weight float64) []Quote {
	distanceFactor := math.Abs(float64(leadingDigit(originZip)-leadingDigit(destinationZip)))/10.0 + 0.5
	baseRate := 5.0 + weight*2.0 + distanceFactor*5.0

	var quotes []Quote
	for _, carrier := range m.carriers {
		for _, service := range m.serviceTypes[carrier] {
			rate, transitDays, ok := priceService(carrier, service, baseRate, distanceFactor, weight)
			if !ok {
				continue
			}

			rate *= 0.95 + rand.Float64()*0.1
			rate = math.Round(rate*100) / 100

			quotes = append(quotes, Quote{
				Carrier:      carrier,
				ServiceName:  service,
				Cost:         rate,
				Currency:     "USD",
				TransitDays:  transitDays,
				DeliveryDate: time.Now().AddDate(0, 0, transitDays).Format("2006-01-02"),
			})
		}
	}
	return quotes
}

// priceService returns (rate, transitDays, offered) for one carrier/service.
func priceService(carrier, service string, baseRate, distanceFactor, weight float64) (float64, int, bool) {
	switch carrier {
	case "FedEx":
		switch service {
		case "Ground":
			return baseRate, int(3 + distanceFactor*2), true
		case "2Day":
			return baseRate * 1.5, 2, true
		default: // Priority Overnight
			return baseRate * 2.2, 1, true
		}
	case "UPS":
		switch service {
		case "Ground":
			return baseRate * 1.1, int(3 + distanceFactor*2), true
		case "3 Day Select":
			return baseRate * 1.3, 3, true
		case "2nd Day Air":
			return baseRate * 1.7, 2, true
		default: // Next Day Air
			return baseRate * 2.3, 1, true
		}
	case "USPS":
		switch service {
		case "First Class":
			// First Class has a weight limit; heavy packages skip it.
			if weight > 13.0 {
				return 0, 0, false
			}
			return baseRate * 0.8, int(3 + distanceFactor*2), true
		case "Priority Mail":
			return baseRate * 0.9, int(2 + distanceFactor), true
		default: // Priority Mail Express
			return baseRate * 1.6, 1, true
		}
	default: // DHL
		switch service {
		case "Express":
			return baseRate * 2.0, 1, true
		case "Ground":
			return baseRate * 1.1, int(4 + distanceFactor*2), true
		default: // eCommerce
			return baseRate * 0.85, int(4 + distanceFactor*3), true
		}
	}
}

func leadingDigit(zip string) int {
	if len(zip) == 0 || zip[0] < '0' || zip[0] > '9' {
		return 0
	}
	return int(zip[0] - '0')
}
