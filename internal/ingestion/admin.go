package ingestion

import (
	"context"
	"fmt"
	"time"
)

// AdminService feeds manually injected actions into the same request
// channel the NATS subscriber uses. It exists for admin operations and
// testing, not throughput; injected requests carry no broker ack, so a
// request lost to a crash before persist is simply gone.
type AdminService struct {
	requestChan chan<- RawRequest
}

func NewAdminService(requestChan chan<- RawRequest) *AdminService {
	return &AdminService{requestChan: requestChan}
}

// Inject validates a JSON action payload and queues it for execution.
// The payload format matches what NATS producers publish.
func (s *AdminService) Inject(ctx context.Context, kind string, payload []byte) (string, error) {
	switch kind {
	case KindDeposit, KindWithdrawal, KindSwap, KindOrder, KindMarketAdmin:
	default:
		return "", fmt.Errorf("unknown action kind: %s", kind)
	}

	raw := RawRequest{
		Subject:   fmt.Sprintf("perp.actions.%s.admin", kind),
		Data:      payload,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}

	// Fail fast on malformed payloads instead of letting the loop
	// silently drop them.
	parsed, err := ParseRawRequest(raw)
	if err != nil {
		return "", err
	}

	select {
	case s.requestChan <- raw:
		return parsed.ActionID.String(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
