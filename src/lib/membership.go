package lib

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

// MembershipService answers whether an owner currently holds an active
// membership. Member-type reservations are gated on it at creation.
type MembershipService interface {
	GetOwnerActiveMembership(ctx context.Context, ownerId uint) (bool, error)
}

type HTTPMembershipService struct {
	client *resty.Client
}

func (m *HTTPMembershipService) GetOwnerActiveMembership(ctx context.Context, ownerId uint) (bool, error) {
	var result struct {
		Active bool `json:"active"`
	}
	resp, err := m.client.R().
		SetContext(ctx).
		SetResult(&result).
		Get(fmt.Sprintf("/members/%d/membership", ownerId))
	if err != nil {
		log.Printf("Error looking up membership for owner %d: %s\n", ownerId, err.Error())
		return false, err
	}
	if resp.IsError() {
		err := fmt.Errorf("membership lookup returned status %d", resp.StatusCode())
		log.Printf("Error looking up membership for owner %d: %s\n", ownerId, err.Error())
		return false, err
	}
	return result.Active, nil
}

var membershipService MembershipService

func GetMembershipService() MembershipService {
	if membershipService != nil {
		return membershipService
	}
	client := resty.New().
		SetBaseURL(os.Getenv("MEMBERSHIP_API_URL")).
		SetTimeout(5 * time.Second)
	membershipService = &HTTPMembershipService{client: client}
	return membershipService
}

// NewMembershipService Replace the service, used by tests to inject a stub.
func NewMembershipService(s MembershipService) {
	membershipService = s
}
