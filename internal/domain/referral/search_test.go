package referral

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caresuite/bedflow/internal/domain/patient"
)

type stubClient struct {
	inventories map[string]*Inventory
	down        map[string]bool
	submitted   []*Request
	statuses    map[uuid.UUID]*Request
	cancelled   []uuid.UUID
}

func newStubClient() *stubClient {
	return &stubClient{
		inventories: make(map[string]*Inventory),
		down:        make(map[string]bool),
		statuses:    make(map[uuid.UUID]*Request),
	}
}

func (c *stubClient) SearchBeds(_ context.Context, baseURL string, _ Criteria) (*Inventory, error) {
	if c.down[baseURL] {
		return nil, fmt.Errorf("dial %s: %w", baseURL, ErrHospitalUnreachable)
	}
	inv, ok := c.inventories[baseURL]
	if !ok {
		return &Inventory{HospitalID: baseURL}, nil
	}
	return inv, nil
}

func (c *stubClient) SubmitReferral(_ context.Context, baseURL string, req *Request) error {
	if c.down[baseURL] {
		return fmt.Errorf("dial %s: %w", baseURL, ErrHospitalUnreachable)
	}
	c.submitted = append(c.submitted, req)
	return nil
}

func (c *stubClient) FetchStatus(_ context.Context, baseURL string, id uuid.UUID) (*Request, error) {
	if c.down[baseURL] {
		return nil, fmt.Errorf("dial %s: %w", baseURL, ErrHospitalUnreachable)
	}
	req, ok := c.statuses[id]
	if !ok {
		return nil, ErrNotFound
	}
	return req, nil
}

func (c *stubClient) CancelReferral(_ context.Context, baseURL string, id uuid.UUID) error {
	if c.down[baseURL] {
		return fmt.Errorf("dial %s: %w", baseURL, ErrHospitalUnreachable)
	}
	c.cancelled = append(c.cancelled, id)
	return nil
}

func TestSearcher_AggregatesReachableHospitals(t *testing.T) {
	client := newStubClient()
	client.inventories["http://hosp-b"] = &Inventory{
		HospitalID:   "hosp-b",
		HospitalName: "Hospital B",
		Beds: []RemoteBed{
			{BedID: uuid.New(), Service: "icu", Room: "201", Complexity: patient.ComplexityCritical},
			{BedID: uuid.New(), Service: "icu", Room: "202", Complexity: patient.ComplexityCritical},
		},
	}
	client.inventories["http://hosp-c"] = &Inventory{
		HospitalID:   "hosp-c",
		HospitalName: "Hospital C",
		Beds: []RemoteBed{
			{BedID: uuid.New(), Service: "icu", Room: "301", Complexity: patient.ComplexityCritical},
		},
	}
	client.down["http://hosp-d"] = true

	s := NewSearcher(client, []string{"http://hosp-b", "http://hosp-c", "http://hosp-d"}, time.Second, zerolog.Nop())
	result := s.Search(context.Background(), Criteria{Complexity: patient.ComplexityCritical})

	if result.Searched != 3 {
		t.Errorf("searched = %d, want 3", result.Searched)
	}
	if result.Reachable != 2 {
		t.Errorf("reachable = %d, want 2", result.Reachable)
	}
	if len(result.Unreachable) != 1 || result.Unreachable[0] != "http://hosp-d" {
		t.Errorf("unreachable = %v, want the one down hospital", result.Unreachable)
	}
	if len(result.Beds) != 3 {
		t.Fatalf("beds = %d, want 3 from the two reachable hospitals", len(result.Beds))
	}
	for _, b := range result.Beds {
		if b.HospitalID == "" || b.HospitalURL == "" {
			t.Errorf("bed %s missing hospital attribution", b.BedID)
		}
	}
}

func TestSearcher_AllUnreachableReturnsEmptyNotError(t *testing.T) {
	client := newStubClient()
	client.down["http://hosp-b"] = true
	client.down["http://hosp-c"] = true

	s := NewSearcher(client, []string{"http://hosp-b", "http://hosp-c"}, time.Second, zerolog.Nop())
	result := s.Search(context.Background(), Criteria{Complexity: patient.ComplexityLow})

	if len(result.Beds) != 0 {
		t.Errorf("beds = %d, want 0", len(result.Beds))
	}
	if result.Reachable != 0 || len(result.Unreachable) != 2 {
		t.Errorf("reachable = %d, unreachable = %v", result.Reachable, result.Unreachable)
	}
}

func TestSearcher_NoPeersConfigured(t *testing.T) {
	s := NewSearcher(newStubClient(), nil, time.Second, zerolog.Nop())
	result := s.Search(context.Background(), Criteria{})
	if result.Searched != 0 || len(result.Beds) != 0 {
		t.Errorf("empty network should produce an empty result, got %+v", result)
	}
}
