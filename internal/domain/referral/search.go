package referral

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/caresuite/bedflow/internal/domain/patient"
)

// ErrHospitalUnreachable marks a per-hospital search failure. It never
// aborts the aggregate search; the hospital is reported as unreachable and
// contributes zero beds.
var ErrHospitalUnreachable = errors.New("hospital unreachable")

// Criteria are the constraints a remote bed must satisfy.
type Criteria struct {
	Complexity        patient.ComplexityTier `json:"complexity"`
	RequiresIsolation bool                   `json:"requires_isolation"`
	Sex               patient.Sex            `json:"sex"`
}

// RemoteBed is a candidate bed at another hospital.
type RemoteBed struct {
	BedID            uuid.UUID              `json:"bed_id"`
	HospitalID       string                 `json:"hospital_id"`
	HospitalName     string                 `json:"hospital_name"`
	HospitalURL      string                 `json:"hospital_url"`
	Service          string                 `json:"service"`
	Ward             string                 `json:"ward"`
	Room             string                 `json:"room"`
	Complexity       patient.ComplexityTier `json:"complexity"`
	IsolationCapable bool                   `json:"isolation_capable"`
}

// Inventory is one hospital's answer to a network search.
type Inventory struct {
	HospitalID   string      `json:"hospital_id"`
	HospitalName string      `json:"hospital_name"`
	Beds         []RemoteBed `json:"beds"`
}

// HospitalClient talks to one peer hospital. Implementations must honor the
// context deadline on every call.
type HospitalClient interface {
	SearchBeds(ctx context.Context, baseURL string, crit Criteria) (*Inventory, error)
	SubmitReferral(ctx context.Context, baseURL string, req *Request) error
	FetchStatus(ctx context.Context, baseURL string, id uuid.UUID) (*Request, error)
	CancelReferral(ctx context.Context, baseURL string, id uuid.UUID) error
}

// SearchResult aggregates whatever the reachable hospitals returned in time.
type SearchResult struct {
	Beds        []RemoteBed `json:"beds"`
	Searched    int         `json:"searched"`
	Reachable   int         `json:"reachable"`
	Unreachable []string    `json:"unreachable,omitempty"`
}

// Searcher fans a bed search out to every configured peer hospital with a
// per-call timeout. Partial failures degrade to empty results for the failed
// hospital.
type Searcher struct {
	client  HospitalClient
	peers   []string
	timeout time.Duration
	logger  zerolog.Logger
}

func NewSearcher(client HospitalClient, peers []string, timeout time.Duration, logger zerolog.Logger) *Searcher {
	return &Searcher{client: client, peers: peers, timeout: timeout, logger: logger}
}

// Search queries all peers concurrently. Cancelling ctx cancels every
// in-flight call; whatever completed before cancellation is still returned.
func (s *Searcher) Search(ctx context.Context, crit Criteria) SearchResult {
	type answer struct {
		peer string
		inv  *Inventory
		err  error
	}

	results := make(chan answer, len(s.peers))
	var wg sync.WaitGroup
	for _, peer := range s.peers {
		wg.Add(1)
		go func(peer string) {
			defer wg.Done()
			callCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			inv, err := s.client.SearchBeds(callCtx, peer, crit)
			results <- answer{peer: peer, inv: inv, err: err}
		}(peer)
	}
	wg.Wait()
	close(results)

	out := SearchResult{Searched: len(s.peers)}
	for a := range results {
		if a.err != nil {
			s.logger.Warn().Err(a.err).Str("hospital", a.peer).Msg("network search")
			out.Unreachable = append(out.Unreachable, a.peer)
			continue
		}
		out.Reachable++
		for _, b := range a.inv.Beds {
			b.HospitalID = a.inv.HospitalID
			b.HospitalName = a.inv.HospitalName
			b.HospitalURL = a.peer
			out.Beds = append(out.Beds, b)
		}
	}
	sort.Slice(out.Beds, func(i, j int) bool {
		if out.Beds[i].HospitalID != out.Beds[j].HospitalID {
			return out.Beds[i].HospitalID < out.Beds[j].HospitalID
		}
		return out.Beds[i].BedID.String() < out.Beds[j].BedID.String()
	})
	sort.Strings(out.Unreachable)
	return out
}
