package referral

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// HTTPHospitalClient reaches peer hospitals over their public network
// endpoints.
type HTTPHospitalClient struct {
	http *http.Client
}

func NewHTTPHospitalClient(client *http.Client) *HTTPHospitalClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPHospitalClient{http: client}
}

func (c *HTTPHospitalClient) SearchBeds(ctx context.Context, baseURL string, crit Criteria) (*Inventory, error) {
	q := url.Values{}
	q.Set("complexity", string(crit.Complexity))
	q.Set("sex", string(crit.Sex))
	if crit.RequiresIsolation {
		q.Set("isolation", "true")
	}
	var inv Inventory
	if err := c.do(ctx, http.MethodGet, baseURL+"/v1/network/beds?"+q.Encode(), nil, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (c *HTTPHospitalClient) SubmitReferral(ctx context.Context, baseURL string, req *Request) error {
	return c.do(ctx, http.MethodPost, baseURL+"/v1/network/referrals", req, nil)
}

func (c *HTTPHospitalClient) FetchStatus(ctx context.Context, baseURL string, id uuid.UUID) (*Request, error) {
	var out Request
	if err := c.do(ctx, http.MethodGet, baseURL+"/v1/network/referrals/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPHospitalClient) CancelReferral(ctx context.Context, baseURL string, id uuid.UUID) error {
	return c.do(ctx, http.MethodPost, baseURL+"/v1/network/referrals/"+id.String()+"/cancel", nil, nil)
}

func (c *HTTPHospitalClient) do(ctx context.Context, method, rawURL string, body, out interface{}) error {
	var payload *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = bytes.NewReader(buf)
	} else {
		payload = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, payload)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, rawURL, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", method, rawURL, ErrHospitalUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%s %s: status %d: %w", method, rawURL, resp.StatusCode, ErrHospitalUnreachable)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d", method, rawURL, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response from %s: %w", rawURL, err)
		}
	}
	return nil
}
