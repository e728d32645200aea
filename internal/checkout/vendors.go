package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// HTTP adapters for the external processor and carrier. Both vendors are
// opaque: request shapes here are the minimal contract the orchestrator
// relies on, and decline reasons pass through untouched.

type HTTPProcessor struct {
	BaseURL string
	AuthKey string
	Client  *http.Client
}

func EnvProcessor() *HTTPProcessor {
	return &HTTPProcessor{
		BaseURL: os.Getenv("PAYMENT_API_URL"),
		AuthKey: os.Getenv("PAYMENT_AUTH_KEY"),
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *HTTPProcessor) CreateIntent(ctx context.Context, amountCents int, buyerID, sellerID string) (Intent, error) {
	body := map[string]any{
		"amount_cents": amountCents,
		"buyer_id":     buyerID,
		"seller_id":    sellerID,
	}
	var out struct {
		IntentID     string `json:"intent_id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := p.post(ctx, "/v1/intents", body, &out); err != nil {
		return Intent{}, err
	}
	return Intent{IntentID: out.IntentID, ClientSecret: out.ClientSecret}, nil
}

func (p *HTTPProcessor) ConfirmResult(ctx context.Context, intentID string) (ConfirmResult, error) {
	var out struct {
		PaymentRef string `json:"payment_ref"`
		Status     string `json:"status"`
		Reason     string `json:"reason"`
	}
	if err := p.post(ctx, "/v1/intents/"+intentID+"/result", nil, &out); err != nil {
		return ConfirmResult{}, err
	}
	return ConfirmResult{
		PaymentRef: out.PaymentRef,
		Succeeded:  out.Status == "succeeded",
		Reason:     out.Reason,
	}, nil
}

func (p *HTTPProcessor) post(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.AuthKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("processor: http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type HTTPShipping struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func EnvShipping() *HTTPShipping {
	return &HTTPShipping{
		BaseURL: os.Getenv("SHIPPING_API_URL"),
		APIKey:  os.Getenv("SHIPPING_API_KEY"),
		Client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *HTTPShipping) Rates(ctx context.Context, from, to Address, parcel Parcel) ([]Rate, error) {
	body := map[string]any{"from": from, "to": to, "parcel": parcel}
	var out struct {
		Rates []Rate `json:"rates"`
	}
	if err := s.post(ctx, "/v1/rates", body, &out); err != nil {
		return nil, err
	}
	return out.Rates, nil
}

func (s *HTTPShipping) BuyLabel(ctx context.Context, rateID string) (Label, error) {
	var out Label
	if err := s.post(ctx, "/v1/labels", map[string]string{"rate_id": rateID}, &out); err != nil {
		return Label{}, err
	}
	return out, nil
}

func (s *HTTPShipping) post(ctx context.Context, path string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("shipping: http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
