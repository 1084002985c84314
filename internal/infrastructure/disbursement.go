package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"Poolfund/config"
	"Poolfund/internal/domain/distribution"
	appErrors "Poolfund/internal/errors"
	"Poolfund/internal/logger"
)

const disbursementService = "disbursement"

// HTTPDisburser posts payout instructions to a payment provider. The payout id
// travels in the Idempotency-Key header so the provider can drop duplicates.
type HTTPDisburser struct {
	URL    string
	Client *http.Client
}

var _ distribution.Disburser = (*HTTPDisburser)(nil)

func NewDisburser(cfg *config.Config) distribution.Disburser {
	if cfg.Payout.DisbursementURL == "" {
		return LogDisburser{}
	}
	timeout := cfg.Payout.Timeout
	if timeout <= 0 {
		timeout = distribution.DefaultPayoutTimeout
	}
	return &HTTPDisburser{
		URL:    cfg.Payout.DisbursementURL,
		Client: &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDisburser) Disburse(ctx context.Context, in distribution.PayoutInstruction) (*distribution.Disbursement, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return nil, appErrors.NewExternalServiceError(disbursementService, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(body))
	if err != nil {
		return nil, appErrors.NewExternalServiceError(disbursementService, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", in.IdempotencyKey)

	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, appErrors.NewExternalServiceError(disbursementService, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, appErrors.NewExternalServiceError(disbursementService, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, appErrors.NewExternalServiceError(disbursementService,
			fmt.Errorf("provider responded %d: %s", resp.StatusCode, bytes.TrimSpace(payload)))
	}

	var out distribution.Disbursement
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &out); err != nil {
			return nil, appErrors.NewExternalServiceError(disbursementService, err)
		}
	}
	return &out, nil
}

// LogDisburser records the instruction and reports success. Used when no
// provider is configured.
type LogDisburser struct{}

func (LogDisburser) Disburse(_ context.Context, in distribution.PayoutInstruction) (*distribution.Disbursement, error) {
	logger.Info().
		Str("payout_id", in.PayoutId.String()).
		Str("distribution_id", in.DistributionId.String()).
		Str("user_id", in.UserId.String()).
		Str("amount", in.Amount.StringFixed(2)).
		Str("type", string(in.Type)).
		Msg("payout disbursed")
	return &distribution.Disbursement{Reference: fmt.Sprintf("log-%s-%d", in.IdempotencyKey, time.Now().Unix())}, nil
}
