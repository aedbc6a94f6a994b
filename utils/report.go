package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pneumoscan-labs/pneumoscan-go-sdk/models"
)

type ReportClient struct {
	BaseURL string
	Client  *http.Client
}

func NewReportClient(baseURL string, timeout time.Duration) *ReportClient {
	return &ReportClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

// Download posts the retained analysis to /download-report and returns the
// binary report artifact. Any non-2xx status is a failure; no retry.
func (c *ReportClient) Download(ctx context.Context, result *models.PredictionResult) ([]byte, error) {
	payloadBytes, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/download-report", bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send report request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("report endpoint returned status %d", resp.StatusCode)
	}

	artifact, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read report artifact: %w", err)
	}
	if len(artifact) == 0 {
		return nil, fmt.Errorf("report endpoint returned an empty artifact")
	}

	return artifact, nil
}
