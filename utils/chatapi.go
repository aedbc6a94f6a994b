package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type ChatClient struct {
	BaseURL string
	Client  *http.Client
}

func NewChatClient(baseURL string, timeout time.Duration) *ChatClient {
	return &ChatClient{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: timeout},
	}
}

// Send posts the user message to /chat and returns the assistant reply.
// An empty reply is not an error here; the caller decides the fallback.
func (c *ChatClient) Send(ctx context.Context, message string) (string, error) {
	requestBody := map[string]string{"message": message}
	requestBodyBytes, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/chat", bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send chat request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read chat response: %w", err)
	}

	var response struct {
		Reply string `json:"reply"`
	}
	if err := json.Unmarshal(bodyBytes, &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal chat response: %w", err)
	}

	return response.Reply, nil
}
