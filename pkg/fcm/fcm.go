package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"alert-engine/internal/models"
)

// maxTokensPerRequest is the FCM limit on registration_ids per call.
// Chunking is internal to the transport; callers make one logical send.
const maxTokensPerRequest = 500

// Client talks to the FCM legacy HTTP API.
type Client struct {
	serverKey string
	endpoint  string
	http      *http.Client
	limiter   *rate.Limiter
}

// New builds a Client. ratePerSec bounds outgoing FCM requests.
func New(serverKey, endpoint string, ratePerSec int) *Client {
	return &Client{
		serverKey: serverKey,
		endpoint:  endpoint,
		http:      &http.Client{Timeout: 15 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(float64(ratePerSec)), ratePerSec),
	}
}

type sendRequest struct {
	RegistrationIDs []string          `json:"registration_ids"`
	Notification    notification      `json:"notification"`
	Data            map[string]string `json:"data,omitempty"`
	DryRun          bool              `json:"dry_run,omitempty"`
}

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type sendResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// Send pushes payload to tokens and returns the per-token outcome. With
// dryRun set, FCM validates the tokens without delivering anything.
func (c *Client) Send(ctx context.Context, tokens []string, payload models.PushPayload, dryRun bool) (models.DispatchResult, error) {
	var result models.DispatchResult

	for start := 0; start < len(tokens); start += maxTokensPerRequest {
		end := start + maxTokensPerRequest
		if end > len(tokens) {
			end = len(tokens)
		}
		batch := tokens[start:end]

		if err := c.limiter.Wait(ctx); err != nil {
			return result, fmt.Errorf("fcm rate limit wait: %w", err)
		}

		resp, err := c.sendBatch(ctx, batch, payload, dryRun)
		if err != nil {
			return result, err
		}

		result.SuccessCount += resp.Success
		for i, r := range resp.Results {
			if r.Error != "" && i < len(batch) {
				result.FailedTokens = append(result.FailedTokens, batch[i])
			}
		}
	}

	return result, nil
}

func (c *Client) sendBatch(ctx context.Context, tokens []string, payload models.PushPayload, dryRun bool) (sendResponse, error) {
	body, err := json.Marshal(sendRequest{
		RegistrationIDs: tokens,
		Notification:    notification{Title: payload.Title, Body: payload.Body},
		Data:            payload.Data,
		DryRun:          dryRun,
	})
	if err != nil {
		return sendResponse{}, fmt.Errorf("failed to marshal fcm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return sendResponse{}, fmt.Errorf("failed to build fcm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+c.serverKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return sendResponse{}, fmt.Errorf("fcm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return sendResponse{}, fmt.Errorf("fcm returned status %d", resp.StatusCode)
	}

	var parsed sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return sendResponse{}, fmt.Errorf("failed to decode fcm response: %w", err)
	}
	return parsed, nil
}
