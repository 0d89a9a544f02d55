package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultTriggerTimeout = 10 * time.Second

// HTTPTriggerProvider sends trigger requests to an HTTP delivery provider.
// It accepts both a flat acknowledgement body and one nested under a
// data/result envelope, since providers differ on this.
type HTTPTriggerProvider struct {
	client   *resty.Client
	endpoint string
	apiKey   string
}

func NewHTTPTriggerProvider(endpoint, apiKey string) (*HTTPTriggerProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultTriggerTimeout)
	client.SetRetryCount(0)

	return NewHTTPTriggerProviderWithClient(endpoint, apiKey, client)
}

func NewHTTPTriggerProviderWithClient(endpoint, apiKey string, client *resty.Client) (*HTTPTriggerProvider, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("trigger endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid trigger endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultTriggerTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPTriggerProvider{
		client:   client,
		endpoint: trimmedEndpoint,
		apiKey:   strings.TrimSpace(apiKey),
	}, nil
}

func (p *HTTPTriggerProvider) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResponse, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if strings.TrimSpace(req.Workflow) == "" {
		return nil, fmt.Errorf("workflow is required")
	}
	if strings.TrimSpace(req.Recipient) == "" {
		return nil, fmt.Errorf("recipient is required")
	}

	request := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req)
	if p.apiKey != "" {
		request.SetHeader("Authorization", "Bearer "+p.apiKey)
	}

	response, err := request.Post(p.endpoint)
	if err != nil {
		return nil, &ProviderError{
			Message: "provider request failed",
			Cause:   err,
		}
	}
	if response == nil {
		return nil, &ProviderError{Message: "provider returned empty response"}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		parsed, parseErr := parseTriggerResponse([]byte(responseBody))
		if parseErr != nil {
			return nil, &ProviderError{
				StatusCode: statusCode,
				Message:    "provider returned unreadable body",
				Cause:      parseErr,
			}
		}
		return parsed, nil
	}

	return nil, &ProviderError{
		StatusCode: statusCode,
		Message:    providerErrorMessage(statusCode, responseBody),
	}
}

// triggerEnvelope covers providers that wrap the acknowledgement in a
// data or result object.
type triggerEnvelope struct {
	Data   *TriggerResponse `json:"data"`
	Result *TriggerResponse `json:"result"`
}

func parseTriggerResponse(body []byte) (*TriggerResponse, error) {
	if len(body) == 0 {
		return &TriggerResponse{}, nil
	}

	var envelope triggerEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Data != nil {
			return envelope.Data, nil
		}
		if envelope.Result != nil {
			return envelope.Result, nil
		}
	}

	var flat TriggerResponse
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, err
	}
	return &flat, nil
}

func providerErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("provider returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
