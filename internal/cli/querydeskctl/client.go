package querydeskctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// requestError is a transport failure or an error response from the API.
type requestError struct {
	status int
	err    error
}

func (e *requestError) Error() string {
	if e.status > 0 {
		return fmt.Sprintf("http %d: %v", e.status, e.err)
	}
	return fmt.Sprintf("request failed: %v", e.err)
}

func (e *requestError) Unwrap() error {
	return e.err
}

func doRequest(ctx context.Context, client *http.Client, method, url string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &requestError{err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &requestError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &requestError{err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, &requestError{status: resp.StatusCode, err: errors.New(errorText(responseBody))}
	}
	return responseBody, nil
}

// errorText prefers the API's {"error": "..."} message over the raw body.
func errorText(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}
