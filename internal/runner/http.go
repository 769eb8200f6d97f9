package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

const httpTimeout = 30 * time.Second

// httpEnvelope is the response shape produced by HTTP-calling runners.
type httpEnvelope struct {
	StatusCode   int               `json:"status_code"`
	Headers      map[string]string `json:"headers"`
	ResponseData any               `json:"response_data"`
}

func (e httpEnvelope) asMap() map[string]any {
	return map[string]any{
		"status_code":   e.StatusCode,
		"headers":       e.Headers,
		"response_data": e.ResponseData,
	}
}

// doRequest performs an HTTP call and decodes the response into the
// status/headers/body envelope. Non-2xx statuses are errors.
func doRequest(ctx context.Context, client *http.Client, method, rawURL string, headers map[string]string, body any) (httpEnvelope, error) {
	if client == nil {
		client = &http.Client{Timeout: httpTimeout}
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return httpEnvelope{}, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return httpEnvelope{}, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return httpEnvelope{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return httpEnvelope{}, fmt.Errorf("read response body: %w", err)
	}

	env := httpEnvelope{
		StatusCode: resp.StatusCode,
		Headers:    make(map[string]string, len(resp.Header)),
	}
	for k := range resp.Header {
		env.Headers[k] = resp.Header.Get(k)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var decoded any
		if err := json.Unmarshal(raw, &decoded); err == nil {
			env.ResponseData = decoded
		} else {
			env.ResponseData = string(raw)
		}
	} else {
		env.ResponseData = string(raw)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return env, fmt.Errorf("request to %s returned %d", rawURL, resp.StatusCode)
	}
	return env, nil
}
