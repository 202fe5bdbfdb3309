package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kalambet/sysbind/internal/api"
	"github.com/kalambet/sysbind/internal/binding"
	"github.com/kalambet/sysbind/internal/bootup"
	"github.com/kalambet/sysbind/internal/config"
)

type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	token, err := cfg.APIToken()
	if err != nil {
		return nil, fmt.Errorf("getting API token: %w", err)
	}

	return &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is sysbind running? (%w)", err)
	}
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *apiClient) put(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPut, path, body)
}

func (c *apiClient) delete(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func categoryQuery(category string) string {
	if category == "" {
		return ""
	}
	return "?" + url.Values{"category": {category}}.Encode()
}

func (c *apiClient) listBindings(ctx context.Context) ([]binding.Info, error) {
	resp, err := c.get(ctx, "/bindings")
	if err != nil {
		return nil, err
	}
	var infos []binding.Info
	if err := decodeJSON(resp, &infos); err != nil {
		return nil, err
	}
	return infos, nil
}

func (c *apiClient) getBinding(ctx context.Context, key string) (binding.Info, error) {
	var info binding.Info
	resp, err := c.get(ctx, "/bindings/"+url.PathEscape(key))
	if err != nil {
		return info, err
	}
	err = decodeJSON(resp, &info)
	return info, err
}

func (c *apiClient) setBinding(ctx context.Context, key, value string) (api.SetResponse, error) {
	var result api.SetResponse
	resp, err := c.put(ctx, "/bindings/"+url.PathEscape(key), map[string]string{"value": value})
	if err != nil {
		return result, err
	}
	err = decodeJSON(resp, &result)
	return result, err
}

func (c *apiClient) listBootup(ctx context.Context, category string) ([]bootup.Entry, error) {
	resp, err := c.get(ctx, "/bootup"+categoryQuery(category))
	if err != nil {
		return nil, err
	}
	var entries []bootup.Entry
	if err := decodeJSON(resp, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (c *apiClient) deleteBootup(ctx context.Context, category, key string) error {
	resp, err := c.delete(ctx, "/bootup/"+url.PathEscape(category)+"/"+url.PathEscape(key))
	if err != nil {
		return err
	}
	var result map[string]string
	return decodeJSON(resp, &result)
}

func (c *apiClient) restore(ctx context.Context, category string) (bootup.RestoreReport, error) {
	var report bootup.RestoreReport
	resp, err := c.post(ctx, "/bootup/restore"+categoryQuery(category), nil)
	if err != nil {
		return report, err
	}
	err = decodeJSON(resp, &report)
	return report, err
}
