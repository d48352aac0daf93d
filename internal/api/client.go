package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go-civitai-fetch/internal/models"

	log "github.com/sirupsen/logrus"
)

// Custom Error Types
var (
	ErrRateLimited  = errors.New("API rate limit exceeded")
	ErrUnauthorized = errors.New("API request unauthorized (check API key)")
	ErrNotFound     = errors.New("API resource not found")
	ErrServerError  = errors.New("API server error")
)

const (
	// CivitaiApiBaseUrl is the versioned REST API root.
	CivitaiApiBaseUrl = "https://civitai.com/api/v1"
	// CivitaiDownloadBaseUrl is the terminal download endpoint root; a
	// version ID appended to it yields a canonical download URL.
	CivitaiDownloadBaseUrl = "https://civitai.com/api/download/models"

	searchLimit = 10
	maxRetries  = 3
)

// modelTypeMapping translates internal model-type tags to the API's own
// type vocabulary for search filtering.
var modelTypeMapping = map[string]string{
	"checkpoint":        "Checkpoint",
	"lora":              "LORA",
	"locon":             "LORA",
	"lycoris":           "LORA",
	"controlnet":        "Controlnet",
	"hypernetwork":      "Hypernetwork",
	"textualinversion":  "TextualInversion",
	"poses":             "Poses",
	"aestheticgradient": "AestheticGradient",
}

// Client issues authenticated read requests against the Civitai API.
type Client struct {
	ApiKey     string
	HttpClient *http.Client
	BaseUrl    string
	RetryDelay time.Duration
}

// NewClient creates a new API client. A nil httpClient gets a default with
// a 30 second timeout.
func NewClient(apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		ApiKey:     apiKey,
		HttpClient: httpClient,
		BaseUrl:    CivitaiApiBaseUrl,
		RetryDelay: 2 * time.Second,
	}
}

// DownloadURLForVersion builds the canonical download URL for a model
// version ID.
func DownloadURLForVersion(versionID int) string {
	return fmt.Sprintf("%s/%d", CivitaiDownloadBaseUrl, versionID)
}

// getJSON performs one authenticated GET against an API endpoint and
// decodes the JSON body into out. Transient failures (transport errors,
// 429, 5xx) are retried with backoff; 401/403/404 and other client errors
// fail immediately with a typed error.
func (c *Client) getJSON(endpoint string, params url.Values, out interface{}) error {
	reqURL := c.BaseUrl + endpoint
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		return fmt.Errorf("error creating request for %s: %w", reqURL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ApiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.ApiKey)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			sleep := time.Duration(attempt) * c.RetryDelay
			log.WithError(lastErr).Warnf("Retrying %s (%d/%d) after %s...", endpoint, attempt+1, maxRetries, sleep)
			time.Sleep(sleep)
		}

		resp, err := c.HttpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request failed for %s: %w", endpoint, err)
			continue
		}

		switch resp.StatusCode {
		case http.StatusOK:
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil {
				return fmt.Errorf("error reading response body for %s: %w", endpoint, readErr)
			}
			if err := json.Unmarshal(body, out); err != nil {
				log.Debugf("Response body causing unmarshal error: %s", string(body))
				return fmt.Errorf("error unmarshalling response from %s: %w", endpoint, err)
			}
			return nil
		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return ErrUnauthorized
		case http.StatusNotFound:
			resp.Body.Close()
			return ErrNotFound
		case http.StatusTooManyRequests:
			lastErr = ErrRateLimited
		default:
			if resp.StatusCode >= 500 {
				lastErr = fmt.Errorf("%w (status code %d)", ErrServerError, resp.StatusCode)
			} else {
				resp.Body.Close()
				return fmt.Errorf("API request to %s failed with status %d", endpoint, resp.StatusCode)
			}
		}

		// Drain and close before retrying so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}

	return lastErr
}

// GetModelByID fetches a model record, including its versions and files.
func (c *Client) GetModelByID(modelID int) (models.Model, error) {
	var model models.Model
	if err := c.getJSON("/models/"+strconv.Itoa(modelID), nil, &model); err != nil {
		return models.Model{}, err
	}
	log.Debugf("Retrieved model info for ID %d", modelID)
	return model, nil
}

// GetModelVersionByID fetches a single model version record.
func (c *Client) GetModelVersionByID(versionID int) (models.ModelVersion, error) {
	var version models.ModelVersion
	if err := c.getJSON("/model-versions/"+strconv.Itoa(versionID), nil, &version); err != nil {
		return models.ModelVersion{}, err
	}
	log.Debugf("Retrieved model version info for ID %d", versionID)
	return version, nil
}

// SearchModelsByName searches models by free-text query, optionally
// filtered by an internal model-type tag.
func (c *Client) SearchModelsByName(query string, modelType string) ([]models.Model, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(searchLimit))
	params.Set("primaryFileOnly", "true")
	if modelType != "" {
		if apiType, ok := modelTypeMapping[strings.ToLower(modelType)]; ok {
			params.Set("types", apiType)
		}
	}

	var response models.SearchResponse
	if err := c.getJSON("/models", params, &response); err != nil {
		return nil, err
	}
	log.Debugf("Search found %d models for query %q", len(response.Items), query)
	return response.Items, nil
}
