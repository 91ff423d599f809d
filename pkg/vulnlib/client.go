package vulnlib

import (
	"context"
	"net/http"
	"time"
)

const (
	nvdURL    = "https://services.nvd.nist.gov/rest/json/cves/2.0"
	mitreURL  = "https://cve.mitre.org/cgi-bin/cvename.cgi?name=%s"
	pageLimit = 2000
)

// Record is one known weakness attached to a platform identifier.
type Record struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	SourceURL   string `json:"source_url"`
	Published   string `json:"published,omitempty"`
}

// Source is the external vulnerability database.
type Source interface {
	Query(ctx context.Context, cpe string) ([]Record, error)
	Updated(ctx context.Context, cpe string, since time.Time) (bool, error)
}

// Client talks to the NVD CVE API 2.0.
type Client struct {
	Cli *http.Client

	BaseURL  string
	APIKey   string
	PageSize int
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = nvdURL
	}

	tr := &http.Transport{
		IdleConnTimeout:    60 * time.Second,
		DisableCompression: true,
	}

	return &Client{
		Cli: &http.Client{
			Transport: tr,
			Timeout:   timeout,
		},
		BaseURL:  baseURL,
		APIKey:   apiKey,
		PageSize: pageLimit,
	}
}
