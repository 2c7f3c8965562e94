// Package geo resolves device coordinates to a human-readable address label.
package geo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"resty.dev/v3"

	"goldenbookAPI/internal/types/establishment"
)

var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	// ErrUpstream wraps transport failures and error statuses from the geocoder.
	ErrUpstream = errors.New("geocoder upstream failed")
)

type Address struct {
	Formatted string `json:"formatted"`
	Line1     string `json:"line1,omitempty"`
	Line2     string `json:"line2,omitempty"`
	City      string `json:"city,omitempty"`
	Country   string `json:"country,omitempty"`
}

// Geocoder returns nil without an error when a position has no address.
type Geocoder interface {
	Reverse(ctx context.Context, at establishment.Coordinates, locale string) (*Address, error)
}

type GeoapifyClient struct {
	baseURL    string
	apiKey     string
	httpClient *resty.Client
}

type reverseResponse struct {
	Results []struct {
		Formatted    string `json:"formatted"`
		AddressLine1 string `json:"address_line1"`
		AddressLine2 string `json:"address_line2"`
		City         string `json:"city"`
		Country      string `json:"country"`
	} `json:"results"`
}

func NewGeoapifyClient(baseURL, apiKey string, timeout time.Duration) *GeoapifyClient {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Accept", "application/json")

	return &GeoapifyClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: client,
	}
}

func (c *GeoapifyClient) Close() error {
	return c.httpClient.Close()
}

func (c *GeoapifyClient) Reverse(ctx context.Context, at establishment.Coordinates, locale string) (*Address, error) {
	if !at.Valid() {
		return nil, ErrInvalidCoordinates
	}

	params := map[string]string{
		"lat":    strconv.FormatFloat(at.Latitude, 'f', -1, 64),
		"lon":    strconv.FormatFloat(at.Longitude, 'f', -1, 64),
		"format": "json",
		"apiKey": c.apiKey,
	}
	if locale != "" {
		params["lang"] = locale
	}

	var out reverseResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Get(c.baseURL + "/v1/geocode/reverse")
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("request cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to reverse geocode: %w: %w", ErrUpstream, err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("%w: HTTP %d %s", ErrUpstream, resp.StatusCode(), resp.Status())
	}

	if len(out.Results) == 0 {
		log.Debugf("Geo: no address for %.5f,%.5f", at.Latitude, at.Longitude)
		return nil, nil
	}

	r := out.Results[0]
	return &Address{
		Formatted: r.Formatted,
		Line1:     r.AddressLine1,
		Line2:     r.AddressLine2,
		City:      r.City,
		Country:   r.Country,
	}, nil
}
