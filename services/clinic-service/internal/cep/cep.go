// Package cep resolves Brazilian postal codes through public providers tried in a fixed
// order under one shared deadline.
package cep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/dentalcare/libs/brdocs"
)

const DefaultTimeout = 6 * time.Second

var (
	ErrInvalid  = errors.New("cep must have 8 digits")
	ErrNotFound = errors.New("address not found")
)

type Address struct {
	CEP      string `json:"cep"`
	Street   string `json:"logradouro"`
	District string `json:"bairro"`
	City     string `json:"cidade"`
	UF       string `json:"uf"`
	Provider string `json:"provider"`
}

// Provider turns an 8-digit CEP into a request URL and decodes a 2xx body.
type Provider struct {
	Name   string
	URL    func(cep string) string
	Decode func(body []byte) (Address, error)
}

var errProviderMiss = errors.New("provider has no address")

// DefaultProviders returns BrasilAPI v2, AwesomeAPI and ApiCEP, in that order.
func DefaultProviders() []Provider {
	return []Provider{
		BrasilAPI("https://brasilapi.com.br"),
		AwesomeAPI("https://cep.awesomeapi.com.br"),
		ApiCEP("https://cdn.apicep.com"),
	}
}

func BrasilAPI(base string) Provider {
	return Provider{
		Name: "brasilapi",
		URL:  func(cep string) string { return base + "/api/cep/v2/" + cep },
		Decode: func(body []byte) (Address, error) {
			var j struct {
				Street       string `json:"street"`
				Neighborhood string `json:"neighborhood"`
				City         string `json:"city"`
				State        string `json:"state"`
			}
			if err := json.Unmarshal(body, &j); err != nil {
				return Address{}, err
			}
			return Address{Street: j.Street, District: j.Neighborhood, City: j.City, UF: j.State}, nil
		},
	}
}

func AwesomeAPI(base string) Provider {
	return Provider{
		Name: "awesomeapi",
		URL:  func(cep string) string { return base + "/json/" + cep },
		Decode: func(body []byte) (Address, error) {
			var j struct {
				Address  string          `json:"address"`
				District string          `json:"district"`
				City     string          `json:"city"`
				State    string          `json:"state"`
				Erro     json.RawMessage `json:"erro"`
				Error    json.RawMessage `json:"error"`
			}
			if err := json.Unmarshal(body, &j); err != nil {
				return Address{}, err
			}
			if truthy(j.Erro) || truthy(j.Error) {
				return Address{}, errProviderMiss
			}
			return Address{Street: j.Address, District: j.District, City: j.City, UF: j.State}, nil
		},
	}
}

func ApiCEP(base string) Provider {
	return Provider{
		Name: "apicep",
		URL:  func(cep string) string { return base + "/file/apicep/" + cep + ".json" },
		Decode: func(body []byte) (Address, error) {
			var j struct {
				Status   int    `json:"status"`
				Address  string `json:"address"`
				District string `json:"district"`
				City     string `json:"city"`
				State    string `json:"state"`
			}
			if err := json.Unmarshal(body, &j); err != nil {
				return Address{}, err
			}
			if j.Status != 0 && j.Status != http.StatusOK {
				return Address{}, errProviderMiss
			}
			return Address{Street: j.Address, District: j.District, City: j.City, UF: j.State}, nil
		},
	}
}

// truthy treats absent, null, false, empty string and zero as unset.
func truthy(raw json.RawMessage) bool {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "false", `""`, "0":
		return false
	}
	return true
}

// Cache stores resolved addresses by CEP digits.
type Cache interface {
	Get(ctx context.Context, cep string) (Address, bool, error)
	Set(ctx context.Context, cep string, addr Address) error
}

type Client struct {
	http      *http.Client
	providers []Provider
	timeout   time.Duration
	cache     Cache
	logger    *slog.Logger
}

type Option func(*Client)

func WithProviders(p ...Provider) Option { return func(c *Client) { c.providers = p } }
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }
func WithCache(cache Cache) Option       { return func(c *Client) { c.cache = cache } }

func NewClient(httpClient *http.Client, logger *slog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	c := &Client{http: httpClient, providers: DefaultProviders(), timeout: DefaultTimeout, logger: logger}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Lookup normalizes raw to digits and returns the first provider's answer.
func (c *Client) Lookup(ctx context.Context, raw string) (Address, error) {
	cep, ok := brdocs.NormalizeCEP(raw)
	if !ok {
		return Address{}, ErrInvalid
	}
	if c.cache != nil {
		if addr, hit, err := c.cache.Get(ctx, cep); err != nil {
			c.logger.Warn("cep cache read failed", "err", err)
		} else if hit {
			return addr, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	for _, p := range c.providers {
		addr, err := c.try(ctx, p, cep)
		if err != nil {
			c.logger.Debug("cep provider failed", "provider", p.Name, "err", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		addr.CEP, addr.Provider = brdocs.FormatCEP(cep), p.Name
		addr.UF = strings.ToUpper(addr.UF)
		if c.cache != nil {
			if err := c.cache.Set(context.WithoutCancel(ctx), cep, addr); err != nil {
				c.logger.Warn("cep cache write failed", "err", err)
			}
		}
		return addr, nil
	}
	return Address{}, ErrNotFound
}

func (c *Client) try(ctx context.Context, p Provider, cep string) (Address, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL(cep), nil)
	if err != nil {
		return Address{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return Address{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Address{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Address{}, err
	}
	addr, err := p.Decode(body)
	if err != nil {
		return Address{}, err
	}
	if addr.City == "" && addr.Street == "" {
		return Address{}, errProviderMiss
	}
	return addr, nil
}
