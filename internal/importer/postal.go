// Package importer seeds the address table from the public list of French
// communes and their postal codes.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/donation-market/internal/model"
)

// AddressStore receives the imported rows.
type AddressStore interface {
	BulkUpsert(ctx context.Context, addrs []model.Address) (int64, error)
}

// commune is one element of the API response.
type commune struct {
	Name        string   `json:"nom"`
	PostalCodes []string `json:"codesPostaux"`
}

// PostalImporter downloads (city, postal code) pairs and stores the ones
// not present yet.
type PostalImporter struct {
	URL    string
	Store  AddressStore
	Client *http.Client
	Logger echo.Logger
}

func NewPostalImporter(url string, store AddressStore, logger echo.Logger) *PostalImporter {
	return &PostalImporter{
		URL:    url,
		Store:  store,
		Client: &http.Client{Timeout: 60 * time.Second},
		Logger: logger,
	}
}

// Run fetches the dataset and returns the number of new address rows.
func (p *PostalImporter) Run(ctx context.Context) (int64, error) {
	communes, err := p.fetch(ctx)
	if err != nil {
		return 0, err
	}
	addrs := flatten(communes)
	p.Logger.Infof("importer: %d communes, %d distinct addresses", len(communes), len(addrs))
	n, err := p.Store.BulkUpsert(ctx, addrs)
	if err != nil {
		return n, fmt.Errorf("store addresses: %w", err)
	}
	p.Logger.Infof("importer: %d new addresses", n)
	return n, nil
}

func (p *PostalImporter) fetch(ctx context.Context) ([]commune, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch addresses: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch addresses: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	var out []commune
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode addresses: %w", err)
	}
	return out, nil
}

// flatten expands communes into one address per postal code, upper-cases
// city names and drops duplicates.  The result is sorted for stable batches.
func flatten(communes []commune) []model.Address {
	seen := make(map[model.Address]struct{})
	out := make([]model.Address, 0, len(communes))
	for _, c := range communes {
		city := strings.ToUpper(strings.TrimSpace(c.Name))
		if city == "" {
			continue
		}
		for _, pc := range c.PostalCodes {
			a := model.Address{City: city, PostalCode: strings.TrimSpace(pc)}
			if a.PostalCode == "" {
				continue
			}
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].City != out[j].City {
			return out[i].City < out[j].City
		}
		return out[i].PostalCode < out[j].PostalCode
	})
	return out
}
