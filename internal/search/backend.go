package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// OfferDocument is what the search engine stores for a bookable offer.
type OfferDocument struct {
	ObjectID      int64      `json:"objectID"`
	Name          string     `json:"name"`
	SubcategoryID string     `json:"subcategory_id"`
	VenueID       int64      `json:"venue_id"`
	VenueName     string     `json:"venue_name"`
	OffererName   string     `json:"offerer_name"`
	Department    string     `json:"department_code,omitempty"`
	IsDigital     bool       `json:"is_digital"`
	IsDuo         bool       `json:"is_duo"`
	IsEvent       bool       `json:"is_event"`
	MinPrice      int64      `json:"min_price"`
	MaxPrice      int64      `json:"max_price"`
	Dates         []int64    `json:"dates,omitempty"`
	IndexedAt     time.Time  `json:"indexed_at"`
	NextBeginning *time.Time `json:"next_beginning,omitempty"`
}

type Backend interface {
	Index(ctx context.Context, docs []OfferDocument) error
	Unindex(ctx context.Context, offerIDs []int64) error
}

// MemoryBackend keeps documents in a map. It is used in development and tests.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[int64]OfferDocument
	Err  error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: map[int64]OfferDocument{}}
}

func (m *MemoryBackend) Index(ctx context.Context, docs []OfferDocument) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		m.docs[d.ObjectID] = d
	}
	return nil
}

func (m *MemoryBackend) Unindex(ctx context.Context, offerIDs []int64) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range offerIDs {
		delete(m.docs, id)
	}
	return nil
}

func (m *MemoryBackend) Get(offerID int64) (OfferDocument, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[offerID]
	return d, ok
}

// IDs returns the indexed offer ids in ascending order.
func (m *MemoryBackend) IDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.docs))
	for id := range m.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// HTTPBackend talks to a JSON search API:
//
//	POST   {base}/indexes/{index}/documents         body: [docs]
//	POST   {base}/indexes/{index}/documents/delete  body: [ids]
//
// Requests are retried with exponential backoff on network errors and 5xx.
type HTTPBackend struct {
	BaseURL    string
	APIKey     string
	IndexName  string
	Client     *http.Client
	MaxElapsed time.Duration
}

func NewHTTPBackend(baseURL, apiKey, index string) *HTTPBackend {
	return &HTTPBackend{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		IndexName:  index,
		Client:     &http.Client{Timeout: 10 * time.Second},
		MaxElapsed: 30 * time.Second,
	}
}

func (h *HTTPBackend) Index(ctx context.Context, docs []OfferDocument) error {
	if len(docs) == 0 {
		return nil
	}
	return h.post(ctx, fmt.Sprintf("%s/indexes/%s/documents", h.BaseURL, h.IndexName), docs)
}

func (h *HTTPBackend) Unindex(ctx context.Context, offerIDs []int64) error {
	if len(offerIDs) == 0 {
		return nil
	}
	return h.post(ctx, fmt.Sprintf("%s/indexes/%s/documents/delete", h.BaseURL, h.IndexName), offerIDs)
}

func (h *HTTPBackend) post(ctx context.Context, url string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode search request: %w", err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		if h.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+h.APIKey)
		}

		resp, err := h.Client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("search backend returned %d", resp.StatusCode)
		case resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("search backend returned %d", resp.StatusCode))
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = h.MaxElapsed
	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}
