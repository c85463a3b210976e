package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	metadataFetchConcurrency = 8
	maxMetadataBytes         = 1 << 20
	defaultMetadataTimeout   = 10 * time.Second
)

// MetadataURIResult is the off-chain JSON document for one token account.
// It encodes as the pair [key, json].
type MetadataURIResult struct {
	Key  string
	JSON json.RawMessage
}

// MarshalJSON encodes the result as a two-element array.
func (r MetadataURIResult) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{r.Key, r.JSON})
}

// UnmarshalJSON decodes a two-element [key, json] array.
func (r *MetadataURIResult) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("metadata uri result: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &r.Key); err != nil {
		return fmt.Errorf("metadata uri result key: %w", err)
	}
	r.JSON = pair[1]
	return nil
}

// MetadataURIKeys returns the sorted token account keys identifying a
// metadata URI request.
func MetadataURIKeys(tokens []*TokenAccount) []string {
	keys := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t != nil {
			keys = append(keys, t.Key.String())
		}
	}
	slices.Sort(keys)
	return keys
}

// FetchMetadataURIs downloads the JSON document behind each token's
// metadata URI. metadata[i] belongs to tokens[i]. Tokens without a URI,
// failed downloads and documents that are not JSON are left out of the
// result, which keeps request order.
func FetchMetadataURIs(ctx context.Context, client *http.Client, tokens []*TokenAccount, metadata []*Metadata) ([]MetadataURIResult, error) {
	if len(tokens) != len(metadata) {
		return nil, fmt.Errorf("metadata uri: %d tokens but %d metadata entries", len(tokens), len(metadata))
	}
	if client == nil {
		client = &http.Client{Timeout: defaultMetadataTimeout}
	}

	docs := make([]json.RawMessage, len(tokens))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metadataFetchConcurrency)
	for i, md := range metadata {
		if tokens[i] == nil || md == nil || md.URI == "" {
			continue
		}
		g.Go(func() error {
			doc, err := fetchJSON(gctx, client, md.URI)
			if err == nil {
				docs[i] = doc
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]MetadataURIResult, 0, len(tokens))
	for i, doc := range docs {
		if doc != nil {
			out = append(out, MetadataURIResult{Key: tokens[i].Key.String(), JSON: doc})
		}
	}
	return out, nil
}

func fetchJSON(ctx context.Context, client *http.Client, uri string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", uri, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("GET %s: response is not JSON", uri)
	}
	return body, nil
}
