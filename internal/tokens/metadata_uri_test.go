package tokens_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-conn-proxy/internal/tokens"
)

func TestFetchMetadataURIs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ape.json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"name":"Ape","image":"https://example.com/ape.png"}`))
		case "/html":
			_, _ = w.Write([]byte(`<html></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	toks := []*tokens.TokenAccount{token(1, 20, 1), token(2, 21, 1), token(3, 22, 1), token(4, 23, 1), token(5, 24, 1)}
	md := []*tokens.Metadata{
		{URI: srv.URL + "/ape.json"},
		{URI: srv.URL + "/missing"},
		nil,
		{URI: srv.URL + "/html"},
		{URI: ""},
	}

	res, err := tokens.FetchMetadataURIs(context.Background(), srv.Client(), toks, md)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, addr(1).String(), res[0].Key)
	assert.JSONEq(t, `{"name":"Ape","image":"https://example.com/ape.png"}`, string(res[0].JSON))

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `[["`+addr(1).String()+`",{"name":"Ape","image":"https://example.com/ape.png"}]]`, string(b))

	var back []tokens.MetadataURIResult
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, res[0].Key, back[0].Key)
}

func TestFetchMetadataURIs_LengthMismatch(t *testing.T) {
	_, err := tokens.FetchMetadataURIs(context.Background(), nil, []*tokens.TokenAccount{token(1, 2, 1)}, nil)
	assert.Error(t, err)
}

func TestFetchMetadataURIs_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tokens.FetchMetadataURIs(ctx, nil, nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMetadataURIKeys(t *testing.T) {
	keys := tokens.MetadataURIKeys([]*tokens.TokenAccount{token(3, 1, 1), nil, token(1, 1, 1)})
	require.Len(t, keys, 2)
	assert.LessOrEqual(t, keys[0], keys[1])
}
