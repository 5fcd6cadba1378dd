package hf

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelly/kbrag/internal/core/domain"
)

func TestNew_RequiresToken(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)

	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Error(), "HF_API_TOKEN")
}

func TestEmbed_PostsInputsWithBearerAuth(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`[[0.5, 1.5]]`))
	}))
	defer server.Close()

	svc, err := New(Config{Token: "secret", BaseURL: server.URL, Model: "acme/embedder"})
	require.NoError(t, err)

	vec, err := svc.Embed(context.Background(), "where is my parcel", domain.TaskQuery)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 1.5}, vec)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "/models/acme/embedder", gotPath)
	assert.Equal(t, "where is my parcel", gotBody["inputs"])
}

func TestEmbed_TruncatesLongInput(t *testing.T) {
	var sent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		sent = body["inputs"]
		_, _ = w.Write([]byte(`[1]`))
	}))
	defer server.Close()

	svc, err := New(Config{Token: "t", BaseURL: server.URL, MaxChars: 8})
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), strings.Repeat("a", 100), domain.TaskDocument)
	require.NoError(t, err)
	assert.Len(t, sent, 8)
}

func TestEmbed_ModelLoadingIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"Model is currently loading"}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc, err := New(Config{Token: "t", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "q", domain.TaskQuery)
	require.Error(t, err)

	var transient *domain.TransientError
	require.True(t, errors.As(err, &transient))
	var embedErr *domain.EmbeddingError
	require.True(t, errors.As(err, &embedErr))
	assert.Equal(t, http.StatusServiceUnavailable, embedErr.Status)
}

func TestEmbed_AuthFailureIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer server.Close()

	svc, err := New(Config{Token: "bad", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "q", domain.TaskQuery)
	require.Error(t, err)

	var transient *domain.TransientError
	assert.False(t, errors.As(err, &transient))
}

func TestEmbed_UnparseableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"unexpected": true}`))
	}))
	defer server.Close()

	svc, err := New(Config{Token: "t", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = svc.Embed(context.Background(), "q", domain.TaskQuery)
	var embedErr *domain.EmbeddingError
	require.True(t, errors.As(err, &embedErr))
}
