package esignclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSignatureRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/signature_requests", r.URL.Path)
		assert.Equal(t, "Bearer esk_test", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "42", body["contract_id"])
		assert.Equal(t, "a@x.com", body["signer_email"])
		w.Header().Set("content-type", "application/json")
		_, _ = w.Write([]byte(`{"signature_request_id":"sr_abc"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/v1/", "esk_test", time.Second)
	id, err := c.CreateSignatureRequest(context.Background(), 42, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "sr_abc", id)
}

func TestCreateSignatureRequest_FallsBackToID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"sr_fallback"}`))
	}))
	defer srv.Close()

	id, err := New(srv.URL, "", time.Second).CreateSignatureRequest(context.Background(), 1, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "sr_fallback", id)
}

func TestCreateSignatureRequest_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", time.Second).CreateSignatureRequest(context.Background(), 1, "a@x.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer empty.Close()
	_, err = New(empty.URL, "", time.Second).CreateSignatureRequest(context.Background(), 1, "a@x.com")
	assert.Error(t, err)
}
