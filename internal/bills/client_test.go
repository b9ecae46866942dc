package bills

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parkops/billsync/internal/transform"
)

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, BaseDelay: time.Millisecond}
}

func testBatch() []transform.Record {
	return []transform.Record{
		{SourceID: 101, OperationID: 1, Facility: "cart-1", Body: transform.Document{DocumentID: "101_1"}},
		{SourceID: 102, OperationID: 2, Facility: "cart-1", Body: transform.Document{DocumentID: "102_2"}},
		{SourceID: 103, OperationID: 3, Facility: "cart-2", Body: transform.Document{DocumentID: "103_3"}},
	}
}

func accepted(w http.ResponseWriter, documentID string) {
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"data": map[string]any{
			"id":           42,
			"document_id":  documentID,
			"date_payment": "2024-03-15 11:45:00",
		},
	})
}

func TestDeliver_AllAccepted(t *testing.T) {
	var mu sync.Mutex
	var tokens []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body transform.Document
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		tokens = append(tokens, r.Header.Get("Authorization"))
		mu.Unlock()
		accepted(w, body.DocumentID)
	}))
	defer srv.Close()

	client := New(srv.URL, map[string]string{"cart-1": "token-1", "cart-2": "token-2"},
		time.Second, WithRetryPolicy(fastRetry(1)))

	confirmed := client.Deliver(context.Background(), testBatch())

	require.Len(t, confirmed, 3)
	// Local identifiers survive delivery untouched.
	assert.Equal(t, int64(101), confirmed[0].SourceID)
	assert.Equal(t, int64(1), confirmed[0].OperationID)
	assert.Equal(t, "cart-1", confirmed[0].Facility)
	// Each facility resolves its own credential.
	assert.Equal(t, []string{"token-1", "token-1", "token-2"}, tokens)
}

func TestDeliver_PartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body transform.Document
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.DocumentID == "102_2" {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]string{"error": "duplicate document"})
			return
		}
		accepted(w, body.DocumentID)
	}))
	defer srv.Close()

	client := New(srv.URL, map[string]string{"cart-1": "t", "cart-2": "t"},
		time.Second, WithRetryPolicy(fastRetry(2)))

	confirmed := client.Deliver(context.Background(), testBatch())

	require.Len(t, confirmed, 2)
	assert.Equal(t, int64(101), confirmed[0].SourceID)
	assert.Equal(t, int64(103), confirmed[1].SourceID)
}

func TestDeliver_RetriesThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		accepted(w, "101_1")
	}))
	defer srv.Close()

	client := New(srv.URL, map[string]string{"cart-1": "t"},
		time.Second, WithRetryPolicy(fastRetry(3)))

	confirmed := client.Deliver(context.Background(), testBatch()[:1])

	require.Len(t, confirmed, 1)
	assert.Equal(t, 3, attempts)
}

func TestDeliver_RetriesAreBounded(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(srv.URL, map[string]string{"cart-1": "t"},
		time.Second, WithRetryPolicy(fastRetry(3)))

	confirmed := client.Deliver(context.Background(), testBatch()[:1])

	assert.Empty(t, confirmed)
	assert.Equal(t, 3, attempts)
}

func TestDeliver_UnknownFacilitySendsEmptyCredential(t *testing.T) {
	var gotToken string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("Authorization")
		// Remote rejects the unauthorized request.
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := New(srv.URL, map[string]string{"cart-1": "t"},
		time.Second, WithRetryPolicy(fastRetry(1)))

	batch := []transform.Record{{SourceID: 1, Facility: "no-such-facility"}}
	confirmed := client.Deliver(context.Background(), batch)

	assert.Empty(t, confirmed)
	assert.Equal(t, "", gotToken)
}

func TestDeliver_TransportFaultIsPerRecord(t *testing.T) {
	// Point at a closed server: every request fails at the transport level.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := New(srv.URL, nil, time.Second, WithRetryPolicy(fastRetry(1)))

	// Must not panic or error, just return nothing confirmed.
	confirmed := client.Deliver(context.Background(), testBatch())
	assert.Empty(t, confirmed)
}

func TestDeliver_CancelledContextDefersBatch(t *testing.T) {
	var mu sync.Mutex
	requests := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		accepted(w, "101_1")
	}))
	defer srv.Close()

	client := New(srv.URL, map[string]string{"cart-1": "t"},
		time.Second, WithRetryPolicy(fastRetry(1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	confirmed := client.Deliver(ctx, testBatch())

	// Shutdown before delivery: nothing sent, everything deferred to the
	// next cycle.
	assert.Empty(t, confirmed)
	assert.Equal(t, 0, requests)
}
