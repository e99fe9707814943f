package webhooks

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	pkgwebhooks "github.com/altovisual/artist-management/pkg/webhooks"
	"github.com/altovisual/artist-management/services/signing/internal/store"
	"go.uber.org/zap"
)

const testSecret = "whsec_shared"

type row struct {
	contractID int64
	status     store.SignatureStatus
	signedAt   *time.Time
}

// fakeSignatureStore mirrors the conditional update the real store issues.
type fakeSignatureStore struct {
	rows     map[string][]*row
	calls    int
	applyErr error
}

func (f *fakeSignatureStore) ApplySignatureStatus(ctx context.Context, requestID string, target store.SignatureStatus, allowedFrom []store.SignatureStatus, at time.Time) (store.ApplyResult, error) {
	f.calls++
	if f.applyErr != nil {
		return store.ApplyResult{}, f.applyErr
	}
	var res store.ApplyResult
	seen := map[int64]bool{}
	for _, r := range f.rows[requestID] {
		res.Matched++
		if !seen[r.contractID] {
			seen[r.contractID] = true
			res.ContractIDs = append(res.ContractIDs, r.contractID)
		}
		for _, from := range allowedFrom {
			if r.status == from {
				r.status = target
				if target == store.SignatureSigned && r.signedAt == nil {
					ts := at
					r.signedAt = &ts
				}
				res.Updated++
				break
			}
		}
	}
	return res, nil
}

type recordingCache struct{ invalidated []int64 }

func (c *recordingCache) Generation(context.Context, int64) (int64, bool)  { return 0, false }
func (c *recordingCache) Get(context.Context, int64, int64) ([]byte, bool) { return nil, false }
func (c *recordingCache) Set(context.Context, int64, int64, []byte)        {}
func (c *recordingCache) Invalidate(ctx context.Context, ids ...int64) {
	c.invalidated = append(c.invalidated, ids...)
}

func newTestReconciler(st *fakeSignatureStore, c *recordingCache, now time.Time) *Reconciler {
	return NewReconciler(st, Options{
		Secret: testSecret,
		Cache:  c,
		Now:    func() time.Time { return now },
	}, zap.NewNop())
}

func deliver(h *Reconciler, body string, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/signature-provider", bytes.NewReader([]byte(body)))
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rr := httptest.NewRecorder()
	h.HandleWebhook(rr, req)
	return rr
}

func TestHandleWebhook_SignedIsIdempotent(t *testing.T) {
	r := &row{contractID: 42, status: store.SignaturePending}
	st := &fakeSignatureStore{rows: map[string][]*row{"abc-123": {r}}}
	c := &recordingCache{}
	first := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	h := newTestReconciler(st, c, first)

	rr := deliver(h, `{"correlation":"abc-123","event":"completed"}`, "Bearer "+testSecret)
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "{\"success\":true}\n" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
	if r.status != store.SignatureSigned || r.signedAt == nil || !r.signedAt.Equal(first) {
		t.Fatalf("expected signed at %v, got %+v", first, r)
	}
	if len(c.invalidated) != 1 || c.invalidated[0] != 42 {
		t.Fatalf("expected cache invalidation for 42, got %v", c.invalidated)
	}

	h.now = func() time.Time { return first.Add(time.Hour) }
	rr = deliver(h, `{"correlation":"abc-123","event":"completed"}`, "Bearer "+testSecret)
	if rr.Code != 200 {
		t.Fatalf("expected 200 on replay, got %d", rr.Code)
	}
	if r.status != store.SignatureSigned || !r.signedAt.Equal(first) {
		t.Fatalf("replay changed the row: %+v", r)
	}
	if len(c.invalidated) != 1 {
		t.Fatalf("expected no invalidation for a no-op replay, got %v", c.invalidated)
	}
}

func TestHandleWebhook_TerminalStatesDoNotRegress(t *testing.T) {
	signedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := &row{contractID: 1, status: store.SignatureSigned, signedAt: &signedAt}
	st := &fakeSignatureStore{rows: map[string][]*row{"sr_1": {r}}}
	h := newTestReconciler(st, &recordingCache{}, time.Now())

	for _, ev := range []string{"sent", "expired", "signature_request_sent"} {
		rr := deliver(h, `{"signature_request_id":"sr_1","event_type":"`+ev+`"}`, "Bearer "+testSecret)
		if rr.Code != 200 {
			t.Fatalf("event %s expected 200, got %d", ev, rr.Code)
		}
	}
	if r.status != store.SignatureSigned || !r.signedAt.Equal(signedAt) {
		t.Fatalf("terminal row regressed: %+v", r)
	}
}

func TestHandleWebhook_SentThenExpired(t *testing.T) {
	r := &row{contractID: 3, status: store.SignaturePending}
	st := &fakeSignatureStore{rows: map[string][]*row{"sr_3": {r}}}
	h := newTestReconciler(st, &recordingCache{}, time.Now())

	deliver(h, `{"correlation_id":"sr_3","status":"document_sent"}`, "Bearer "+testSecret)
	if r.status != store.SignatureSent {
		t.Fatalf("expected sent, got %s", r.status)
	}
	deliver(h, `{"correlation_id":"sr_3","status":"document_expired"}`, "Bearer "+testSecret)
	if r.status != store.SignatureExpired || r.signedAt != nil {
		t.Fatalf("expected expired without signed_at, got %+v", r)
	}
}

func TestHandleWebhook_AuthFailuresTouchNothing(t *testing.T) {
	cases := map[string]string{
		"missing header": "",
		"wrong secret":   "Bearer nope",
		"basic scheme":   "Basic " + testSecret,
	}
	for name, auth := range cases {
		st := &fakeSignatureStore{rows: map[string][]*row{"abc-123": {{status: store.SignaturePending}}}}
		h := newTestReconciler(st, &recordingCache{}, time.Now())
		rr := deliver(h, `{"correlation":"abc-123","event":"completed"}`, auth)
		if rr.Code != 401 {
			t.Fatalf("%s: expected 401, got %d", name, rr.Code)
		}
		if st.calls != 0 {
			t.Fatalf("%s: expected no store access", name)
		}
	}
}

func TestHandleWebhook_EmptySecretFailsClosed(t *testing.T) {
	st := &fakeSignatureStore{}
	h := NewReconciler(st, Options{}, zap.NewNop())
	rr := deliver(h, `{"correlation":"abc-123","event":"completed"}`, "Bearer ")
	if rr.Code != 401 {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if st.calls != 0 {
		t.Fatalf("expected no store access")
	}
}

func TestHandleWebhook_HMACScheme(t *testing.T) {
	r := &row{contractID: 8, status: store.SignaturePending}
	st := &fakeSignatureStore{rows: map[string][]*row{"sr_8": {r}}}
	h := NewReconciler(st, Options{Verifier: pkgwebhooks.NewGenericHMACVerifier(), Secret: testSecret}, zap.NewNop())

	body := []byte(`{"correlation":"sr_8","event":"signed"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/signature-provider", bytes.NewReader(body))
	req.Header.Set("X-Signature", hex.EncodeToString(pkgwebhooks.SignBody(testSecret, body)))
	rr := httptest.NewRecorder()
	h.HandleWebhook(rr, req)
	if rr.Code != 200 || r.status != store.SignatureSigned {
		t.Fatalf("expected signed via hmac, code=%d row=%+v", rr.Code, r)
	}
}

func TestHandleWebhook_BadRequests(t *testing.T) {
	cases := map[string]string{
		"not json":            `not-json`,
		"array":               `[{"correlation":"a","event":"signed"}]`,
		"missing correlation": `{"event":"completed"}`,
		"missing event":       `{"correlation":"abc-123"}`,
		"empty batch":         `{"events":[]}`,
		"batch item missing":  `{"events":[{"correlation":"a","event":"signed"},{"correlation":"b"}]}`,
	}
	for name, body := range cases {
		st := &fakeSignatureStore{}
		h := newTestReconciler(st, &recordingCache{}, time.Now())
		rr := deliver(h, body, "Bearer "+testSecret)
		if rr.Code != 400 {
			t.Fatalf("%s: expected 400, got %d body=%s", name, rr.Code, rr.Body.String())
		}
		if st.calls != 0 {
			t.Fatalf("%s: expected no store access", name)
		}
	}
}

func TestHandleWebhook_UnknownEventAcknowledged(t *testing.T) {
	r := &row{contractID: 5, status: store.SignaturePending}
	st := &fakeSignatureStore{rows: map[string][]*row{"abc-123": {r}}}
	h := newTestReconciler(st, &recordingCache{}, time.Now())
	rr := deliver(h, `{"correlation":"abc-123","event":"signature_request_viewed"}`, "Bearer "+testSecret)
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if st.calls != 0 || r.status != store.SignaturePending {
		t.Fatalf("expected no write for unknown event")
	}
}

func TestHandleWebhook_UnmatchedCorrelationSucceeds(t *testing.T) {
	r := &row{contractID: 5, status: store.SignaturePending}
	st := &fakeSignatureStore{rows: map[string][]*row{"abc-123": {r}}}
	h := newTestReconciler(st, &recordingCache{}, time.Now())
	rr := deliver(h, `{"correlation":"zzz-999","event":"completed"}`, "Bearer "+testSecret)
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if r.status != store.SignaturePending {
		t.Fatalf("unrelated row changed: %+v", r)
	}
}

func TestHandleWebhook_BatchAppliesAll(t *testing.T) {
	a := &row{contractID: 1, status: store.SignaturePending}
	b := &row{contractID: 2, status: store.SignatureSent}
	st := &fakeSignatureStore{rows: map[string][]*row{"sr_a": {a}, "sr_b": {b}}}
	c := &recordingCache{}
	h := newTestReconciler(st, c, time.Now())
	rr := deliver(h, `{"events":[{"correlation":"sr_a","event":"signed"},{"signature_request":{"signature_request_id":"sr_b"},"event":{"event_type":"signature_request_signed"}}]}`, "Bearer "+testSecret)
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if a.status != store.SignatureSigned || b.status != store.SignatureSigned {
		t.Fatalf("expected both signed, got %s %s", a.status, b.status)
	}
	if len(c.invalidated) != 2 {
		t.Fatalf("expected both contracts invalidated, got %v", c.invalidated)
	}
}

func TestHandleWebhook_StorageErrorIs500(t *testing.T) {
	st := &fakeSignatureStore{applyErr: errors.New("deadlock detected")}
	h := newTestReconciler(st, &recordingCache{}, time.Now())
	rr := deliver(h, `{"correlation":"abc-123","event":"completed"}`, "Bearer "+testSecret)
	if rr.Code != 500 {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestHandleWebhook_PayloadTooLarge(t *testing.T) {
	h := NewReconciler(&fakeSignatureStore{}, Options{Secret: testSecret, MaxBodyBytes: 16}, zap.NewNop())
	rr := deliver(h, `{"correlation":"abc-123","event":"completed"}`, "Bearer "+testSecret)
	if rr.Code != 413 {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
}

func TestHandleWebhook_UnauthenticatedOversizedBodyIs401(t *testing.T) {
	big := `{"correlation":"abc-123","event":"completed","pad":"` + strings.Repeat("x", 2<<20) + `"}`
	for name, auth := range map[string]string{"missing header": "", "wrong secret": "Bearer nope"} {
		st := &fakeSignatureStore{}
		h := newTestReconciler(st, &recordingCache{}, time.Now())
		rr := deliver(h, big, auth)
		if rr.Code != 401 {
			t.Fatalf("%s: expected 401, got %d body=%s", name, rr.Code, rr.Body.String())
		}
		if strings.Contains(rr.Body.String(), "PAYLOAD_TOO_LARGE") {
			t.Fatalf("%s: size limit disclosed to unauthenticated caller", name)
		}
	}

	h := newTestReconciler(&fakeSignatureStore{}, &recordingCache{}, time.Now())
	if rr := deliver(h, big, "Bearer "+testSecret); rr.Code != 413 {
		t.Fatalf("authenticated oversized body: expected 413, got %d", rr.Code)
	}
}
