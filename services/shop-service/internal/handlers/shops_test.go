package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/beanscout/beanscout/services/shop-service/internal/policy"
)

// Validation runs before any storage access, so a handler with nil repos
// is enough to exercise the rejection paths.
func newValidationHandler() *Handler {
	return New(nil, nil, nil, nil, nil, nil, policy.NewStaticProvider(5))
}

func TestSubmitShopRejectsMissingFields(t *testing.T) {
	h := newValidationHandler()

	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/shops", strings.NewReader(`{"name":"Brew Corner"}`))
	req.Header.Set("X-User-Id", "user-1")
	rw := httptest.NewRecorder()
	h.SubmitShop(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing city, got %d", rw.Code)
	}

	reqNoUser := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/shops", strings.NewReader(`{"name":"Brew Corner","city":"Leeds"}`))
	rwNoUser := httptest.NewRecorder()
	h.SubmitShop(rwNoUser, reqNoUser)
	if rwNoUser.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing X-User-Id, got %d", rwNoUser.Code)
	}
}

func TestCreateReviewRejectsOutOfRangeRating(t *testing.T) {
	h := newValidationHandler()

	for _, rating := range []string{"0", "6", "-1"} {
		req := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/shops/reviews?shop_id=shop-1", strings.NewReader(`{"rating":`+rating+`}`))
		req.Header.Set("X-User-Id", "user-1")
		rw := httptest.NewRecorder()
		h.CreateReview(rw, req)
		if rw.Code != http.StatusBadRequest {
			t.Fatalf("rating %s: expected 400, got %d", rating, rw.Code)
		}
	}
}

func TestCreateReviewRequiresShopID(t *testing.T) {
	h := newValidationHandler()

	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/shops/reviews", strings.NewReader(`{"rating":4}`))
	req.Header.Set("X-User-Id", "user-1")
	rw := httptest.NewRecorder()
	h.CreateReview(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing shop_id, got %d", rw.Code)
	}
}

func TestModerateRequiresModeratorRole(t *testing.T) {
	h := newValidationHandler()

	req := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/shops/approve?id=shop-1", nil)
	req.Header.Set("X-User-Id", "user-1")
	req.Header.Set("X-Role", "user")
	rw := httptest.NewRecorder()
	h.ApproveShop(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-moderator, got %d", rw.Code)
	}

	reqReject := httptest.NewRequest(http.MethodPost, "http://example.com/api/v1/shops/reject?id=shop-1", nil)
	reqReject.Header.Set("X-User-Id", "user-1")
	rwReject := httptest.NewRecorder()
	h.RejectShop(rwReject, reqReject)
	if rwReject.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for missing role, got %d", rwReject.Code)
	}
}
