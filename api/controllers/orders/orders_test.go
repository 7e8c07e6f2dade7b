package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickcart/quickcart-backend/api/middleware"
	internalorders "github.com/quickcart/quickcart-backend/internal/orders"
	"github.com/quickcart/quickcart-backend/pkg/enums"
	pkgerrors "github.com/quickcart/quickcart-backend/pkg/errors"
	"github.com/quickcart/quickcart-backend/pkg/pagination"
	"github.com/quickcart/quickcart-backend/pkg/types"
)

type stubOrdersService struct {
	listParams   internalorders.ListParams
	listUser     uuid.UUID
	cancelled    uuid.UUID
	statusUpdate enums.OrderStatus
	err          error
}

func (s *stubOrdersService) List(ctx context.Context, userID uuid.UUID, params internalorders.ListParams) (*internalorders.OrderList, error) {
	s.listUser = userID
	s.listParams = params
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.OrderList{
		Data: []internalorders.OrderView{{OrderNumber: "ORD-20260101-AAAAAAAA"}},
		Meta: pagination.Meta{CurrentPage: 2, LastPage: 3, PerPage: 15, Total: 31},
	}, nil
}

func (s *stubOrdersService) Get(ctx context.Context, userID, orderID uuid.UUID) (*internalorders.OrderView, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &internalorders.OrderView{ID: orderID, UserID: userID}, nil
}

func (s *stubOrdersService) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*internalorders.OrderView, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.cancelled = orderID
	return &internalorders.OrderView{ID: orderID, Status: enums.OrderStatusCancelled}, nil
}

func (s *stubOrdersService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status enums.OrderStatus) (*internalorders.OrderView, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.statusUpdate = status
	return &internalorders.OrderView{ID: orderID, Status: status}, nil
}

func userRequest(method, target string, body string, userID uuid.UUID, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = middleware.WithPrincipal(ctx, types.UserPrincipal(userID))
	return req.WithContext(ctx)
}

func TestListWritesFlatPage(t *testing.T) {
	svc := &stubOrdersService{}
	userID := uuid.New()
	rec := httptest.NewRecorder()

	List(svc, nil).ServeHTTP(rec, userRequest(http.MethodGet, "/api/v1/orders?page=2&status=Shipped", "", userID, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, svc.listUser)
	assert.Equal(t, 2, svc.listParams.Page)
	require.NotNil(t, svc.listParams.Status)
	assert.Equal(t, enums.OrderStatusShipped, *svc.listParams.Status)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["current_page"])
	assert.Equal(t, float64(3), body["last_page"])
	assert.Equal(t, float64(15), body["per_page"])
	assert.Equal(t, float64(31), body["total"])
	assert.Len(t, body["data"], 1)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	svc := &stubOrdersService{}
	rec := httptest.NewRecorder()

	List(svc, nil).ServeHTTP(rec, userRequest(http.MethodGet, "/api/v1/orders?status=lost", "", uuid.New(), nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDetailMapsNotFound(t *testing.T) {
	svc := &stubOrdersService{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	rec := httptest.NewRecorder()
	orderID := uuid.New()

	Detail(svc, nil).ServeHTTP(rec, userRequest(http.MethodGet, "/api/v1/orders/"+orderID.String(), "", uuid.New(), map[string]string{"orderId": orderID.String()}))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDetailRejectsBadID(t *testing.T) {
	rec := httptest.NewRecorder()
	Detail(&stubOrdersService{}, nil).ServeHTTP(rec, userRequest(http.MethodGet, "/api/v1/orders/x", "", uuid.New(), map[string]string{"orderId": "x"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancel(t *testing.T) {
	svc := &stubOrdersService{}
	orderID := uuid.New()
	rec := httptest.NewRecorder()

	Cancel(svc, nil).ServeHTTP(rec, userRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/cancel", "", uuid.New(), map[string]string{"orderId": orderID.String()}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orderID, svc.cancelled)
}

func TestCancelStateConflict(t *testing.T) {
	svc := &stubOrdersService{err: pkgerrors.New(pkgerrors.CodeStateConflict, "Order cannot be cancelled")}
	orderID := uuid.New()
	rec := httptest.NewRecorder()

	Cancel(svc, nil).ServeHTTP(rec, userRequest(http.MethodPost, "/", "", uuid.New(), map[string]string{"orderId": orderID.String()}))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Order cannot be cancelled")
}

func TestAdminUpdateStatus(t *testing.T) {
	svc := &stubOrdersService{}
	orderID := uuid.New()
	params := map[string]string{"orderId": orderID.String()}

	rec := httptest.NewRecorder()
	AdminUpdateStatus(svc, nil).ServeHTTP(rec, userRequest(http.MethodPatch, "/", `{"status":"shipped"}`, uuid.New(), params))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.OrderStatusShipped, svc.statusUpdate)

	rec = httptest.NewRecorder()
	AdminUpdateStatus(svc, nil).ServeHTTP(rec, userRequest(http.MethodPatch, "/", `{"status":"lost"}`, uuid.New(), params))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
