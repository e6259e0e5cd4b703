// internal/service/stock/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"stockhub/internal/pkg/logger"
	"stockhub/internal/pkg/metrics"
	"stockhub/internal/service/stock/application"
	"stockhub/internal/service/stock/domain"
)

const serviceName = "stock-service"

// StockHandler 封装了 stock 服务的 HTTP 处理器
type StockHandler struct {
	manager  *application.ReservationManager
	checkout *application.CheckoutService
	payments *application.PaymentOutcomeService
	expiry   *application.ExpiryService
	tracer   trace.Tracer
}

func NewStockHandler(manager *application.ReservationManager, checkout *application.CheckoutService,
	payments *application.PaymentOutcomeService, expiry *application.ExpiryService) *StockHandler {
	return &StockHandler{
		manager:  manager,
		checkout: checkout,
		payments: payments,
		expiry:   expiry,
		tracer:   otel.Tracer(serviceName),
	}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *StockHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/stock/block", h.traced("http.BlockStock", h.block))
	mux.HandleFunc("POST /api/stock/commit", h.traced("http.CommitStock", h.settle(domain.OpCommit)))
	mux.HandleFunc("POST /api/stock/release", h.traced("http.ReleaseStock", h.settle(domain.OpRelease)))
	mux.HandleFunc("POST /api/stock/sweep", h.traced("http.SweepExpired", h.sweep))
	mux.HandleFunc("GET /api/stock/orders/{id}", h.traced("http.InspectReservation", h.inspect))
	mux.HandleFunc("GET /api/stock/products/{id}", h.traced("http.GetProductStock", h.product))

	mux.HandleFunc("POST /api/checkout", h.traced("http.Checkout", h.placeOrder))
	mux.HandleFunc("POST /api/payment/webhook", h.traced("http.PaymentWebhook", h.paymentWebhook))
}

// traced 从请求头中恢复上游的追踪上下文并开启服务端 span
func (h *StockHandler) traced(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := h.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		span.SetAttributes(attribute.String("http.method", r.Method), attribute.String("http.route", r.URL.Path))
		next(w, r.WithContext(ctx))
	}
}

func (h *StockHandler) block(w http.ResponseWriter, r *http.Request) {
	var req application.BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}
	if err := h.manager.Block(r.Context(), req.OrderID, req.Items); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, domain.Result{OrderID: req.OrderID, State: domain.StateBlocked, Entries: len(req.Items), Units: units(req.Items)})
}

func (h *StockHandler) settle(op domain.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID := r.URL.Query().Get("order_id")
		if orderID == "" {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "order_id is required"})
			return
		}
		var (
			result domain.Result
			err    error
		)
		if op == domain.OpCommit {
			result, err = h.manager.Commit(r.Context(), orderID)
		} else {
			result, err = h.manager.Release(r.Context(), orderID)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (h *StockHandler) sweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.expiry.SweepExpired(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *StockHandler) inspect(w http.ResponseWriter, r *http.Request) {
	res, err := h.manager.Inspect(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *StockHandler) product(w http.ResponseWriter, r *http.Request) {
	p, err := h.manager.Product(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productView{Product: p, Available: p.Available()})
}

func (h *StockHandler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req application.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}
	resp, err := h.checkout.PlaceOrder(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// paymentWebhook 接收支付渠道的通知。签名校验由网关负责。
func (h *StockHandler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	var outcome domain.PaymentOutcome
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}
	resp, err := h.payments.Apply(r.Context(), outcome)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type errorBody struct {
	Error     string `json:"error"`
	ProductID string `json:"product_id,omitempty"`
	Requested int    `json:"requested,omitempty"`
	Available *int   `json:"available,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type productView struct {
	*domain.Product
	Available int `json:"available"`
}

// writeError 把领域错误映射为 HTTP 状态码
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError

	var insufficient *domain.InsufficientStockError
	var missing *domain.ProductNotFoundError
	switch {
	case errors.As(err, &insufficient):
		status = http.StatusConflict
		body.ProductID = insufficient.ProductID
		body.Requested = insufficient.Requested
		body.Available = &insufficient.Available
	case errors.As(err, &missing):
		status = http.StatusNotFound
		body.ProductID = missing.ProductID
	case errors.Is(err, domain.ErrInsufficientStock):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrProductNotFound), errors.Is(err, domain.ErrOrderNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidItems), errors.Is(err, domain.ErrItemRejected):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrTransactionFailure):
		status = http.StatusServiceUnavailable
		body.Retryable = domain.IsRetryable(err)
	}

	if status >= http.StatusInternalServerError {
		logger.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("Request failed")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func units(items []domain.Item) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}
