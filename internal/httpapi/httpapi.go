// Package httpapi exposes the terminal over HTTP for the Sepukopi front
// end. Each authenticated cashier gets their own cart and checkout machine;
// catalog, history and reporting are shared.
package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/tegarrizky11/sepukopi-pos/internal/cart"
	"github.com/tegarrizky11/sepukopi-pos/internal/catalog"
	"github.com/tegarrizky11/sepukopi-pos/internal/checkout"
	"github.com/tegarrizky11/sepukopi-pos/internal/domain"
	"github.com/tegarrizky11/sepukopi-pos/internal/history"
	"github.com/tegarrizky11/sepukopi-pos/internal/receipt"
	"github.com/tegarrizky11/sepukopi-pos/internal/session"
	"github.com/tegarrizky11/sepukopi-pos/internal/store"
)

type API struct {
	repo          store.Repository
	catalog       *catalog.View
	history       *history.Service
	auth          *AuthManager
	storeName     string
	verifyDelay   time.Duration
	allowedOrigin string
	loginLimiter  *attemptLimiter

	mu        sync.Mutex
	terminals map[string]*terminal
}

// terminal is one cashier's working state: their session, cart and checkout
// machine. Created lazily on login and kept for the process lifetime.
type terminal struct {
	sess    *session.Manager
	cart    *cart.Engine
	machine *checkout.Machine
}

func New(repo store.Repository, view *catalog.View, historySvc *history.Service, auth *AuthManager, storeName string, verifyDelay time.Duration, allowedOrigin string) *API {
	return &API{
		repo:          repo,
		catalog:       view,
		history:       historySvc,
		auth:          auth,
		storeName:     storeName,
		verifyDelay:   verifyDelay,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		terminals:     make(map[string]*terminal),
	}
}

func (a *API) terminalFor(actor domain.Actor) *terminal {
	a.mu.Lock()
	defer a.mu.Unlock()

	term, ok := a.terminals[actor.Username]
	if !ok {
		sess := session.NewManager()
		engine := cart.NewEngine()
		term = &terminal{
			sess:    sess,
			cart:    engine,
			machine: checkout.NewMachine(engine, a.catalog, a.repo, sess, a.storeName, a.verifyDelay),
		}
		a.terminals[actor.Username] = term
	}
	return term
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/auth/login", a.handleLogin)
	mux.HandleFunc("/api/auth/logout", a.requireAuth(a.handleLogout, "cashier", "admin"))

	mux.HandleFunc("/api/products", a.requireAuth(a.handleProducts, "cashier", "admin"))
	mux.HandleFunc("/api/products/", a.requireAuth(a.handleProductActions, "admin"))

	mux.HandleFunc("/api/cart", a.requireAuth(a.handleCart, "cashier", "admin"))
	mux.HandleFunc("/api/cart/items", a.requireAuth(a.handleCartAdd, "cashier", "admin"))
	mux.HandleFunc("/api/cart/items/", a.requireAuth(a.handleCartItemActions, "cashier", "admin"))
	mux.HandleFunc("/api/cart/clear", a.requireAuth(a.handleCartClear, "cashier", "admin"))

	mux.HandleFunc("/api/checkout/cash", a.requireAuth(a.handleCheckoutCash, "cashier", "admin"))
	mux.HandleFunc("/api/checkout/qris", a.requireAuth(a.handleCheckoutQRIS, "cashier", "admin"))
	mux.HandleFunc("/api/checkout/qris/confirm", a.requireAuth(a.handleCheckoutQRISConfirm, "cashier", "admin"))
	mux.HandleFunc("/api/checkout/qris/cancel", a.requireAuth(a.handleCheckoutQRISCancel, "cashier", "admin"))

	mux.HandleFunc("/api/sales", a.requireAuth(a.handleSales, "cashier", "admin"))
	mux.HandleFunc("/api/sales/", a.requireAuth(a.handleSaleDetail, "cashier", "admin"))
	mux.HandleFunc("/api/sales/stats", a.requireAuth(a.handleSalesStats, "cashier", "admin"))
	mux.HandleFunc("/api/sales/report/daily", a.requireAuth(a.handleDailyReport, "cashier", "admin"))
	mux.HandleFunc("/api/sales/report/monthly", a.requireAuth(a.handleMonthlyReport, "cashier", "admin"))
	mux.HandleFunc("/api/sales/report/detailed", a.requireAuth(a.handleDetailedReport, "cashier", "admin"))
	mux.HandleFunc("/api/shift/close", a.requireAuth(a.handleShiftClose, "cashier", "admin"))

	mux.HandleFunc("/api/users", a.requireAuth(a.handleUsers, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(withActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	a.terminalFor(resp.User).sess.Establish(resp.Token, resp.User)
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	actor, _ := actorFromContext(r.Context())
	term := a.terminalFor(actor)
	term.sess.Clear()
	term.cart.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if strings.EqualFold(r.URL.Query().Get("refresh"), "true") || a.catalog.LastRefreshed().IsZero() {
			if err := a.catalog.Refresh(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": a.catalog.Products()})
	case http.MethodPost:
		actor, ok := actorFromContext(r.Context())
		if !ok || actor.Role != domain.RoleAdmin {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		product, err := a.repo.CreateProduct(r.Context(), domain.Product{
			Name:          strings.TrimSpace(req.Name),
			SalePrice:     req.SalePrice,
			CostPrice:     req.CostPrice,
			StockQuantity: req.StockQuantity,
		})
		if err != nil {
			status := http.StatusUnprocessableEntity
			if errors.Is(err, store.ErrInvalidSale) {
				status = http.StatusBadRequest
			}
			if errors.Is(err, store.ErrDuplicateProduct) {
				status = http.StatusConflict
			}
			writeError(w, status, err)
			return
		}
		a.refreshCatalog(r.Context())
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/products/"), "/"))
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("product id required"))
		return
	}

	switch r.Method {
	case http.MethodPut:
		current, err := a.repo.GetProduct(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.Name != nil {
			current.Name = strings.TrimSpace(*req.Name)
		}
		if req.SalePrice != nil {
			current.SalePrice = *req.SalePrice
		}
		if req.CostPrice != nil {
			current.CostPrice = *req.CostPrice
		}
		if req.StockQuantity != nil {
			current.StockQuantity = *req.StockQuantity
		}

		updated, err := a.repo.UpdateProduct(r.Context(), *current)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		a.refreshCatalog(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"product": updated})
	case http.MethodDelete:
		if err := a.repo.DeleteProduct(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		a.refreshCatalog(r.Context())
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) refreshCatalog(ctx context.Context) {
	if err := a.catalog.Refresh(ctx); err != nil {
		log.Printf("[httpapi] WARN: catalog refresh failed: %v", err)
	}
}

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	actor, _ := actorFromContext(r.Context())
	term := a.terminalFor(actor)
	writeJSON(w, http.StatusOK, cartPayload(term))
}

func (a *API) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		ProductID string `json:"product_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, errors.New("product_id required"))
		return
	}

	product, ok := a.catalog.Get(req.ProductID)
	if !ok {
		writeError(w, http.StatusNotFound, store.ErrNotFound)
		return
	}

	actor, _ := actorFromContext(r.Context())
	term := a.terminalFor(actor)
	if err := term.cart.Add(product); err != nil {
		if errors.Is(err, cart.ErrOutOfStock) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, cartPayload(term))
}

func (a *API) handleCartItemActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/cart/items/"), "/")
	if !strings.HasSuffix(tail, "/decrement") {
		writeError(w, http.StatusBadRequest, errors.New("unknown cart item action"))
		return
	}
	productID := strings.TrimSpace(strings.Trim(strings.TrimSuffix(tail, "/decrement"), "/"))
	if productID == "" {
		writeError(w, http.StatusBadRequest, errors.New("product id required"))
		return
	}

	actor, _ := actorFromContext(r.Context())
	term := a.terminalFor(actor)
	term.cart.Decrement(productID)
	writeJSON(w, http.StatusOK, cartPayload(term))
}

func (a *API) handleCartClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	actor, _ := actorFromContext(r.Context())
	term := a.terminalFor(actor)
	term.cart.Clear()
	writeJSON(w, http.StatusOK, cartPayload(term))
}

func cartPayload(term *terminal) map[string]any {
	lines := term.cart.Lines()
	items := make([]map[string]any, 0, len(lines))
	for _, line := range lines {
		items = append(items, map[string]any{
			"product":  line.Product,
			"qty":      line.Qty,
			"subtotal": line.Subtotal(),
		})
	}
	return map[string]any{
		"items": items,
		"total": term.cart.Total(),
		"state": term.machine.State(),
	}
}

func (a *API) handleCheckoutCash(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		AmountPaid int64 `json:"amount_paid"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	actor, _ := actorFromContext(r.Context())
	term := a.terminalFor(actor)
	result, err := term.machine.PayCash(r.Context(), req.AmountPaid)
	if err != nil {
		writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCheckoutQRIS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	actor, _ := actorFromContext(r.Context())
	term := a.terminalFor(actor)
	total, err := term.machine.StartQRIS(r.Context())
	if err != nil {
		writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total": total,
		"state": term.machine.State(),
	})
}

func (a *API) handleCheckoutQRISConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	actor, _ := actorFromContext(r.Context())
	term := a.terminalFor(actor)
	result, err := term.machine.ConfirmQRIS(r.Context())
	if err != nil {
		writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleCheckoutQRISCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	actor, _ := actorFromContext(r.Context())
	term := a.terminalFor(actor)
	if err := term.machine.CancelQRIS(); err != nil {
		writeCheckoutError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": term.machine.State()})
}

func writeCheckoutError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkout.ErrEmptyCart), errors.Is(err, checkout.ErrNoActiveQRIS):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, checkout.ErrInsufficientPayment):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, checkout.ErrSubmissionInFlight), errors.Is(err, checkout.ErrSubmissionFailed):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusUnprocessableEntity, err)
	}
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	if err := a.history.Activate(r.Context()); err != nil {
		// Stale view still renders; surface the failure in the payload.
		log.Printf("[httpapi] WARN: sales view activation: %v", err)
	}

	filter := domain.HistoryFilter{
		StartDate: strings.TrimSpace(r.URL.Query().Get("start_date")),
		EndDate:   strings.TrimSpace(r.URL.Query().Get("end_date")),
		Method:    strings.TrimSpace(r.URL.Query().Get("payment")),
	}
	records, summary := a.history.Query(filter)
	writeJSON(w, http.StatusOK, map[string]any{
		"sales":   records,
		"summary": summary,
		"today":   a.history.Today(time.Now()),
	})
}

func (a *API) handleSaleDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	id := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/sales/"), "/"))
	if id == "" {
		writeError(w, http.StatusBadRequest, errors.New("sale id required"))
		return
	}

	sale, err := a.history.Detail(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": sale})
}

func (a *API) handleSalesStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	stats, err := a.repo.DailyStats(r.Context(), date)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	report, err := a.repo.MonthlyReport(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (a *API) handleDetailedReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	sales, err := a.repo.DetailedReport(r.Context(), date)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sales": sales})
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	a.writeDailyReport(w, r)
}

// handleShiftClose produces the same-day revenue report. Closing a shift is
// this report and nothing more; no server-side lock is taken.
func (a *API) handleShiftClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	a.writeDailyReport(w, r)
}

func (a *API) writeDailyReport(w http.ResponseWriter, r *http.Request) {
	if err := a.history.Activate(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}

	now := time.Now()
	summary, err := a.history.DailyReport(now)
	if err != nil {
		if errors.Is(err, history.ErrNoSalesToday) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"summary": summary,
		"receipt": receipt.BuildDailyReport(a.storeName, now, summary),
	})
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	accounts, err := a.auth.ListAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": accounts})
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidSale):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, store.ErrInsufficientStock), errors.Is(err, store.ErrDuplicateProduct):
		writeError(w, http.StatusConflict, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	attempts := l.entries[key]
	kept := make([]time.Time, 0, len(attempts)+1)
	for _, ts := range attempts {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}
