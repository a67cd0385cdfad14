package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"restopos/backend/internal/domain"
)

func (a *API) handleParkOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.ParkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	res, err := a.service.Park(r.Context(), req)
	writeResult(w, res, err)
}

func (a *API) handleCheckoutOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.CheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	res, err := a.service.Checkout(r.Context(), req)
	writeResult(w, res, err)
}

func (a *API) handleVoidOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.VoidRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx, ok := a.elevate(w, r, req.ManagerPIN)
	if !ok {
		return
	}
	req.OrderID = r.PathValue("id")
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	res, err := a.service.Void(ctx, req)
	writeResult(w, res, err)
}

func (a *API) handleRefundOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.RefundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx, ok := a.elevate(w, r, req.ManagerPIN)
	if !ok {
		return
	}
	req.OrderID = r.PathValue("id")
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	res, err := a.service.Refund(ctx, req)
	writeResult(w, res, err)
}

func (a *API) handleChangeItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.ChangeItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ctx, ok := a.elevate(w, r, req.ManagerPIN)
	if !ok {
		return
	}
	req.OrderID = r.PathValue("id")
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	res, err := a.service.ChangeItem(ctx, req)
	writeResult(w, res, err)
}

func (a *API) handleSendToKitchen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.KitchenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.OrderID = r.PathValue("id")

	res, err := a.service.SendToKitchen(r.Context(), req)
	writeResult(w, res, err)
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	filter, err := parseSaleFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := a.service.ListSales(r.Context(), filter)
	writeResult(w, res, err)
}

func (a *API) handleSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	res, err := a.service.GetSale(r.Context(), r.PathValue("id"))
	writeResult(w, res, err)
}

func (a *API) handleOpenDrawer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.DrawerOpenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	res, err := a.service.OpenDrawer(r.Context(), req)
	writeResult(w, res, err)
}

func (a *API) handleCloseDrawer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.DrawerCloseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	res, err := a.service.CloseDrawer(r.Context(), req)
	writeResult(w, res, err)
}

func (a *API) handleCashIn(w http.ResponseWriter, r *http.Request) {
	a.handleCashMovement(w, r, false)
}

func (a *API) handleCashOut(w http.ResponseWriter, r *http.Request) {
	a.handleCashMovement(w, r, true)
}

func (a *API) handleCashMovement(w http.ResponseWriter, r *http.Request, out bool) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req struct {
		domain.CashMovementRequest
		ManagerPIN string `json:"manager_pin,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.IdempotencyKey = idempotencyKey(r, req.IdempotencyKey)

	if !out {
		res, err := a.service.CashIn(r.Context(), req.CashMovementRequest)
		writeResult(w, res, err)
		return
	}
	ctx, ok := a.elevate(w, r, req.ManagerPIN)
	if !ok {
		return
	}
	res, err := a.service.CashOut(ctx, req.CashMovementRequest)
	writeResult(w, res, err)
}

func (a *API) handleCurrentDrawer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	res, err := a.service.CurrentDrawer(r.Context())
	writeResult(w, res, err)
}

func (a *API) handleDrawer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	res, err := a.service.GetDrawer(r.Context(), r.PathValue("id"))
	writeResult(w, res, err)
}

func (a *API) handleDrawerHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 20, 200)
	res, err := a.service.DrawerHistory(r.Context(), limit)
	writeResult(w, res, err)
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.ListProducts(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleProductRecipe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	recipe, err := a.service.ListRecipe(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipe": recipe})
}

func (a *API) handleProductCost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	quantity := parsePositiveLimit(r.URL.Query().Get("quantity"), 1, 1000)
	quote, err := a.service.QuoteCost(r.Context(), r.PathValue("id"), quantity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (a *API) handleIngredients(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ingredients, err := a.service.ListIngredients(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ingredients": ingredients})
	case http.MethodPost:
		var req domain.IngredientCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ingredient, err := a.service.CreateIngredient(r.Context(), req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"ingredient": ingredient})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleReceiveStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.StockReceiveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.IngredientID = r.PathValue("id")

	movement, err := a.service.ReceiveStock(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movement": movement})
}

func (a *API) handleMovements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 500)
	movements, err := a.service.ListMovements(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
}

func (a *API) handleRecipes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.RecipeLineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	line, err := a.service.SetRecipeLine(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recipe_line": line})
}

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
	logs, err := a.service.ListAuditLogs(r.Context(), r.URL.Query().Get("date"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"audit_logs": logs})
}

func (a *API) handleCashiers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"cashiers": a.auth.ListCashiers(r.Context())})
	case http.MethodPost:
		var req domain.CashierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		cashier, err := a.auth.CreateCashier(r.Context(), req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"cashier": cashier})
	default:
		writeMethodNotAllowed(w)
	}
}

// parseSaleFilter reads status, from, to, include_deleted and limit. Dates
// may be RFC 3339 timestamps or plain YYYY-MM-DD days; a plain "to" day is
// inclusive.
func parseSaleFilter(q url.Values) (domain.SaleFilter, error) {
	filter := domain.SaleFilter{
		Status: strings.ToUpper(strings.TrimSpace(q.Get("status"))),
		Limit:  parsePositiveLimit(q.Get("limit"), 100, 500),
	}
	if raw := strings.TrimSpace(q.Get("include_deleted")); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.SaleFilter{}, errors.New("include_deleted must be a boolean")
		}
		filter.IncludeDeleted = include
	}

	var err error
	if filter.From, _, err = parseTimeParam(q.Get("from")); err != nil {
		return domain.SaleFilter{}, fmt.Errorf("from: %w", err)
	}
	var dayOnly bool
	if filter.To, dayOnly, err = parseTimeParam(q.Get("to")); err != nil {
		return domain.SaleFilter{}, fmt.Errorf("to: %w", err)
	}
	if dayOnly {
		filter.To = filter.To.Add(24 * time.Hour)
	}
	return filter, nil
}

func parseTimeParam(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, false, errors.New("expected RFC 3339 or YYYY-MM-DD")
	}
	return t.UTC(), true, nil
}
