package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
	"restopos/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	ingredients     map[string]domain.Ingredient
	recipes         map[string]map[string]domain.RecipeLine
	orders          map[string]domain.Order
	orderNos        map[string]string
	drawers         map[string]domain.CashDrawer
	openDrawerID    string
	movements       []domain.IngredientMovement
	idempotency     map[string]domain.IdempotencyRecord
	outbox          []domain.OutboxEvent
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		products:        make(map[string]domain.Product),
		ingredients:     make(map[string]domain.Ingredient),
		recipes:         make(map[string]map[string]domain.RecipeLine),
		orders:          make(map[string]domain.Order),
		orderNos:        make(map[string]string),
		drawers:         make(map[string]domain.CashDrawer),
		movements:       make([]domain.IngredientMovement, 0, 256),
		idempotency:     make(map[string]domain.IdempotencyRecord),
		outbox:          make([]domain.OutboxEvent, 0, 64),
		auditLogs:       make([]domain.AuditLog, 0, 128),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and
// SEED_CASHIER_PASSWORD. If unset, dev defaults are used with a warning.
// These accounts never exist in production, where DATABASE_URL is set.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"manager", managerPwd, "manager"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with a small demo menu and the seed accounts.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	d := decimal.RequireFromString

	for _, p := range []domain.Product{
		{ID: "prod-nasi-goreng", Name: "Nasi Goreng", Price: d("25000")},
		{ID: "prod-mie-ayam", Name: "Mie Ayam", Price: d("22000")},
		{ID: "prod-es-teh", Name: "Es Teh Manis", Price: d("8000")},
		{ID: "prod-telur-ceplok", Name: "Telur Ceplok", Price: d("5000")},
	} {
		p.Active = true
		p.CreatedAt = now
		s.products[p.ID] = p
	}

	for _, i := range []domain.Ingredient{
		{ID: "ing-beras", Name: "Beras", Unit: "kg", PricePerUnit: d("14000"), CurrentStock: d("25")},
		{ID: "ing-telur", Name: "Telur", Unit: "pcs", PricePerUnit: d("2200"), CurrentStock: d("120")},
		{ID: "ing-mie", Name: "Mie Basah", Unit: "kg", PricePerUnit: d("18000"), CurrentStock: d("10")},
		{ID: "ing-ayam", Name: "Daging Ayam", Unit: "kg", PricePerUnit: d("42000"), CurrentStock: d("8")},
		{ID: "ing-teh", Name: "Teh Celup", Unit: "pcs", PricePerUnit: d("500"), CurrentStock: d("200")},
		{ID: "ing-gula", Name: "Gula Pasir", Unit: "kg", PricePerUnit: d("17000"), CurrentStock: d("5")},
	} {
		i.Active = true
		i.UpdatedAt = now
		s.ingredients[i.ID] = i
	}

	for _, r := range []domain.RecipeLine{
		{ProductID: "prod-nasi-goreng", IngredientID: "ing-beras", QuantityUsed: d("0.15")},
		{ProductID: "prod-nasi-goreng", IngredientID: "ing-telur", QuantityUsed: d("1")},
		{ProductID: "prod-mie-ayam", IngredientID: "ing-mie", QuantityUsed: d("0.12")},
		{ProductID: "prod-mie-ayam", IngredientID: "ing-ayam", QuantityUsed: d("0.08")},
		{ProductID: "prod-es-teh", IngredientID: "ing-teh", QuantityUsed: d("1")},
		{ProductID: "prod-es-teh", IngredientID: "ing-gula", QuantityUsed: d("0.02")},
		{ProductID: "prod-telur-ceplok", IngredientID: "ing-telur", QuantityUsed: d("1")},
	} {
		r.Active = true
		if s.recipes[r.ProductID] == nil {
			s.recipes[r.ProductID] = make(map[string]domain.RecipeLine)
		}
		s.recipes[r.ProductID][r.IngredientID] = r
	}

	s.usersByUsername = seedUsers()
	return s
}

// WithinTx runs fn while holding the store lock. Every write made through
// the tx is recorded in an undo log that is replayed in reverse when fn
// returns an error or panics.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
		if err != nil {
			tx.rollback()
		}
	}()
	return fn(ctx, tx)
}

func (s *Store) GetOrder(_ context.Context, id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneOrder(order)
	return &out, nil
}

func (s *Store) ListOrders(_ context.Context, filter domain.SaleFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		if order.IsDeleted && !filter.IncludeDeleted {
			continue
		}
		if !filter.From.IsZero() && order.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !order.CreatedAt.Before(filter.To) {
			continue
		}
		result = append(result, cloneOrder(order))
	}
	slices.SortFunc(result, func(a, b domain.Order) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.OrderNo, a.OrderNo)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.productsByID(ids), nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(product.ID) == "" || strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() {
		return nil, fmt.Errorf("%w: product id, name and a non-negative price are required", store.ErrValidation)
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, fmt.Errorf("%w: product %s already exists", store.ErrConflict, product.ID)
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) ListIngredients(_ context.Context) ([]domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ingredients := make([]domain.Ingredient, 0, len(s.ingredients))
	for _, i := range s.ingredients {
		ingredients = append(ingredients, i)
	}
	slices.SortFunc(ingredients, func(a, b domain.Ingredient) int {
		return cmpString(a.Name, b.Name)
	})
	return ingredients, nil
}

func (s *Store) GetIngredients(_ context.Context, ids []string) (map[string]domain.Ingredient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ingredientsByID(ids), nil
}

func (s *Store) CreateIngredient(_ context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(ingredient.ID) == "" || strings.TrimSpace(ingredient.Name) == "" || strings.TrimSpace(ingredient.Unit) == "" {
		return nil, fmt.Errorf("%w: ingredient id, name and unit are required", store.ErrValidation)
	}
	if ingredient.PricePerUnit.IsNegative() {
		return nil, fmt.Errorf("%w: price per unit must not be negative", store.ErrValidation)
	}
	if _, exists := s.ingredients[ingredient.ID]; exists {
		return nil, fmt.Errorf("%w: ingredient %s already exists", store.ErrConflict, ingredient.ID)
	}
	if ingredient.UpdatedAt.IsZero() {
		ingredient.UpdatedAt = time.Now().UTC()
	}
	ingredient.Active = true
	s.ingredients[ingredient.ID] = ingredient
	created := ingredient
	return &created, nil
}

func (s *Store) ListRecipe(_ context.Context, productID string) ([]domain.RecipeLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recipeLines(productID, false), nil
}

func (s *Store) UpsertRecipeLine(_ context.Context, line domain.RecipeLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[line.ProductID]; !ok {
		return fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
	}
	if _, ok := s.ingredients[line.IngredientID]; !ok {
		return fmt.Errorf("ingredient %s: %w", line.IngredientID, store.ErrNotFound)
	}
	if !line.QuantityUsed.IsPositive() {
		return fmt.Errorf("%w: quantity used must be positive", store.ErrValidation)
	}
	if s.recipes[line.ProductID] == nil {
		s.recipes[line.ProductID] = make(map[string]domain.RecipeLine)
	}
	s.recipes[line.ProductID][line.IngredientID] = line
	return nil
}

func (s *Store) ListMovements(_ context.Context, ingredientID string, limit int) ([]domain.IngredientMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.IngredientMovement, 0, 32)
	for i := len(s.movements) - 1; i >= 0; i-- {
		movement := s.movements[i]
		if ingredientID != "" && movement.IngredientID != ingredientID {
			continue
		}
		result = append(result, movement)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) GetDrawer(_ context.Context, id string) (*domain.CashDrawer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	drawer, ok := s.drawers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneDrawer(drawer)
	return &out, nil
}

func (s *Store) GetOpenDrawer(_ context.Context) (*domain.CashDrawer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.openDrawerID == "" {
		return nil, store.ErrNotFound
	}
	out := cloneDrawer(s.drawers[s.openDrawerID])
	return &out, nil
}

func (s *Store) ListDrawers(_ context.Context, limit int) ([]domain.CashDrawer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.CashDrawer, 0, len(s.drawers))
	for _, drawer := range s.drawers {
		result = append(result, cloneDrawer(drawer))
	}
	slices.SortFunc(result, func(a, b domain.CashDrawer) int {
		if a.OpenedAt.Equal(b.OpenedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.OpenedAt.After(b.OpenedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) FetchPendingEvents(_ context.Context, limit int) ([]domain.OutboxEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.OutboxEvent, 0, limit)
	for _, ev := range s.outbox {
		if ev.PublishedAt != nil {
			continue
		}
		result = append(result, ev)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *Store) MarkEventsPublished(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outbox {
		if s.outbox[i].PublishedAt == nil && slices.Contains(ids, s.outbox[i].ID) {
			published := at
			s.outbox[i].PublishedAt = &published
		}
	}
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 64)
	for _, entry := range s.auditLogs {
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
	}

	slices.SortFunc(result, func(a, b domain.AuditLog) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrConflict
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

// The helpers below assume the caller holds s.mu.

func (s *Store) productsByID(ids []string) map[string]domain.Product {
	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			result[id] = p
		}
	}
	return result
}

func (s *Store) ingredientsByID(ids []string) map[string]domain.Ingredient {
	result := make(map[string]domain.Ingredient, len(ids))
	for _, id := range ids {
		if i, ok := s.ingredients[id]; ok {
			result[id] = i
		}
	}
	return result
}

func (s *Store) recipeLines(productID string, activeOnly bool) []domain.RecipeLine {
	lines := make([]domain.RecipeLine, 0, len(s.recipes[productID]))
	for _, line := range s.recipes[productID] {
		if activeOnly && !line.Active {
			continue
		}
		lines = append(lines, line)
	}
	slices.SortFunc(lines, func(a, b domain.RecipeLine) int {
		return cmpString(a.IngredientID, b.IngredientID)
	})
	return lines
}

func cmpString(a string, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cloneOrder(src domain.Order) domain.Order {
	out := src
	if src.CompletedAt != nil {
		completedAt := *src.CompletedAt
		out.CompletedAt = &completedAt
	}
	out.Lines = make([]domain.OrderLine, len(src.Lines))
	for i, line := range src.Lines {
		line.Recipe = append([]domain.RecipeComponent(nil), line.Recipe...)
		out.Lines[i] = line
	}
	return out
}

func cloneDrawer(src domain.CashDrawer) domain.CashDrawer {
	out := src
	if src.ClosingBalance != nil {
		v := *src.ClosingBalance
		out.ClosingBalance = &v
	}
	if src.ExpectedBalance != nil {
		v := *src.ExpectedBalance
		out.ExpectedBalance = &v
	}
	if src.ClosedAt != nil {
		v := *src.ClosedAt
		out.ClosedAt = &v
	}
	out.Transactions = append([]domain.CashTransaction{}, src.Transactions...)
	return out
}
