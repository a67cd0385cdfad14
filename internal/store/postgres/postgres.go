package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
	"restopos/backend/internal/xid"
)

//go:embed schema.sql
var schemaSQL string

// querier is satisfied by both *sql.DB and *sql.Tx so reads can be shared
// between the repository and a running transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithinTx runs fn in a SERIALIZABLE transaction. Serialization failures are
// reported as store.ErrRetryable.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(ctx, &pgTx{q: sqlTx}); err != nil {
		return classify(err)
	}
	if err := sqlTx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return loadOrder(ctx, s.db, id, false)
}

func (s *Store) ListOrders(ctx context.Context, filter domain.SaleFilter) ([]domain.Order, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 100
	}
	var from, to any
	if !filter.From.IsZero() {
		from = filter.From
	}
	if !filter.To.IsZero() {
		to = filter.To
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE ($1 = '' OR status = $1)
			AND ($2 OR is_deleted = false)
			AND ($3::timestamptz IS NULL OR created_at >= $3)
			AND ($4::timestamptz IS NULL OR created_at < $4)
		ORDER BY created_at DESC, order_no DESC
		LIMIT $5
	`, filter.Status, filter.IncludeDeleted, from, to, limit)
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if len(orders) == 0 {
		return orders, nil
	}
	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		ids = append(ids, order.ID)
	}
	lines, err := loadLines(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
		if orders[i].Lines == nil {
			orders[i].Lines = []domain.OrderLine{}
		}
	}
	return orders, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, price, active, created_at
		FROM products
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	return getProducts(ctx, s.db, ids)
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.ID) == "" || strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() {
		return nil, fmt.Errorf("%w: product id, name and a non-negative price are required", store.ErrValidation)
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, product.ID, product.Name, product.Price, product.Active, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: product %s already exists", store.ErrConflict, product.ID)
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) ListIngredients(ctx context.Context) ([]domain.Ingredient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, unit, price_per_unit, current_stock, active, updated_at
		FROM ingredients
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ingredients := make([]domain.Ingredient, 0, 64)
	for rows.Next() {
		i, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		ingredients = append(ingredients, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ingredients, nil
}

func (s *Store) GetIngredients(ctx context.Context, ids []string) (map[string]domain.Ingredient, error) {
	return getIngredients(ctx, s.db, ids)
}

func (s *Store) CreateIngredient(ctx context.Context, ingredient domain.Ingredient) (*domain.Ingredient, error) {
	if strings.TrimSpace(ingredient.ID) == "" || strings.TrimSpace(ingredient.Name) == "" || strings.TrimSpace(ingredient.Unit) == "" {
		return nil, fmt.Errorf("%w: ingredient id, name and unit are required", store.ErrValidation)
	}
	if ingredient.PricePerUnit.IsNegative() {
		return nil, fmt.Errorf("%w: price per unit must not be negative", store.ErrValidation)
	}
	if ingredient.UpdatedAt.IsZero() {
		ingredient.UpdatedAt = time.Now().UTC()
	}
	ingredient.Active = true

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingredients (id, name, unit, price_per_unit, current_stock, active, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, ingredient.ID, ingredient.Name, ingredient.Unit, ingredient.PricePerUnit, ingredient.CurrentStock, ingredient.Active, ingredient.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: ingredient %s already exists", store.ErrConflict, ingredient.ID)
		}
		return nil, err
	}
	created := ingredient
	return &created, nil
}

func (s *Store) ListRecipe(ctx context.Context, productID string) ([]domain.RecipeLine, error) {
	return listRecipe(ctx, s.db, productID, false)
}

func (s *Store) UpsertRecipeLine(ctx context.Context, line domain.RecipeLine) error {
	if !line.QuantityUsed.IsPositive() {
		return fmt.Errorf("%w: quantity used must be positive", store.ErrValidation)
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, line.ProductID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("product %s: %w", line.ProductID, store.ErrNotFound)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM ingredients WHERE id = $1)`, line.IngredientID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("ingredient %s: %w", line.IngredientID, store.ErrNotFound)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recipe_lines (product_id, ingredient_id, quantity_used, active)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (product_id, ingredient_id)
		DO UPDATE SET quantity_used = EXCLUDED.quantity_used, active = EXCLUDED.active
	`, line.ProductID, line.IngredientID, line.QuantityUsed, line.Active)
	return err
}

func (s *Store) ListMovements(ctx context.Context, ingredientID string, limit int) ([]domain.IngredientMovement, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ingredient_id, delta, previous, current, reason, COALESCE(order_id, ''), COALESCE(note, ''), created_at
		FROM ingredient_movements
		WHERE ($1 = '' OR ingredient_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, ingredientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.IngredientMovement, 0, limit)
	for rows.Next() {
		var m domain.IngredientMovement
		if err := rows.Scan(&m.ID, &m.IngredientID, &m.Delta, &m.Previous, &m.Current, &m.Reason, &m.OrderID, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) GetDrawer(ctx context.Context, id string) (*domain.CashDrawer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+drawerColumns+` FROM cash_drawers WHERE id = $1`, id)
	return loadDrawer(ctx, s.db, row)
}

func (s *Store) GetOpenDrawer(ctx context.Context) (*domain.CashDrawer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+drawerColumns+` FROM cash_drawers WHERE status = 'OPEN'`)
	return loadDrawer(ctx, s.db, row)
}

func (s *Store) ListDrawers(ctx context.Context, limit int) ([]domain.CashDrawer, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+drawerColumns+`
		FROM cash_drawers
		ORDER BY opened_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	drawers := make([]domain.CashDrawer, 0, limit)
	for rows.Next() {
		drawer, err := scanDrawer(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		drawers = append(drawers, drawer)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	for i := range drawers {
		txns, err := loadCashTransactions(ctx, s.db, drawers[i].ID)
		if err != nil {
			return nil, err
		}
		drawers[i].Transactions = txns
	}
	return drawers, nil
}

func (s *Store) FetchPendingEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, key, payload, created_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]domain.OutboxEvent, 0, limit)
	for rows.Next() {
		var ev domain.OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.Topic, &ev.Key, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.CreatedAt = ev.CreatedAt.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) MarkEventsPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox_events
		SET published_at = $2
		WHERE id = ANY($1) AND published_at IS NULL
	`, ids, at)
	return err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.ActorUsername, entry.ActorRole, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1
			AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.ActorUsername, &entry.ActorRole, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrValidation
	}
	if user.Role == "" {
		user.Role = "cashier"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO app_users (username, password, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM app_users
		ORDER BY username ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrValidation
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE app_users
		SET password = $2, updated_at = now()
		WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const orderColumns = `id, order_no, status, total_amount, cost_of_goods, gross_profit, order_type,
	COALESCE(table_number, ''), cashier_id, COALESCE(payment_method, ''), COALESCE(void_reason, ''),
	is_deleted, created_at, updated_at, completed_at`

const drawerColumns = `id, status, opened_by, COALESCE(closed_by, ''), opening_balance, closing_balance,
	expected_balance, opened_at, closed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (domain.Order, error) {
	var order domain.Order
	var completedAt sql.NullTime
	if err := row.Scan(
		&order.ID, &order.OrderNo, &order.Status, &order.TotalAmount, &order.CostOfGoods, &order.GrossProfit,
		&order.OrderType, &order.TableNumber, &order.CashierID, &order.PaymentMethod, &order.VoidReason,
		&order.IsDeleted, &order.CreatedAt, &order.UpdatedAt, &completedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		order.CompletedAt = &t
	}
	return order, nil
}

func loadOrder(ctx context.Context, q querier, id string, forUpdate bool) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	order, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	lines, err := loadLines(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	order.Lines = lines[id]
	if order.Lines == nil {
		order.Lines = []domain.OrderLine{}
	}
	return &order, nil
}

func loadLines(ctx context.Context, q querier, orderIDs []string) (map[string][]domain.OrderLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, price_at_sale, quantity_printed, cost_at_sale, recipe
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]domain.OrderLine, len(orderIDs))
	for rows.Next() {
		var line domain.OrderLine
		var recipe []byte
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Quantity, &line.PriceAtSale, &line.QuantityPrinted, &line.CostAtSale, &recipe); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(recipe, &line.Recipe); err != nil {
			return nil, fmt.Errorf("decode recipe snapshot of line %s: %w", line.ID, err)
		}
		result[line.OrderID] = append(result[line.OrderID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanDrawer(row scanner) (domain.CashDrawer, error) {
	var drawer domain.CashDrawer
	var closing, expected decimal.NullDecimal
	var closedAt sql.NullTime
	if err := row.Scan(
		&drawer.ID, &drawer.Status, &drawer.OpenedBy, &drawer.ClosedBy, &drawer.OpeningBalance,
		&closing, &expected, &drawer.OpenedAt, &closedAt,
	); err != nil {
		return domain.CashDrawer{}, err
	}
	drawer.OpenedAt = drawer.OpenedAt.UTC()
	if closing.Valid {
		drawer.ClosingBalance = &closing.Decimal
	}
	if expected.Valid {
		drawer.ExpectedBalance = &expected.Decimal
	}
	if closedAt.Valid {
		t := closedAt.Time.UTC()
		drawer.ClosedAt = &t
	}
	return drawer, nil
}

func loadDrawer(ctx context.Context, q querier, row scanner) (*domain.CashDrawer, error) {
	drawer, err := scanDrawer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	drawer.Transactions, err = loadCashTransactions(ctx, q, drawer.ID)
	if err != nil {
		return nil, err
	}
	return &drawer, nil
}

func loadCashTransactions(ctx context.Context, q querier, drawerID string) ([]domain.CashTransaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, drawer_id, seq, type, amount, COALESCE(description, ''), COALESCE(sale_id, ''),
			COALESCE(payment_method, ''), created_by, created_at
		FROM cash_transactions
		WHERE drawer_id = $1
		ORDER BY seq
	`, drawerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := make([]domain.CashTransaction, 0, 32)
	for rows.Next() {
		var txn domain.CashTransaction
		if err := rows.Scan(&txn.ID, &txn.DrawerID, &txn.Seq, &txn.Type, &txn.Amount, &txn.Description, &txn.SaleID, &txn.PaymentMethod, &txn.CreatedBy, &txn.CreatedAt); err != nil {
			return nil, err
		}
		txn.CreatedAt = txn.CreatedAt.UTC()
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return txns, nil
}

func scanIngredient(row scanner) (domain.Ingredient, error) {
	var i domain.Ingredient
	if err := row.Scan(&i.ID, &i.Name, &i.Unit, &i.PricePerUnit, &i.CurrentStock, &i.Active, &i.UpdatedAt); err != nil {
		return domain.Ingredient{}, err
	}
	i.UpdatedAt = i.UpdatedAt.UTC()
	return i, nil
}

func getProducts(ctx context.Context, q querier, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, price, active, created_at
		FROM products
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Active, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func getIngredients(ctx context.Context, q querier, ids []string) (map[string]domain.Ingredient, error) {
	result := make(map[string]domain.Ingredient, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, unit, price_per_unit, current_stock, active, updated_at
		FROM ingredients
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		i, err := scanIngredient(rows)
		if err != nil {
			return nil, err
		}
		result[i.ID] = i
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func listRecipe(ctx context.Context, q querier, productID string, activeOnly bool) ([]domain.RecipeLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, ingredient_id, quantity_used, active
		FROM recipe_lines
		WHERE product_id = $1 AND ($2 = false OR active = true)
		ORDER BY ingredient_id
	`, productID, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.RecipeLine, 0, 8)
	for rows.Next() {
		var line domain.RecipeLine
		if err := rows.Scan(&line.ProductID, &line.IngredientID, &line.QuantityUsed, &line.Active); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// classify turns serialization failures into store.ErrRetryable and leaves
// every other error untouched.
func classify(err error) error {
	if err == nil || errors.Is(err, store.ErrRetryable) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01") {
		return fmt.Errorf("%w: %s", store.ErrRetryable, pgErr.Message)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func violatedConstraint(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName
	}
	return ""
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullDecimal(val *decimal.Decimal) any {
	if val == nil {
		return nil
	}
	return *val
}
