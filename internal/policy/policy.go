// Package policy answers whether the caller may run an engine operation.
// Authentication happens elsewhere; the engine only sees a Policy.
package policy

type Operation string

const (
	OpPark          Operation = "order.park"
	OpCheckout      Operation = "order.checkout"
	OpVoid          Operation = "order.void"
	OpRefund        Operation = "order.refund"
	OpChangeItem    Operation = "order.change_item"
	OpSendToKitchen Operation = "order.send_to_kitchen"
	OpSaleRead      Operation = "sale.read"
	OpDrawerOpen    Operation = "drawer.open"
	OpDrawerClose   Operation = "drawer.close"
	OpCashIn        Operation = "drawer.cash_in"
	OpCashOut       Operation = "drawer.cash_out"
	OpDrawerRead    Operation = "drawer.read"
	OpCatalogWrite  Operation = "catalog.write"
	OpStockReceive  Operation = "stock.receive"
)

const (
	RoleCashier = "cashier"
	RoleManager = "manager"
	RoleAdmin   = "admin"
)

type Policy interface {
	Can(op Operation) bool
}

type set map[Operation]bool

func (s set) Can(op Operation) bool {
	return s[op]
}

var cashierOps = []Operation{
	OpPark, OpCheckout, OpSendToKitchen, OpSaleRead,
	OpDrawerOpen, OpDrawerClose, OpCashIn, OpDrawerRead,
}

var managerOps = append([]Operation{OpVoid, OpRefund, OpChangeItem, OpCashOut, OpStockReceive}, cashierOps...)

var adminOps = append([]Operation{OpCatalogWrite}, managerOps...)

func ForRole(role string) Policy {
	switch role {
	case RoleAdmin:
		return newSet(adminOps)
	case RoleManager:
		return newSet(managerOps)
	case RoleCashier:
		return newSet(cashierOps)
	default:
		return set{}
	}
}

// Union grants an operation when any of the given policies does. It is used
// when a manager PIN elevates a cashier session for a single request.
func Union(policies ...Policy) Policy {
	return union(policies)
}

type union []Policy

func (u union) Can(op Operation) bool {
	for _, p := range u {
		if p != nil && p.Can(op) {
			return true
		}
	}
	return false
}

// System allows everything; background jobs and tests run with it.
var System Policy = allowAll{}

type allowAll struct{}

func (allowAll) Can(Operation) bool { return true }

func newSet(ops []Operation) set {
	s := make(set, len(ops))
	for _, op := range ops {
		s[op] = true
	}
	return s
}
