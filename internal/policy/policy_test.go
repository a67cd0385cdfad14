package policy

import "testing"

func TestCashierCannotVoidWithoutElevation(t *testing.T) {
	cashier := ForRole(RoleCashier)
	if cashier.Can(OpVoid) {
		t.Fatalf("cashier must not void")
	}
	if !cashier.Can(OpCheckout) {
		t.Fatalf("cashier must checkout")
	}

	elevated := Union(cashier, ForRole(RoleManager))
	if !elevated.Can(OpVoid) {
		t.Fatalf("manager elevation must allow void")
	}
	if elevated.Can(OpCatalogWrite) {
		t.Fatalf("manager elevation must not grant catalog writes")
	}
}

func TestUnknownRoleIsDenied(t *testing.T) {
	if ForRole("guest").Can(OpSaleRead) {
		t.Fatalf("unknown role must be denied")
	}
	if !System.Can(OpCatalogWrite) {
		t.Fatalf("system policy must allow everything")
	}
}
