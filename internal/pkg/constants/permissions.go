package constants

const (
	ViewData         = "view_data"
	BuyTokens        = "buy_tokens"
	ManageProjects   = "manage_projects"
	DistributeProfit = "distribute_profit"
	ReconcileLedger  = "reconcile_ledger"
)

// PermissionRoles maps each permission to roles allowed to perform it.
var PermissionRoles = map[string][]string{
	ViewData:         {Investor, Admin},
	BuyTokens:        {Investor, Admin},
	ManageProjects:   {Admin},
	DistributeProfit: {Admin},
	ReconcileLedger:  {Admin},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	roles, ok := PermissionRoles[permission]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
