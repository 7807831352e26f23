package domain

// PermissionMatrix maps module path to the actions applicable to it.
type PermissionMatrix map[string]ModuleGrants

// ModuleGrants is one row of the matrix.
type ModuleGrants struct {
	Name    string                 `json:"name"`
	Actions map[string]ActionGrant `json:"actions"`
}

// ActionGrant is one cell of the matrix.
type ActionGrant struct {
	Name    string `json:"name"`
	Allowed bool   `json:"allowed"`
}

// BuildPermissionMatrix merges visible modules, applicable edges and granted pairs.
// Every visible module is present, every applicable pair is present, and a pair is
// allowed only when it appears in granted.
func BuildPermissionMatrix(modules []Module, applicable []ApplicablePermission, granted []GrantedPermission) PermissionMatrix {
	matrix := make(PermissionMatrix, len(modules))
	for _, m := range modules {
		matrix[m.Path] = ModuleGrants{Name: m.Name, Actions: make(map[string]ActionGrant)}
	}

	allowed := make(map[string]map[string]struct{}, len(granted))
	for _, g := range granted {
		codes, ok := allowed[g.ModulePath]
		if !ok {
			codes = make(map[string]struct{})
			allowed[g.ModulePath] = codes
		}
		codes[g.ActionCode] = struct{}{}
	}

	for _, edge := range applicable {
		row, ok := matrix[edge.ModulePath]
		if !ok {
			row = ModuleGrants{Name: edge.ModuleName, Actions: make(map[string]ActionGrant)}
			matrix[edge.ModulePath] = row
		}
		_, isGranted := allowed[edge.ModulePath][edge.ActionCode]
		row.Actions[edge.ActionCode] = ActionGrant{Name: edge.ActionName, Allowed: isGranted}
	}

	return matrix
}

// Allowed reports whether the matrix grants action on module. Missing entries deny.
func (m PermissionMatrix) Allowed(modulePath, actionCode string) bool {
	row, ok := m[modulePath]
	if !ok {
		return false
	}
	return row.Actions[actionCode].Allowed
}
