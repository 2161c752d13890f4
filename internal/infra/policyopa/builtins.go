package policyopa

import "github.com/open-policy-agent/opa/ast"

// admissionBuiltins lists the builtins an admission policy may call. Network,
// clock and randomness builtins are not available.
var admissionBuiltins = []string{
	"assign", "eq", "equal", "neq",
	"gt", "gte", "lt", "lte",
	"plus", "minus", "abs",
	"count", "sum", "max", "min", "sort",
	"concat", "contains", "endswith", "startswith",
	"lower", "upper", "replace", "split", "sprintf", "substring",
	"trim", "trim_left", "trim_right", "trim_space",
	"object.get", "object.keys", "object.union",
	"internal.member_2",
	"regex.match",
}

var allowedBuiltinSet = func() map[string]bool {
	set := make(map[string]bool, len(admissionBuiltins))
	for _, name := range admissionBuiltins {
		set[name] = true
	}
	return set
}()

func isAllowedBuiltin(name string) bool {
	return allowedBuiltinSet[name]
}

func filterBuiltins(builtins []*ast.Builtin) []*ast.Builtin {
	allowed := make([]*ast.Builtin, 0, len(admissionBuiltins))
	for _, builtin := range builtins {
		if isAllowedBuiltin(builtin.Name) {
			allowed = append(allowed, builtin)
		}
	}
	return allowed
}
