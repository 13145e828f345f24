package terraform

import (
	"strconv"

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// literalValue evaluates an attribute without an evaluation context. Only
// known primitive values are reported; references and function calls are not.
func literalValue(attr *hclsyntax.Attribute) (string, bool) {
	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() || !val.IsKnown() || val.IsNull() {
		return "", false
	}

	switch val.Type() {
	case cty.String:
		return val.AsString(), true
	case cty.Number:
		var num float64
		if err := gocty.FromCtyValue(val, &num); err != nil {
			return "", false
		}
		if num == float64(int64(num)) {
			return strconv.FormatInt(int64(num), 10), true
		}
		return strconv.FormatFloat(num, 'f', -1, 64), true
	case cty.Bool:
		return strconv.FormatBool(val.True()), true
	default:
		return "", false
	}
}
