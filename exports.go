package tollgate

import "github.com/xraph/tollgate/types"

// Money is the amount type charged for plans and carried on receipts.
type Money = types.Money

// USD builds a Money in US cents, the currency of the built-in plan catalog.
var USD = types.USD
