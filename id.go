package tollgate

import "github.com/xraph/tollgate/id"

// ID is the identifier type for generated Tollgate records.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
