package smartqueue

import "github.com/Jiyabhaviksadaria/smartqueue/id"

// ID is the primary identifier type for all SmartQueue entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
