package storage

import "errors"

// ErrDuplicateKey means a get-or-create lookup matched more than one row.
// The unique constraints should make this impossible; the mapper still
// checks so a broken schema surfaces as an explicit error instead of an
// arbitrary row choice.
var ErrDuplicateKey = errors.New("multiple rows match unique key")
