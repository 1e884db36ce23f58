package model

import "github.com/zeromicro/go-zero/core/stores/sqlc"

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = sqlc.ErrNotFound
