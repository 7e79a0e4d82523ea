package models

import "errors"

// ErrNotFound is returned by stores when a row does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateCode is returned when a generated voucher code is already taken.
var ErrDuplicateCode = errors.New("voucher code already exists")
