package domain

import "errors"

// Storage-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrUserExists      = errors.New("username already taken")
	ErrCategoryUnknown = errors.New("unknown category")
	ErrRowLocked       = errors.New("auction row is locked by another transaction")
	ErrTxnTimeout      = errors.New("transaction timed out")
)

// Bidding errors
var (
	ErrLockTimeout   = errors.New("timed out waiting for auction lock")
	ErrBidTooLow     = errors.New("bid amount too low")
	ErrAuctionClosed = errors.New("auction is closed")
	ErrInvalidAmount = errors.New("invalid bid amount")
)

// Listing and session errors
var (
	ErrInvalidListing     = errors.New("invalid listing")
	ErrInvalidUser        = errors.New("invalid registration")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)
