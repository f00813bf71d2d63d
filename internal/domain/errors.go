package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidQuote       = errors.New("invalid quote")
	ErrAllEndpointsFailed = errors.New("all endpoints failed")
	ErrUnknownNetwork     = errors.New("unknown network")
	ErrUnknownProtocol    = errors.New("unknown venue protocol kind")
	ErrNoPool             = errors.New("no pool configured for pair")
	ErrContextDone        = errors.New("context cancelled")
)
