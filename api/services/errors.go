package services

import "errors"

// Sentinel errors for the services package.
// Use errors.Is to check: errors.Is(err, services.ErrDocumentNotFound)
var (
	ErrInvalidChunkConfig = errors.New("services: invalid chunk configuration")
	ErrDocumentNotFound   = errors.New("services: document not found")
)
