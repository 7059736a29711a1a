package domain

import "errors"

var (
	ErrSourceNotFound     = errors.New("source document not found")
	ErrParse              = errors.New("source document could not be parsed")
	ErrEmbeddingProvider  = errors.New("embedding provider failed")
	ErrGenerationProvider = errors.New("generation provider failed")
	ErrValidation         = errors.New("invalid request")
)
