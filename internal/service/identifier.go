package service

import (
	"context"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"mediation_desk/internal/repository"
	apperrors "mediation_desk/pkg/errors"
	"mediation_desk/pkg/logger"
)

const requestIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

type IDGenerator interface {
	NewRequestID(ctx context.Context) (string, error)
}

type requestIDGenerator struct {
	requests    repository.MediationRepository
	generate    func() (string, error)
	maxAttempts int
	log         logger.Logger
}

func NewRequestIDGenerator(requests repository.MediationRepository, length, maxAttempts int, log logger.Logger) IDGenerator {
	return &requestIDGenerator{
		requests: requests,
		generate: func() (string, error) {
			return gonanoid.Generate(requestIDAlphabet, length)
		},
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// NewRequestID draws candidates until one is absent from the store, giving
// up after maxAttempts.
func (g *requestIDGenerator) NewRequestID(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		id, err := g.generate()
		if err != nil {
			return "", fmt.Errorf("generate request id: %w", err)
		}

		taken, err := g.requests.Exists(ctx, id)
		if err != nil {
			return "", fmt.Errorf("check request id: %w", err)
		}
		if !taken {
			return id, nil
		}
		g.log.Warn("Request id collision", "attempt", attempt, "request_id", id)
	}
	return "", apperrors.ErrGenerationExhausted
}
