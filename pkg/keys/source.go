package keys

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Source supplies PEM-encoded key material.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// LoadFrom fetches PEM bytes from src and loads them as a key pair.
func LoadFrom(ctx context.Context, src Source) (*KeyPair, error) {
	pemBytes, err := src.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch key: %w", err)
	}
	return Load(pemBytes)
}

// Bytes is a Source over in-memory PEM bytes.
type Bytes []byte

func (b Bytes) Fetch(context.Context) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("no key material configured")
	}
	return b, nil
}

// File reads a PEM key from the local filesystem.
type File string

func (f File) Fetch(context.Context) ([]byte, error) {
	keyBytes, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return keyBytes, nil
}

// FallbackSource reads from a primary source, then from a secondary one if the primary fails.
type FallbackSource struct {
	primary   Source
	secondary Source
	logger    *slog.Logger
}

// NewFallbackSource creates a new FallbackSource. A nil logger discards.
func NewFallbackSource(primary, secondary Source, logger *slog.Logger) *FallbackSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FallbackSource{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

// Fetch attempts the primary source, falling back to the secondary on failure.
func (s *FallbackSource) Fetch(ctx context.Context) ([]byte, error) {
	b, err := s.primary.Fetch(ctx)
	if err == nil {
		return b, nil
	}

	s.logger.Warn("primary key source failed, falling back", slog.String("error", err.Error()))

	b, err = s.secondary.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("both primary and secondary key sources failed: %w", err)
	}
	return b, nil
}
