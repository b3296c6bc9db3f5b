package summarizer

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var (
	ErrNotConfigured  = errors.New("summarizer is not configured")
	ErrInvalidURL     = errors.New("invalid GitHub URL")
	ErrReadmeNotFound = errors.New("repository README not found")
	ErrUpstream       = errors.New("upstream request failed")
)

// Fetcher downloads a repository README.
type Fetcher interface {
	Fetch(ctx context.Context, owner, repo string) (string, error)
}

// Service fetches a README and summarizes it.
type Service struct {
	fetcher    Fetcher
	summarizer Summarizer
	logger     *zap.Logger
}

// NewService creates a Service. A nil summarizer leaves it unconfigured and every call fails with ErrNotConfigured.
func NewService(fetcher Fetcher, s Summarizer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		fetcher:    fetcher,
		summarizer: s,
		logger:     log.With(zap.String("component", "summarizer")),
	}
}

func (s *Service) Configured() bool {
	return s != nil && s.fetcher != nil && s.summarizer != nil
}

// Analyze summarizes the README of the repository at githubURL. No retries are attempted.
func (s *Service) Analyze(ctx context.Context, githubURL string) (*Analysis, error) {
	if !s.Configured() {
		return nil, ErrNotConfigured
	}
	owner, repo, err := ParseRepoURL(githubURL)
	if err != nil {
		return nil, err
	}

	readme, err := s.fetcher.Fetch(ctx, owner, repo)
	if err != nil {
		s.logger.Warn("Failed to fetch README", zap.String("owner", owner), zap.String("repo", repo), zap.Error(err))
		return nil, err
	}

	analysis, err := s.summarizer.Summarize(ctx, readme)
	if err != nil {
		s.logger.Error("Failed to summarize README", zap.String("owner", owner), zap.String("repo", repo), zap.Error(err))
		return nil, err
	}
	s.logger.Info("Repository analyzed",
		zap.String("owner", owner),
		zap.String("repo", repo),
		zap.Int("cool_facts", len(analysis.CoolFacts)),
	)
	return analysis, nil
}
