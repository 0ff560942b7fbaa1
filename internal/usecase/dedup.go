package usecase

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/willsupernormal/ai-newsletter-pipeline-sub000/internal/domain"
)

// NormalizeURL produces the canonical form used as the dedup key: lowercase
// host without "www.", lowercase path without trailing slash, query and
// fragment dropped. Unparseable URLs fall back to the trimmed lowercase raw
// string.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" {
		return strings.ToLower(raw)
	}

	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")

	path := strings.ToLower(strings.TrimRight(parsed.Path, "/"))

	return parsed.Scheme + "://" + host + path
}

// Deduplicate keeps one candidate per normalized URL, first seen wins.
// Dropped duplicates are logged, not scored. Candidates without a URL pass
// through untouched.
func Deduplicate(candidates []domain.CandidateItem, logger *slog.Logger) []domain.CandidateItem {
	seen := make(map[string]struct{}, len(candidates))
	unique := make([]domain.CandidateItem, 0, len(candidates))

	for _, cand := range candidates {
		key := NormalizeURL(cand.URL)
		if key == "" {
			unique = append(unique, cand)
			continue
		}

		if _, dup := seen[key]; dup {
			logger.Debug("dropped duplicate candidate", "url", cand.URL, "source", cand.Source)
			continue
		}

		seen[key] = struct{}{}
		unique = append(unique, cand)
	}

	if dropped := len(candidates) - len(unique); dropped > 0 {
		logger.Info("deduplicated candidates", "total", len(candidates), "dropped", dropped)
	}

	return unique
}
