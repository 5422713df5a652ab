package session

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MrEthical07/fleetAuth/kv"
)

const (
	placeholderPrincipal  = "{principal}"
	placeholderIdentifier = "{identifier}"
)

// DefaultPatterns is the per-principal key layout swept on logout.
var DefaultPatterns = []string{
	"otp:{identifier}",
	"pref:{principal}:*",
	"rl:*:{identifier}",
	"rl:*:{principal}",
	"draft:{principal}:*",
	"notif:{principal}:*",
	"sess:{principal}:*",
}

// Report summarizes a teardown. Failed is keyed by the expanded pattern.
type Report struct {
	Deleted int64
	Failed  map[string]error
}

// OK reports whether every pattern was swept without error.
func (r Report) OK() bool { return len(r.Failed) == 0 }

// Teardown deletes transient per-principal state by pattern sweep.
type Teardown struct {
	store    kv.Store
	patterns []string
	logger   *slog.Logger
}

// NewTeardown returns a Teardown over store. Nil patterns selects
// DefaultPatterns; a nil logger selects slog.Default().
func NewTeardown(store kv.Store, patterns []string, logger *slog.Logger) *Teardown {
	if patterns == nil {
		patterns = DefaultPatterns
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Teardown{
		store:    store,
		patterns: append([]string(nil), patterns...),
		logger:   logger,
	}
}

// Patterns returns the expanded patterns for a principal. Templates that
// reference an empty value are omitted so that a blank id never widens into
// a keyspace-wide match.
func (t *Teardown) Patterns(principalID, identifier string) []string {
	out := make([]string, 0, len(t.patterns))
	for _, tpl := range t.patterns {
		if strings.Contains(tpl, placeholderPrincipal) && principalID == "" {
			continue
		}
		if strings.Contains(tpl, placeholderIdentifier) && identifier == "" {
			continue
		}
		p := strings.ReplaceAll(tpl, placeholderPrincipal, kv.EscapePattern(principalID))
		p = strings.ReplaceAll(p, placeholderIdentifier, kv.EscapePattern(identifier))
		out = append(out, p)
	}
	return out
}

// ClearAllFor deletes every key matching the principal's patterns.
//
// Each pattern is handled independently: a failure is logged and recorded
// in the report, and the remaining patterns are still swept. Nothing here
// is transactional; all swept data is TTL-bound or rebuildable.
func (t *Teardown) ClearAllFor(ctx context.Context, principalID, identifier string) Report {
	report := Report{}
	for _, pattern := range t.Patterns(principalID, identifier) {
		n, err := t.sweep(ctx, pattern)
		report.Deleted += n
		if err != nil {
			if report.Failed == nil {
				report.Failed = make(map[string]error)
			}
			report.Failed[pattern] = err
			t.logger.WarnContext(ctx, "session teardown pattern failed",
				slog.String("principal_id", principalID),
				slog.String("pattern", pattern),
				slog.Any("error", err),
			)
		}
	}
	return report
}

func (t *Teardown) sweep(ctx context.Context, pattern string) (int64, error) {
	if !hasGlob(pattern) {
		return t.store.Delete(ctx, unescape(pattern))
	}
	keys, err := t.store.KeysMatching(ctx, pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return t.store.Delete(ctx, keys...)
}

// hasGlob reports whether pattern contains an unescaped metacharacter.
func hasGlob(pattern string) bool {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '\\':
			i++
		case '*', '?', '[':
			return true
		}
	}
	return false
}

func unescape(pattern string) string {
	if !strings.Contains(pattern, `\`) {
		return pattern
	}
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '\\' && i+1 < len(pattern) {
			i++
		}
		b.WriteByte(pattern[i])
	}
	return b.String()
}
