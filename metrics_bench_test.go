package fleetAuth

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/fleetAuth/kv"
)

func BenchmarkMetricsInc(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricLoginSuccess)
	}
}

func BenchmarkMetricsIncDisabled(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		m.Inc(MetricLoginSuccess)
	}
}

func BenchmarkMetricsObserveLatencyParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	d := 12 * time.Millisecond
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			m.Observe(MetricValidateLatency, d)
		}
	})
}

var mixedHotMetricIDs = [...]MetricID{
	MetricChallengeIssued,
	MetricChallengeVerifySuccess,
	MetricChallengeVerifyFailure,
	MetricLoginSuccess,
	MetricRefreshSuccess,
	MetricValidateSuccess,
	MetricValidateFailure,
	MetricLogout,
}

func BenchmarkMetricsIncMixedParallel(b *testing.B) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		idx := 0
		for pb.Next() {
			m.Inc(mixedHotMetricIDs[idx])
			idx++
			if idx == len(mixedHotMetricIDs) {
				idx = 0
			}
		}
	})
}

func BenchmarkValidateAccessTokenClaimsOnly(b *testing.B) {
	cfg := testConfig()
	cfg.Validation.ResolvePrincipal = false
	cfg.Metrics.Enabled = true
	engine, err := New().
		WithConfig(cfg).
		WithStore(kv.NewMemoryStore(time.Now)).
		WithPrincipalRepository(newMemRepo(approvedDriver())).
		WithNotifier(&captureNotifier{}).
		Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	pair, err := engine.tokens.Issue(approvedDriver().subject(), false)
	if err != nil {
		b.Fatalf("Issue failed: %v", err)
	}
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := engine.ValidateAccessToken(ctx, pair.AccessToken); err != nil {
			b.Fatalf("validate failed: %v", err)
		}
	}
}
