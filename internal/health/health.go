// Package health reports whether the service can reach its recognizer and
// mirrors that into the gRPC health service.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"murmur/companion/internal/config"
)

// RecognitionService is the gRPC health service name reflecting recognizer
// availability.
const RecognitionService = "companion.Recognition"

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	var b strings.Builder
	if h.OK {
		b.WriteString("Health: OK\n")
	} else {
		b.WriteString("Health: FAIL\n")
	}
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		fmt.Fprintf(&b, "  %s %s (%dms)", mark, c.Name, c.Latency.Milliseconds())
		if c.Error != "" {
			b.WriteString(" - " + c.Error)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// probe is one named readiness check.
type probe struct {
	name string
	run  func(ctx context.Context, cfg config.Config) error
}

var probes = []probe{
	{"auth", checkAuth},
	{"deepgram", checkDeepgram},
}

// CheckAll runs every probe and returns the combined status.
func CheckAll(ctx context.Context, cfg config.Config) HealthStatus {
	hs := HealthStatus{OK: true}
	for _, p := range probes {
		start := time.Now()
		err := p.run(ctx, cfg)
		r := CheckResult{Name: p.name, OK: err == nil, Latency: time.Since(start)}
		if err != nil {
			r.Error = err.Error()
			hs.OK = false
		}
		hs.Checks = append(hs.Checks, r)
	}
	hs.CheckedAt = time.Now().UTC()
	return hs
}

func checkAuth(_ context.Context, cfg config.Config) error {
	if cfg.Auth.TokenSecret == "" {
		return errors.New("AUTH_TOKEN_SECRET not set")
	}
	return nil
}

// checkDeepgram lists projects, the cheapest authenticated call.
func checkDeepgram(ctx context.Context, cfg config.Config) error {
	if cfg.Deepgram.APIKey == "" {
		return errors.New("DEEPGRAM_API_KEY not set")
	}
	url := strings.TrimSuffix(cfg.Deepgram.APIURL, "/") + "/v1/projects"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+cfg.Deepgram.APIKey)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("invalid API key (%d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Publish mirrors a check result into the gRPC health server. The overall
// server stays SERVING; the recognition service follows the checks.
func Publish(hs *grpchealth.Server, status HealthStatus) {
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if status.OK {
		st = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus(RecognitionService, st)
}

// Watch runs CheckAll every interval until ctx is done, publishing each
// result. Only transitions are logged.
func Watch(ctx context.Context, cfg config.Config, hs *grpchealth.Server, interval time.Duration, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	first, lastOK := true, false
	for {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		status := CheckAll(cctx, cfg)
		cancel()
		Publish(hs, status)
		if first || status.OK != lastOK {
			if status.OK {
				log.Info("recognizer ready")
			} else {
				log.Warn("health check failed", "status", strings.TrimSpace(status.String()))
			}
		}
		first, lastOK = false, status.OK
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
		}
	}
}
