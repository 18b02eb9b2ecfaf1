package db

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

type stepClock struct {
	t    time.Time
	step time.Duration
}

func (c *stepClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func TestSlowQueryTracer(t *testing.T) {
	tests := []struct {
		name    string
		step    time.Duration
		err     error
		wantLog string
	}{
		{"fast", 10 * time.Millisecond, nil, ""},
		{"slow", 2 * time.Second, nil, "slow query"},
		{"failed", time.Millisecond, errors.New("syntax error"), "query failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			clock := &stepClock{t: time.Unix(0, 0), step: tt.step}
			tracer := &slowQueryTracer{threshold: time.Second, logger: zerolog.New(&buf), now: clock.now}

			ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
			tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: tt.err})

			out := buf.String()
			if tt.wantLog == "" {
				if out != "" {
					t.Errorf("expected no log, got %s", out)
				}
				return
			}
			if !strings.Contains(out, tt.wantLog) || !strings.Contains(out, "SELECT 1") {
				t.Errorf("expected %q with sql in log, got %s", tt.wantLog, out)
			}
		})
	}
}

func TestSlowQueryTracer_MissingStart(t *testing.T) {
	var buf bytes.Buffer
	tracer := &slowQueryTracer{threshold: time.Nanosecond, logger: zerolog.New(&buf)}
	tracer.TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{})
	if buf.Len() != 0 {
		t.Errorf("expected no log without a start record, got %s", buf.String())
	}
}

func TestNewPool_InvalidURL(t *testing.T) {
	_, err := NewPool(context.Background(), PoolConfig{URL: "://not a url", MaxConns: 1})
	if err == nil || !strings.Contains(err.Error(), "parse database url") {
		t.Errorf("expected parse error, got %v", err)
	}
}
