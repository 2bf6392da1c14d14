package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"ibkr-paper-gateway/internal/config"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultBackoffFactor  = 2.0
	defaultMinJitter      = 100 * time.Millisecond
	defaultMaxJitter      = 1 * time.Second
	defaultMaxIdleConns   = 5
	defaultMaxOpenConns   = 20
	defaultConnLifetime   = 1 * time.Hour
)

func NewPostgresConnection(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("database dsn is required")
	}

	connectTimeout := cfg.PingInterval
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}

	maxRetry := cfg.MaxRetry
	if maxRetry < 0 {
		maxRetry = 0
	}

	backoffFactor := cfg.ReconnectFactor
	if backoffFactor < 1 {
		backoffFactor = defaultBackoffFactor
	}

	minJitter := cfg.MinJitter
	if minJitter <= 0 {
		minJitter = defaultMinJitter
	}

	maxJitter := cfg.MaxJitter
	if maxJitter <= 0 {
		maxJitter = defaultMaxJitter
	}
	if maxJitter < minJitter {
		maxJitter = minJitter
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var lastErr error

	for attempt := 0; attempt <= maxRetry; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		db, err := sqlx.ConnectContext(attemptCtx, "postgres", cfg.DSN)
		cancel()
		if err == nil {
			applyPoolLimits(db, cfg)
			logrus.Info("postgres connection established")
			return db, nil
		}

		lastErr = err
		if attempt == maxRetry {
			break
		}

		waitDuration := backoffWithJitter(attempt, backoffFactor, minJitter, maxJitter, rng)
		logrus.WithFields(logrus.Fields{
			"attempt":   attempt + 1,
			"max_retry": maxRetry,
			"retry_in":  waitDuration.String(),
		}).Warnf("postgres connection failed: %v", err)

		select {
		case <-time.After(waitDuration):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("connect postgres after %d attempts: %w", maxRetry+1, lastErr)
}

func applyPoolLimits(db *sqlx.DB, cfg config.DatabaseConfig) {
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = defaultMaxIdleConns
	}

	maxOpenConns := cfg.MaxActiveConns
	if maxOpenConns <= 0 {
		maxOpenConns = defaultMaxOpenConns
	}

	maxConnLifetime := cfg.MaxConnLifetime
	if maxConnLifetime <= 0 {
		maxConnLifetime = defaultConnLifetime
	}

	db.SetMaxIdleConns(maxIdleConns)
	db.SetMaxOpenConns(maxOpenConns)
	db.SetConnMaxLifetime(maxConnLifetime)
	if cfg.PingInterval > 0 {
		db.SetConnMaxIdleTime(cfg.PingInterval)
	}
}

func StartPostgresHealthCheck(ctx context.Context, db *sqlx.DB, interval time.Duration) {
	if db == nil || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, interval)
				err := db.PingContext(pingCtx)
				cancel()
				if err != nil {
					logrus.Errorf("postgres health check failed: %v", err)
				}
			}
		}
	}()
}

func backoffWithJitter(attempt int, factor float64, min, max time.Duration, rng *rand.Rand) time.Duration {
	backoff := float64(min) * math.Pow(factor, float64(attempt))
	if backoff > float64(max) {
		backoff = float64(max)
	}

	base := time.Duration(backoff)
	if max <= min {
		return base
	}

	jitterWindow := max - min
	jitter := time.Duration(rng.Int63n(int64(jitterWindow) + 1))
	result := base + jitter
	if result > max {
		return max
	}

	return result
}
