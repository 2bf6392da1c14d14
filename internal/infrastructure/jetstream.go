package infrastructure

import (
	"errors"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"ibkr-paper-gateway/internal/config"
)

const (
	defaultNatsMaxRetries     = 10
	defaultNatsConnectTimeout = 5 * time.Second
	defaultNatsDrainTimeout   = 10 * time.Second
	defaultNatsPingInterval   = 30 * time.Second
)

func NewJetstream() (nc *nats.Conn, js nats.JetStreamContext, err error) {
	cfg := config.Env.NatsJetstream
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, nil, errors.New("nats jetstream url is required")
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultNatsMaxRetries
	}

	nc, err = nats.Connect(cfg.URL,
		nats.Name("ibkr-paper-gateway"),
		nats.Timeout(defaultNatsConnectTimeout),
		nats.DrainTimeout(defaultNatsDrainTimeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(maxRetries),
		nats.PingInterval(defaultNatsPingInterval),
		nats.DisconnectErrHandler(func(conn *nats.Conn, disErr error) {
			if disErr != nil {
				logrus.Warnf("nats disconnected: %v", disErr)
				return
			}
			logrus.Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logrus.Infof("nats reconnected: %s", conn.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, nil, err
	}

	js, err = nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	return nc, js, nil
}

func CloseJetstream(nc *nats.Conn) error {
	if nc == nil {
		return nil
	}

	err := nc.Drain()
	if err != nil {
		nc.Close()
		return err
	}

	return nil
}
