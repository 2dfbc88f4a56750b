package nats

import (
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/Kirya343/WorkSwapCore-sub000/internal/config"
)

// Connect 按配置连接 NATS，断线和重连只记录日志
func Connect(cfg config.NATSConfig, name string) (*nats.Conn, error) {
	logger := slog.Default()
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}
	logger.Info("Connected to NATS", "url", conn.ConnectedUrl())
	return conn, nil
}
