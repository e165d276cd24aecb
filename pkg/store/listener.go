// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/jackc/pgx/v5"
)

// OperationsChannel is the notification channel producers signal after
// enqueueing an operation.
const OperationsChannel = "operations"

// Listener holds a dedicated connection subscribed to one notification
// channel. The shared pool cannot be used for LISTEN because notifications
// are delivered per session.
type Listener struct {
	dsn     string
	channel string
	log     logr.Logger
	conn    *pgx.Conn
}

// NewListener connects a dedicated session and subscribes it to channel.
func NewListener(ctx context.Context, dsn, channel string, log logr.Logger) (*Listener, error) {
	l := &Listener{dsn: dsn, channel: channel, log: log}
	if err := l.connect(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Listener) connect(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("could not connect listener: %w", err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf(`LISTEN %q`, l.channel)); err != nil {
		_ = conn.Close(ctx)
		return fmt.Errorf("could not listen on channel %s: %w", l.channel, err)
	}
	l.conn = conn
	return nil
}

// Wait blocks until a notification arrives or ctx is done. On connection
// loss the listener reconnects and resubscribes; the caller only sees an
// error when ctx is cancelled.
func (l *Listener) Wait(ctx context.Context) (string, error) {
	for {
		n, err := l.conn.WaitForNotification(ctx)
		if err == nil {
			return n.Payload, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		l.log.Error(err, "notification wait failed, reconnecting", "channel", l.channel)
		_ = l.conn.Close(ctx)
		for {
			if err := l.connect(ctx); err == nil {
				break
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// Close tears the dedicated session down.
func (l *Listener) Close(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	return l.conn.Close(ctx)
}
