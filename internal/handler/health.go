package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/heptiolabs/healthcheck"
)

// databasePingTimeout はreadinessチェックでのDB pingの上限時間。
const databasePingTimeout = 3 * time.Second

// NewHealthHandler はreadinessチェックを登録したhealthcheck.Handlerを返す。
// livenessはプロセスが応答できることのみを確認する。
func NewHealthHandler(readiness map[string]healthcheck.Check) healthcheck.Handler {
	h := healthcheck.NewHandler()
	for name, check := range readiness {
		h.AddReadinessCheck(name, check)
	}
	return h
}

// DatabaseCheck はDBへのpingによるreadinessチェックを返す。
func DatabaseCheck(db *sql.DB) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), databasePingTimeout)
		defer cancel()
		return db.PingContext(ctx)
	}
}
