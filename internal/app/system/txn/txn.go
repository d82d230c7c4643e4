// Package txn runs a unit of work inside a MongoDB transaction, falling back
// to running it directly on deployments that do not support transactions
// (a standalone mongod in local development, for example).
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Func is a unit of work. The ctx passed to it carries the transaction's
// session when one is active; every database call inside must use it.
type Func func(ctx context.Context) error

// Runner executes units of work transactionally.
type Runner struct {
	client *mongo.Client
	log    *zap.Logger
}

// New creates a Runner. A nil client makes Run call fn directly.
func New(client *mongo.Client, logger *zap.Logger) *Runner {
	return &Runner{client: client, log: logger}
}

// Run executes fn inside a transaction. If the server rejects transactions,
// fn is run once more without one.
func (r *Runner) Run(ctx context.Context, fn Func) error {
	if r == nil || r.client == nil {
		return fn(ctx)
	}

	sess, err := r.client.StartSession()
	if err != nil {
		if IsNotSupported(err) {
			return fn(ctx)
		}
		return err
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		if r.log != nil {
			r.log.Debug("transactions not supported, running without", zap.Error(err))
		}
		return fn(ctx)
	}
	return err
}

// notSupportedCodes are server error codes meaning the deployment cannot run
// multi-document transactions.
//   - 20:  IllegalOperation ("Transaction numbers are only allowed on a replica set member or mongos")
//   - 51:  IllegalOperation (older servers)
//   - 263: OperationNotSupportedInTransaction
var notSupportedCodes = map[int32]bool{20: true, 51: true, 263: true}

// IsNotSupported reports whether err indicates that transactions or sessions
// are unavailable on the connected deployment.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) && notSupportedCodes[ce.Code] {
		return true
	}

	msg := strings.ToLower(err.Error())
	has := func(s string) bool { return strings.Contains(msg, s) }

	switch {
	case has("transaction") && has("replica set"):
		return true
	case has("session") && has("not supported"):
		return true
	case has("transaction") && has("session"):
		return true
	case has("illegal operation"):
		return true
	}
	return false
}
