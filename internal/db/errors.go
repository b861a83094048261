package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/surrealdb/surrealdb.go"
)

// Sentinel errors for store operations. Check with errors.Is().
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrTransactionConflict indicates a SurrealDB transaction conflict from
	// concurrent writes to the same record. Callers should retry.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrUnavailable indicates the store could not be reached: the connection
	// dropped mid-query or the RPC timed out. Callers should retry.
	ErrUnavailable = errors.New("store unavailable")
)

// wrapQueryError inspects a SurrealDB error and wraps it with the appropriate
// sentinel if it matches a known query error pattern.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		if strings.Contains(queryErr.Message, "Transaction conflict") {
			return fmt.Errorf("%w: %s", ErrTransactionConflict, queryErr.Message)
		}
		return err
	}

	if isConnectionError(err) {
		return fmt.Errorf("%w: %s", ErrUnavailable, err)
	}

	return err
}

// isConnectionError reports whether err is a transport failure rather than a
// query-level error, so the caller can distinguish retryable outages.
func isConnectionError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, websocket.ErrCloseSent)
}
