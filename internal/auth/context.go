// ABOUTME: Carries the authenticated operator through request handlers
// ABOUTME: Set by the HTTP middleware, read by handlers for logging

package auth

import "context"

type operatorKey struct{}

// WithOperator returns a context carrying the operator name
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, operatorKey{}, operator)
}

// OperatorFrom returns the operator stored in ctx, or "" when the request was not authenticated
func OperatorFrom(ctx context.Context) string {
	op, _ := ctx.Value(operatorKey{}).(string)
	return op
}
