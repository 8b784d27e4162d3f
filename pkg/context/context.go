// Package context carries boot and operation identity through kernel logging.
package context

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ctxKey is unexported so no other package can collide with these keys.
type ctxKey int

const (
	bootIDKey ctxKey = iota
	operationKey
	programKey
	startTimeKey
)

const (
	unknownBoot      = "unknown-boot"
	unknownOperation = "unknown-operation"
)

// WithBootID tags the context with a boot identifier. An empty id generates one.
func WithBootID(parent context.Context, bootID string) context.Context {
	if bootID == "" {
		bootID = GenerateBootID()
	}
	return context.WithValue(parent, bootIDKey, bootID)
}

// GetBootID retrieves the boot ID from context
func GetBootID(ctx context.Context) string {
	if id, ok := ctx.Value(bootIDKey).(string); ok && id != "" {
		return id
	}
	return unknownBoot
}

// HasBootID reports whether the context carries a boot ID.
func HasBootID(ctx context.Context) bool {
	return GetBootID(ctx) != unknownBoot
}

// WithOperation adds an operation name to the context
func WithOperation(parent context.Context, operation string) context.Context {
	return context.WithValue(parent, operationKey, operation)
}

// GetOperation retrieves the operation name from context
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey).(string); ok && op != "" {
		return op
	}
	return unknownOperation
}

// WithProgram records the user program a boot was started for.
func WithProgram(parent context.Context, program string) context.Context {
	return context.WithValue(parent, programKey, program)
}

// GetProgram returns the program recorded by WithProgram, or "".
func GetProgram(ctx context.Context) string {
	if p, ok := ctx.Value(programKey).(string); ok {
		return p
	}
	return ""
}

// WithStartTime adds the operation start time to the context
func WithStartTime(parent context.Context, startTime time.Time) context.Context {
	return context.WithValue(parent, startTimeKey, startTime)
}

// GetStartTime retrieves the start time, or the zero time if none was set.
func GetStartTime(ctx context.Context) time.Time {
	if t, ok := ctx.Value(startTimeKey).(time.Time); ok {
		return t
	}
	return time.Time{}
}

// GetDuration returns the time since the recorded start, or 0 without one.
func GetDuration(ctx context.Context) time.Duration {
	start := GetStartTime(ctx)
	if start.IsZero() {
		return 0
	}
	return time.Since(start)
}

// GenerateBootID creates a new unique boot ID
func GenerateBootID() string {
	return "boot_" + uuid.New().String()
}

// EnrichContext adds a boot ID (if missing) and a start time.
func EnrichContext(parent context.Context) context.Context {
	ctx := parent
	if !HasBootID(ctx) {
		ctx = WithBootID(ctx, GenerateBootID())
	}
	return WithStartTime(ctx, time.Now())
}
