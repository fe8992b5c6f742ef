package rpc

import (
	"context"
	"math"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/soundmatch/internal/auth"
	svcErr "github.com/oggyb/soundmatch/internal/errors"
)

// String returns the trimmed string field, or "" when absent.
func String(req *structpb.Struct, key string) string {
	v, ok := req.GetFields()[key]
	if !ok {
		return ""
	}
	return strings.TrimSpace(v.GetStringValue())
}

// RequireString is String that fails with INVALID_ARGUMENT when empty.
func RequireString(req *structpb.Struct, key string) (string, error) {
	s := String(req, key)
	if s == "" {
		return "", svcErr.New(svcErr.CodeInvalidArgument, "%s is required", key)
	}
	return s, nil
}

// OptionalString returns nil when the field is absent or empty.
func OptionalString(req *structpb.Struct, key string) *string {
	s := String(req, key)
	if s == "" {
		return nil
	}
	return &s
}

// Number returns a numeric field and whether it was set.
func Number(req *structpb.Struct, key string) (float64, bool) {
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, false
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, false
	}
	return n.NumberValue, true
}

// Int returns an integral field, or def when absent. Fractions are an error.
func Int(req *structpb.Struct, key string, def int) (int, error) {
	n, ok := Number(req, key)
	if !ok {
		return def, nil
	}
	if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
		return 0, svcErr.New(svcErr.CodeInvalidArgument, "%s must be an integer", key)
	}
	return int(n), nil
}

// Object returns a struct field as a plain map, or nil.
func Object(req *structpb.Struct, key string) map[string]any {
	v, ok := req.GetFields()[key]
	if !ok || v.GetStructValue() == nil {
		return nil
	}
	return v.GetStructValue().AsMap()
}

// Actor resolves the acting user. An authenticated caller is always the
// actor; a request field naming someone else is rejected. Without auth the
// field is required.
func Actor(ctx context.Context, req *structpb.Struct, key string) (string, error) {
	claimed := String(req, key)
	if id, ok := auth.ActorFrom(ctx); ok {
		if claimed != "" && claimed != id {
			return "", svcErr.New(svcErr.CodeUnauthenticated, "%s does not match the authenticated user", key)
		}
		return id, nil
	}
	if claimed == "" {
		return "", svcErr.New(svcErr.CodeInvalidArgument, "%s is required", key)
	}
	return claimed, nil
}
