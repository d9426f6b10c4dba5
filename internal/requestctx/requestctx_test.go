package requestctx

import (
	"context"
	"testing"
)

func TestRequestValuesRoundTrip(t *testing.T) {
	ctx := WithClientIP(WithRequestID(context.Background(), "req-1"), "203.0.113.9")
	if got := GetRequestID(ctx); got != "req-1" {
		t.Fatalf("expected request id, got %q", got)
	}
	if got := GetClientIP(ctx); got != "203.0.113.9" {
		t.Fatalf("expected client ip, got %q", got)
	}
	if GetRequestID(context.Background()) != "" || GetClientIP(context.Background()) != "" {
		t.Fatal("expected empty values on bare context")
	}
}
