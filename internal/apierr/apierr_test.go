package apierr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("score: %w", Service(422, "Resume or JD missing"))

	if got := KindOf(err); got != KindService {
		t.Fatalf("expected service kind, got %q", got)
	}
	if got := UserMessage(err); got != "Resume or JD missing" {
		t.Fatalf("unexpected user message: %q", got)
	}
	if KindOf(io.EOF) != "" {
		t.Fatalf("expected empty kind for foreign error")
	}
}

func TestErrAuthRequiredMatches(t *testing.T) {
	err := fmt.Errorf("save: %w", Validation("authentication required"))
	if !errors.Is(err, ErrAuthRequired) {
		t.Fatalf("expected auth required match")
	}
	if errors.Is(Validation("criteria is required"), ErrAuthRequired) {
		t.Fatalf("did not expect other validation errors to match")
	}
}

func TestUserMessageDoesNotLeak(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		expect string
	}{
		{name: "network", err: Network(errors.New("dial tcp 10.0.0.1:8000: refused")), expect: msgUnreachable},
		{name: "timeout", err: Timeout(context.DeadlineExceeded), expect: msgTimeout},
		{name: "malformed", err: Malformed(errors.New("invalid character '<'")), expect: msgMalformed},
		{name: "expired", err: AuthExpired(401), expect: msgExpired},
		{name: "canceled", err: Canceled(context.Canceled), expect: msgCanceled},
		{name: "foreign", err: errors.New("boom"), expect: msgMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := UserMessage(tt.err); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestFromContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := FromContext(ctx, ctx.Err()).Kind; got != KindCanceled {
		t.Fatalf("expected canceled, got %q", got)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()
	if got := FromContext(ctx, ctx.Err()).Kind; got != KindNetwork {
		t.Fatalf("expected network for deadline, got %q", got)
	}

	if got := FromContext(context.Background(), io.ErrUnexpectedEOF).Kind; got != KindNetwork {
		t.Fatalf("expected network, got %q", got)
	}
}
