package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		surface   bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", surface: true, detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required", surface: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found", surface: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded", retryable: true, surface: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodeConfiguration, status: http.StatusInternalServerError, publicMsg: "service misconfigured", surface: true},
		{code: CodeIntegrity, status: http.StatusInternalServerError, publicMsg: "data integrity violation", surface: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.SurfaceMessage != tt.surface {
			t.Fatalf("code %s expected surface %v got %v", tt.code, tt.surface, meta.SurfaceMessage)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatal("nil is not retryable")
	}
	if !IsRetryable(Wrap(CodeDependency, stdErrors.New("timeout"), "ping")) {
		t.Fatal("dependency errors are retryable")
	}
	if IsRetryable(New(CodeIntegrity, "two rows")) {
		t.Fatal("integrity errors are not retryable")
	}
	if !IsRetryable(stdErrors.New("plain")) {
		t.Fatal("uncoded errors are treated as internal")
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeDependency, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeDependency {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
	if wrapped.Error() != "DEPENDENCY_ERROR: ctx: boom" {
		t.Fatalf("unexpected error text %q", wrapped.Error())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeUnauthorized, "no entry")
	if got := As(err); got == nil || got.Code() != CodeUnauthorized {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsMatchesWrappedCode(t *testing.T) {
	sentinel := stdErrors.New("course not found")
	err := fmt.Errorf("checkout: %w", Wrap(CodeNotFound, sentinel, "course not found"))
	if !Is(err, CodeNotFound) {
		t.Fatalf("expected NOT_FOUND in chain")
	}
	if Is(err, CodeRateLimit) {
		t.Fatalf("unexpected RATE_LIMIT match")
	}
	if !stdErrors.Is(err, sentinel) {
		t.Fatalf("sentinel should remain reachable")
	}
}

func TestDumpCapturesPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "subscriptions_stripe_subscription_id_key", TableName: "subscriptions"}
	err := Wrap(CodeDependency, pgErr, "insert subscription")

	dump := Dump(err)
	if dump.Code != CodeDependency {
		t.Fatalf("expected dependency code, got %s", dump.Code)
	}
	if dump.PGCode != "23505" || dump.PGTable != "subscriptions" {
		t.Fatalf("unexpected pg details %+v", dump)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected chain of 2, got %v", dump.Chain)
	}
}

func TestDumpReadsLibPQErrors(t *testing.T) {
	err := fmt.Errorf("query: %w", &pq.Error{Code: "23503", Table: "users", Constraint: "users_current_subscription_id_fkey"})
	fields := Dump(err).Fields()
	if fields["pg_code"] != "23503" || fields["pg_constraint"] != "users_current_subscription_id_fkey" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatal("empty pg fields should be omitted")
	}
	if _, ok := fields["error_code"]; ok {
		t.Fatal("uncoded error should not report a code")
	}
}
