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
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound},
		{code: CodeConflict, status: http.StatusConflict},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true, detailsOK: true},
		{code: CodeInvalidQuantity, status: http.StatusBadRequest, detailsOK: true},
		{code: CodeProductNotFound, status: http.StatusNotFound, detailsOK: true},
		{code: CodeCartNotFound, status: http.StatusNotFound},
		{code: CodeOrderNotFound, status: http.StatusNotFound, detailsOK: true},
		{code: CodeInsufficientStock, status: http.StatusConflict, detailsOK: true},
		{code: CodeEmptyCart, status: http.StatusUnprocessableEntity},
		{code: CodeItemsUnavailable, status: http.StatusConflict, detailsOK: true},
		{code: CodeMissingCustomerInfo, status: http.StatusUnprocessableEntity, detailsOK: true},
		{code: CodeInvalidTransition, status: http.StatusUnprocessableEntity, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage == "" {
			t.Fatalf("code %s has no public message", tt.code)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
	if IsPublic("SOMETHING_UNKNOWN") {
		t.Fatalf("unknown codes must not be public")
	}
	if IsPublic(CodeInternal) {
		t.Fatalf("internal errors must not be public")
	}
	if !IsPublic(CodeInsufficientStock) {
		t.Fatalf("insufficient stock should be public")
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
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeEmptyCart, "cart is empty"))
	if got := As(err); got == nil || got.Code() != CodeEmptyCart {
		t.Fatalf("As failed to return typed error")
	}
	if !HasCode(err, CodeEmptyCart) {
		t.Fatalf("HasCode should find the wrapped code")
	}
	if HasCode(err, CodeCartNotFound) {
		t.Fatalf("HasCode matched the wrong code")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	cause := stdErrors.New("db down")
	err := Wrap(CodeDependency, cause, "load cart")
	dump := Dump(err)
	if dump.Code != CodeDependency {
		t.Fatalf("expected dependency code in dump, got %s", dump.Code)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %v", dump.Chain)
	}
	if dump.PGCode != "" {
		t.Fatalf("did not expect a postgres code, got %q", dump.PGCode)
	}
}

func TestSQLStateFromDriverErrors(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "carts_session_id_key", TableName: "carts"}
	wrapped := fmt.Errorf("insert cart: %w", pgErr)
	if got := SQLState(wrapped); got != "23505" {
		t.Fatalf("expected 23505, got %q", got)
	}
	if got := ConstraintName(wrapped); got != "carts_session_id_key" {
		t.Fatalf("unexpected constraint %q", got)
	}

	pqErr := &pq.Error{Code: "40001", Table: "products"}
	dump := Dump(Wrap(CodeDependency, pqErr, "decrement stock"))
	if dump.PGCode != "40001" || dump.PGTable != "products" {
		t.Fatalf("unexpected pq dump %+v", dump)
	}
	if !dump.Retryable {
		t.Fatalf("dependency errors should be marked retryable")
	}

	if SQLState(stdErrors.New("plain")) != "" {
		t.Fatalf("plain errors carry no sqlstate")
	}
}
