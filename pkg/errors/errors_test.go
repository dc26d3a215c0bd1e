package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

// TestKindOf verifies classification of tagged, wrapped, and plain errors.
func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"rubric", RubricNotFound("food/cafe"), KindRubricNotFound},
		{"company", CompanyNotFound("acme-1"), KindCompanyNotFound},
		{"source", SourceNotFound([]string{"/a", "/b"}), KindSourceNotFound},
		{"wrapped company", fmt.Errorf("lookup: %w", CompanyNotFound("x")), KindCompanyNotFound},
		{"sentinel", fmt.Errorf("bad: %w", ErrInvalidInput), KindInvalidInput},
		{"timeout", ErrTimeout, KindUnavailable},
		{"plain", errors.New("boom"), KindInternal},
		{"nil", nil, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

// TestDirectoryErrorIs verifies errors.Is matches both the sentinel and the cause.
func TestDirectoryErrorIs(t *testing.T) {
	cause := errors.New("disk on fire")
	err := &DirectoryError{Kind: KindInternal, Err: cause}
	if !errors.Is(err, ErrInternal) {
		t.Error("expected errors.Is to match ErrInternal")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to match the cause")
	}
	if errors.Is(RubricNotFound("x"), ErrCompanyNotFound) {
		t.Error("rubric error must not match ErrCompanyNotFound")
	}
}

// TestSourceNotFoundMessage verifies every attempted path is named.
func TestSourceNotFoundMessage(t *testing.T) {
	msg := SourceNotFound([]string{"/env/path.jsonl", "/cwd/public/data/ibiz/companies.jsonl"}).Error()
	for _, want := range []string{"source_not_found", "/env/path.jsonl", "/cwd/public/data/ibiz/companies.jsonl"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected message to contain %q, got %q", want, msg)
		}
	}
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{RubricNotFound("x"), http.StatusNotFound},
		{CompanyNotFound("x"), http.StatusNotFound},
		{InvalidInput("lat out of range"), http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{ErrRateLimited, http.StatusTooManyRequests},
		{SourceNotFound(nil), http.StatusInternalServerError},
		{New(ErrUnavailable, http.StatusBadGateway, "upstream"), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := HTTPStatusCode(tt.err); got != tt.want {
			t.Errorf("HTTPStatusCode(%v): expected %d, got %d", tt.err, tt.want, got)
		}
	}
}
