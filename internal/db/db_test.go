package db

import (
	"errors"
	"testing"

	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	if !IsUniqueViolation(&pq.Error{Code: "23505"}) {
		t.Fatal("expected 23505 to be a unique violation")
	}
	if IsUniqueViolation(&pq.Error{Code: "40001"}) {
		t.Fatal("serialization failure is not a unique violation")
	}
	if IsUniqueViolation(errors.New("plain error")) {
		t.Fatal("plain errors are not unique violations")
	}
}

func TestIsRetryablePGError(t *testing.T) {
	if !isRetryablePGError(&pq.Error{Code: "40001"}) {
		t.Fatal("expected serialization failure to be retryable")
	}
	if !isRetryablePGError(&pq.Error{Code: "40P01"}) {
		t.Fatal("expected deadlock to be retryable")
	}
	if isRetryablePGError(&pq.Error{Code: "23505"}) {
		t.Fatal("unique violation must not be retried")
	}
}
