package inbox

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyFreshInsert(t *testing.T) {
	fresh, err := classify(nil)
	if err != nil {
		t.Fatalf("classify(nil) returned error: %v", err)
	}
	if !fresh {
		t.Fatal("successful insert must report fresh")
	}
}

func TestClassifyDuplicateKey(t *testing.T) {
	fresh, err := classify(&pgconn.PgError{Code: "23505"})
	if err != nil {
		t.Fatalf("duplicate key must not surface as error, got %v", err)
	}
	if fresh {
		t.Fatal("duplicate key must report not fresh")
	}
}

func TestClassifyOtherErrors(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "53300"}
	if fresh, err := classify(pgErr); err == nil || fresh {
		t.Fatalf("non-duplicate pg error must propagate, got fresh=%v err=%v", fresh, err)
	}
	plain := errors.New("connection reset")
	if fresh, err := classify(plain); !errors.Is(err, plain) || fresh {
		t.Fatalf("plain error must propagate, got fresh=%v err=%v", fresh, err)
	}
}
