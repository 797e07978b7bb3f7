package ormerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "bare",
			err:  New(KindUnknownType, "type not registered"),
			want: "[UnknownType] type not registered",
		},
		{
			name: "with type and field",
			err:  New(KindInvalidField, "column reused").WithType("Person").WithField("name"),
			want: "[InvalidField] column reused (type=Person, field=name)",
		},
		{
			name: "with op and cause",
			err:  Wrap(KindStorageIO, "failed to open database", fmt.Errorf("disk full")).WithOp("init"),
			want: "init: [StorageIO] failed to open database: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorIsMatchesKindThroughWrapping(t *testing.T) {
	inner := New(KindBlobTooLarge, "picture exceeds 16 bytes")
	outer := Wrap(KindInsertFailed, "record 2 rejected", inner).WithType("Person")
	wrapped := fmt.Errorf("populate: %w", outer)

	if !errors.Is(wrapped, ErrInsertFailed) {
		t.Error("expected errors.Is(ErrInsertFailed)")
	}
	if !errors.Is(wrapped, ErrBlobTooLarge) {
		t.Error("expected errors.Is(ErrBlobTooLarge) through the cause")
	}
	if errors.Is(wrapped, ErrStorageIO) {
		t.Error("did not expect errors.Is(ErrStorageIO)")
	}
	if got := KindOf(wrapped); got != KindInsertFailed {
		t.Errorf("KindOf() = %s, want %s", got, KindInsertFailed)
	}
}

func TestIsProgrammerError(t *testing.T) {
	if !IsProgrammerError(New(KindHandleClosed, "closed")) {
		t.Error("HandleClosed should be a programmer error")
	}
	if !IsProgrammerError(New(KindNotInitialized, "not ready")) {
		t.Error("NotInitialized should be a programmer error")
	}
	if IsProgrammerError(New(KindStorageIO, "io")) {
		t.Error("StorageIO should not be a programmer error")
	}
	if IsProgrammerError(errors.New("plain")) {
		t.Error("plain errors should not be programmer errors")
	}
}
