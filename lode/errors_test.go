package lode

import (
	"errors"
	"os"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		errMsg   string
		wantKind error
	}{
		{"context deadline exceeded", ErrTimeout},
		{"connection timeout after 30s", ErrTimeout},
		{"AccessDenied: you do not have access", ErrAccessDenied},
		{"received status 403", ErrAccessDenied},
		{"permission denied for /data/reports", ErrPermissionDenied},
		{"open /tmp/file: EACCES", ErrPermissionDenied},
		{"write /data/reports: no space left on device", ErrDiskFull},
		{"quota exceeded for user", ErrDiskFull},
		{"no such file or directory", ErrNotFound},
		{"NoSuchKey: The specified key does not exist", ErrNotFound},
		{"received status 429", ErrThrottled},
		{"SlowDown: please reduce request rate", ErrThrottled},
		{"NoCredentialProviders: no valid credential providers", ErrAuth},
		{"ExpiredToken: the security token has expired", ErrAuth},
		{"dial tcp 127.0.0.1:9000: connection refused", ErrNetwork},
		{"DNS lookup failed for bucket.s3.amazonaws.com", ErrNetwork},
		{"something completely unexpected happened", ErrUnclassified},
	}

	for _, tt := range tests {
		t.Run(tt.errMsg, func(t *testing.T) {
			got := classifyError(errors.New(tt.errMsg))
			if !errors.Is(got, tt.wantKind) {
				t.Errorf("classifyError(%q) = %v, want %v", tt.errMsg, got, tt.wantKind)
			}
		})
	}
}

func TestClassifyError_TimeoutType(t *testing.T) {
	if got := classifyError(os.ErrDeadlineExceeded); got != ErrTimeout {
		t.Errorf("classifyError(os.ErrDeadlineExceeded) = %v, want ErrTimeout", got)
	}
}

func TestClassifyError_Nil(t *testing.T) {
	if got := classifyError(nil); got != nil {
		t.Errorf("classifyError(nil) = %v, want nil", got)
	}
}

func TestStorageError_Chain(t *testing.T) {
	cause := errors.New("open /data: permission denied")
	err := WrapWriteError(cause, "canv/run-1")

	if !errors.Is(err, ErrPermissionDenied) {
		t.Error("wrapped error should match its kind")
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error should keep its cause in the chain")
	}
	var se *StorageError
	if !errors.As(err, &se) {
		t.Fatal("wrapped error should be a *StorageError")
	}
	if se.Op != "write" || se.Path != "canv/run-1" {
		t.Errorf("StorageError = %+v", se)
	}
	if want := "write canv/run-1: permission denied: open /data: permission denied"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	if WrapReadError(nil, "x") != nil || WrapInitError(nil, "x") != nil {
		t.Error("wrapping nil should return nil")
	}
}
