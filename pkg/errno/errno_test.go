package errno_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/kestrel-os/kestrel/pkg/errno"
)

func TestErrnoIsWrapped(t *testing.T) {
	err := fmt.Errorf("fork: %w", errno.ENOMEM)

	if !errors.Is(err, errno.ENOMEM) {
		t.Error("wrapped errno should match with errors.Is")
	}
	if errors.Is(err, errno.EAGAIN) {
		t.Error("ENOMEM must not match EAGAIN")
	}
	if got := errno.FromError(err); got != errno.ENOMEM {
		t.Errorf("FromError = %d, want %d", got, errno.ENOMEM)
	}
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errno.Errno
	}{
		{"nil", nil, 0},
		{"bare", errno.EINVAL, errno.EINVAL},
		{"foreign", errors.New("disk on fire"), errno.EIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errno.FromError(tt.err); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestErrorStrings(t *testing.T) {
	if errno.EFAULT.Error() != "bad address" {
		t.Errorf("unexpected EFAULT text %q", errno.EFAULT.Error())
	}
	if errno.Errno(999).Error() != "errno 999" {
		t.Errorf("unexpected unknown text %q", errno.Errno(999).Error())
	}
}
