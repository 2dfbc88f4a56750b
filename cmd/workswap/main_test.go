package main

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingCloser struct {
	closed int
	err    error
}

func (c *recordingCloser) Close() error {
	c.closed++
	return c.err
}

func TestFinish(t *testing.T) {
	tests := []struct {
		name     string
		runErr   error
		closeErr error
		wantCode int
		wantLog  bool
	}{
		{"clean exit", nil, nil, 0, false},
		{"run failed", errors.New("bind: address in use"), nil, 1, true},
		{"close failed", nil, errors.New("fluent down"), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := slog.New(slog.NewJSONHandler(&buf, nil))
			closer := &recordingCloser{err: tt.closeErr}

			code := finish(log, closer, tt.runErr)

			assert.Equal(t, tt.wantCode, code)
			// 失败退出时日志同样要被关闭
			assert.Equal(t, 1, closer.closed)
			if tt.wantLog {
				assert.Contains(t, buf.String(), "address in use")
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}
