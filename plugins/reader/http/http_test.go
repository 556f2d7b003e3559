package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hghplan/pkg/contract"
)

func TestOpenOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer x", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"classes":{}}`)
	}))
	defer srv.Close()

	r := New(&Options{Headers: map[string]string{"Authorization": "Bearer x"}})
	rc, err := r.Open(context.Background(), srv.URL+"/plan.json")
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `{"classes":{}}`, string(b))
}

// TestOpenStatus 非 2xx 归类为 ErrFetch
func TestOpenStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()
	_, err := New(nil).Open(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, contract.ErrFetch))
	assert.Contains(t, err.Error(), "404")
}

func TestOpenMaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "0123456789")
	}))
	defer srv.Close()
	rc, err := New(&Options{MaxBytes: 4}).Open(context.Background(), srv.URL)
	require.NoError(t, err)
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "0123", string(b))
}

// TestOpenTimeout ctx 超时返回上下文错误
func TestOpenTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := New(nil).Open(ctx, srv.URL)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}

func TestOpenRejectsNonHTTP(t *testing.T) {
	_, err := New(nil).Open(context.Background(), "ftp://x/plan.json")
	assert.True(t, errors.Is(err, contract.ErrInvalidInput))
}
