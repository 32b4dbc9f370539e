package config_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/beetleboard/pkg/cli/config"
)

func TestStoreValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.Store
		wantErr error
	}{
		{"memory", config.NewStoreForTest("memory", "", "", ""), nil},
		{"pebble", config.NewStoreForTest("pebble", "/tmp/x", "", ""), nil},
		{"pebble without path", config.NewStoreForTest("pebble", "", "", ""), config.ErrMissingRequired},
		{"redis without url", config.NewStoreForTest("redis", "", "", ""), config.ErrMissingRequired},
		{"redis", config.NewStoreForTest("redis", "", "redis://localhost:6379/0", ""), nil},
		{"firestore without project", config.NewStoreForTest("firestore", "", "", ""), config.ErrMissingRequired},
		{"unknown", config.NewStoreForTest("mysql", "", "", ""), config.ErrInvalidBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				gt.NoError(t, err)
				return
			}
			gt.B(t, errors.Is(err, tt.wantErr)).True()
		})
	}
}

func TestStoreConfigure(t *testing.T) {
	ctx := context.Background()

	t.Run("memory keeps data across reconnects", func(t *testing.T) {
		conn, err := config.NewStoreForTest("memory", "", "", "").Configure()
		gt.NoError(t, err).Required()

		store, err := conn.Store(ctx)
		gt.NoError(t, err).Required()
		gt.NoError(t, store.Set(ctx, "k", []byte("v"), 0)).Required()

		conn.Reset()
		store, err = conn.Store(ctx)
		gt.NoError(t, err).Required()
		v, err := store.Get(ctx, "k")
		gt.NoError(t, err).Required()
		gt.Value(t, string(v)).Equal("v")
	})

	t.Run("pebble opens in directory", func(t *testing.T) {
		conn, err := config.NewStoreForTest("pebble", t.TempDir(), "", "").Configure()
		gt.NoError(t, err).Required()

		store, err := conn.Store(ctx)
		gt.NoError(t, err).Required()
		gt.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
		gt.NoError(t, conn.Disconnect(ctx))
	})
}
