package errutil_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/beetleboard/pkg/utils/errutil"
	"github.com/secmon-lab/beetleboard/pkg/utils/logging"
)

func withBuffer() (context.Context, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return logging.With(context.Background(), logger), &buf
}

func TestHandle(t *testing.T) {
	t.Run("nil error is ignored", func(t *testing.T) {
		ctx, buf := withBuffer()
		gt.NoError(t, errutil.Handle(ctx, nil, "nothing"))
		gt.Value(t, buf.Len()).Equal(0)
	})

	t.Run("logs goerr values and returns error", func(t *testing.T) {
		ctx, buf := withBuffer()
		err := goerr.New("boom", goerr.V("username", "alice"))

		gt.Value(t, errutil.Handle(ctx, err, "sync failed")).Equal(err)
		gt.String(t, buf.String()).Contains(`"msg":"sync failed"`)
		gt.String(t, buf.String()).Contains("alice")
	})
}

func TestHandleHTTP(t *testing.T) {
	ctx, buf := withBuffer()
	w := httptest.NewRecorder()

	errutil.HandleHTTP(ctx, w, goerr.New("store down"), http.StatusInternalServerError)
	gt.Value(t, w.Code).Equal(http.StatusInternalServerError)
	gt.String(t, w.Body.String()).Contains("store down")
	gt.String(t, buf.String()).Contains(`"status":500`)
}
