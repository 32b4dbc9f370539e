package http

import (
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/utils/errutil"
)

func cacheStatusHandler(uc CacheUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		status, err := uc.Status(ctx)
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to read cache status"), http.StatusInternalServerError)
			return
		}
		writeJSON(ctx, w, http.StatusOK, status)
	}
}

func flushHandler(uc CacheUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		result, err := uc.Flush(ctx)
		if err != nil {
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to flush cache"), http.StatusInternalServerError)
			return
		}
		writeJSON(ctx, w, http.StatusOK, map[string]any{
			"success": true,
			"deleted": result,
		})
	}
}
