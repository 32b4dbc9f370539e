package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
	"github.com/secmon-lab/beetleboard/pkg/domain/types"
	"github.com/secmon-lab/beetleboard/pkg/service/remilia"
	"github.com/secmon-lab/beetleboard/pkg/usecase"
	"github.com/secmon-lab/beetleboard/pkg/utils/errutil"
)

const generatingMessage = "Leaderboard data is being generated. Please try again in a few minutes."

type generatingResponse struct {
	Users   []model.RankedRecord `json:"users"`
	Message string               `json:"message"`
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, goerr.Wrap(usecase.ErrInvalidQuery, "not an integer", goerr.V(name, raw))
	}
	return n, nil
}

func parseLeaderboardQuery(r *http.Request) (model.LeaderboardQuery, error) {
	q := r.URL.Query()

	page, err := intParam(r, "page", 1)
	if err != nil {
		return model.LeaderboardQuery{}, err
	}
	limit, err := intParam(r, "limit", usecase.DefaultPageLimit)
	if err != nil {
		return model.LeaderboardQuery{}, err
	}
	sortBy, err := types.ParseSortField(q.Get("sortBy"))
	if err != nil {
		return model.LeaderboardQuery{}, goerr.Wrap(usecase.ErrInvalidQuery, err.Error())
	}
	direction, err := types.ParseSortDirection(q.Get("sortDirection"))
	if err != nil {
		return model.LeaderboardQuery{}, goerr.Wrap(usecase.ErrInvalidQuery, err.Error())
	}

	return model.LeaderboardQuery{
		Page:          page,
		Limit:         limit,
		Search:        q.Get("search"),
		SortBy:        sortBy,
		SortDirection: direction,
	}, nil
}

func leaderboardHandler(uc LeaderboardUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		query, err := parseLeaderboardQuery(r)
		if err != nil {
			writeError(ctx, w, http.StatusBadRequest, err.Error())
			return
		}

		page, err := uc.List(ctx, query)
		switch {
		case err == nil:
			writeJSON(ctx, w, http.StatusOK, page)
		case errors.Is(err, usecase.ErrInvalidQuery):
			writeError(ctx, w, http.StatusBadRequest, err.Error())
		case errors.Is(err, usecase.ErrSnapshotUnavailable):
			writeJSON(ctx, w, http.StatusAccepted, generatingResponse{
				Users:   []model.RankedRecord{},
				Message: generatingMessage,
			})
		default:
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to list leaderboard"), http.StatusInternalServerError)
		}
	}
}

func lookupHandler(uc LeaderboardUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		record, err := uc.Lookup(ctx, chi.URLParam(r, "username"))
		switch {
		case err == nil:
			writeJSON(ctx, w, http.StatusOK, record)
		case errors.Is(err, usecase.ErrUserNotFound):
			writeError(ctx, w, http.StatusNotFound, "User not found")
		case errors.Is(err, usecase.ErrSnapshotUnavailable):
			writeJSON(ctx, w, http.StatusAccepted, generatingResponse{
				Users:   []model.RankedRecord{},
				Message: generatingMessage,
			})
		default:
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to look up user"), http.StatusInternalServerError)
		}
	}
}

func randomHandler(uc LeaderboardUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("Cache-Control", "no-store")

		username, err := uc.Random(ctx)
		switch {
		case err == nil:
			writeJSON(ctx, w, http.StatusOK, map[string]string{"username": username})
		case errors.Is(err, usecase.ErrSnapshotUnavailable):
			writeError(ctx, w, http.StatusServiceUnavailable, "No leaderboard data available")
		default:
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to pick random user"), http.StatusInternalServerError)
		}
	}
}

func profileHandler(uc ProfileUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		profile, err := uc.LiveProfile(ctx, chi.URLParam(r, "username"))
		if err == nil {
			writeJSON(ctx, w, http.StatusOK, profile)
			return
		}

		var se *remilia.StatusError
		switch {
		case errors.As(err, &se) && se.StatusCode == http.StatusNotFound:
			writeError(ctx, w, http.StatusNotFound, "User not found")
		case errors.Is(err, remilia.ErrInvalidPayload):
			writeError(ctx, w, http.StatusNotFound, "User not found")
		default:
			errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "failed to fetch profile"), http.StatusBadGateway)
		}
	}
}
