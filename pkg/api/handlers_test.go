package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"turnrouter/pkg/routing"
)

// stubRouter returns a canned result or error.
type stubRouter struct {
	result *routing.RouteResult
	err    error
}

func (s stubRouter) Route(ctx context.Context, start, end routing.LatLng) (*routing.RouteResult, error) {
	return s.result, s.err
}

func routeRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/route", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

const validBody = `{"start":{"lat":1.30,"lng":103.80},"end":{"lat":1.31,"lng":103.81}}`

func TestHandleRouteSuccess(t *testing.T) {
	h := NewHandlers(stubRouter{result: &routing.RouteResult{
		TotalDistanceMeters: 1234.5,
		Geometry: []routing.LatLng{
			{Lat: 1.30, Lng: 103.80},
			{Lat: 1.31, Lng: 103.81},
		},
	}}, StatsResponse{})

	rec := httptest.NewRecorder()
	h.HandleRoute(rec, routeRequest(t, validBody))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp RouteResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, 1234.5, resp.TotalDistanceMeters)
	require.Len(t, resp.Geometry, 2)
	require.Equal(t, 103.81, resp.Geometry[1].Lng)
}

func TestHandleRouteErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"no route", routing.ErrNoRoute, http.StatusNotFound, "no_route_found"},
		{"point too far", routing.ErrPointTooFar, http.StatusUnprocessableEntity, "point_too_far_from_road"},
		{"timeout", context.DeadlineExceeded, http.StatusServiceUnavailable, "request_timeout"},
		{"internal", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandlers(stubRouter{err: tc.err}, StatsResponse{})
			rec := httptest.NewRecorder()
			h.HandleRoute(rec, routeRequest(t, validBody))

			require.Equal(t, tc.wantStatus, rec.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			require.Equal(t, tc.wantCode, resp.Error)
		})
	}
}

func TestHandleRouteRejectsBadRequests(t *testing.T) {
	h := NewHandlers(stubRouter{result: &routing.RouteResult{}}, StatsResponse{})

	t.Run("wrong content type", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/route", strings.NewReader(validBody))
		req.Header.Set("Content-Type", "text/plain")
		rec := httptest.NewRecorder()
		h.HandleRoute(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.HandleRoute(rec, routeRequest(t, `{"start":`))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("latitude out of range", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.HandleRoute(rec, routeRequest(t, `{"start":{"lat":95,"lng":103.80},"end":{"lat":1.31,"lng":103.81}}`))
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Equal(t, "invalid_coordinates", resp.Error)
		require.Equal(t, "start", resp.Field)
	})
}

func TestHandleHealth(t *testing.T) {
	h := NewHandlers(stubRouter{}, StatsResponse{})
	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "ok", resp.Status)
}

func TestHandleStats(t *testing.T) {
	stats := StatsResponse{NumNodes: 10, NumEdges: 24, NumOriginalEdges: 48}
	h := NewHandlers(stubRouter{}, stats)
	rec := httptest.NewRecorder()
	h.HandleStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, stats, resp)
}
