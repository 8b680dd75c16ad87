package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/outreach-backend/internal/engine"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/repository"
)

var (
	_ Runner       = (*engine.Engine)(nil)
	_ DetailLoader = (*repository.CampaignRepository)(nil)
	_ StateFinder  = (*repository.CampaignStateRepository)(nil)
)

type fakeRunner struct {
	started     *model.CampaignDetail
	startErr    error
	stopped     string
	stoppedType model.CampaignType
	running     bool
	stopErr     error
}

func (f *fakeRunner) Start(_ context.Context, t model.CampaignType, d *model.CampaignDetail) error {
	if f.startErr != nil {
		return f.startErr
	}
	d.Type = t
	f.started = d
	return nil
}

func (f *fakeRunner) Stop(_ context.Context, id string, t model.CampaignType) (bool, error) {
	f.stopped = id
	f.stoppedType = t
	return f.running, f.stopErr
}

func (f *fakeRunner) Phase(id string) engine.Phase {
	if f.started != nil && f.started.CampaignID == id {
		return engine.PhaseDispatching
	}
	return engine.PhaseIdle
}

type fakeDetails map[string]*model.CampaignDetail

func (f fakeDetails) LoadDetail(_ context.Context, id string) (*model.CampaignDetail, error) {
	d, ok := f[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return d, nil
}

type fakeStates map[string]*model.CampaignState

func (f fakeStates) Find(_ context.Context, id string) (*model.CampaignState, error) {
	s, ok := f[id]
	if !ok {
		return nil, appErrors.ErrStateNotFound
	}
	return s, nil
}

func serve(t *testing.T, h *CampaignStateHandler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, httptest.NewRequest(method, path, &buf))
	return rr
}

func newTestHandler(r *fakeRunner) *CampaignStateHandler {
	details := fakeDetails{"c1": {CampaignID: "c1", Type: model.CampaignTypeConnection}}
	states := fakeStates{"c1": {CampaignID: "c1", AccountID: "acc", IsRunning: true, RequestsSentToday: 7}}
	return NewCampaignStateHandler(r, details, states, logger.NewNop())
}

func TestStartCampaignHandler(t *testing.T) {
	runner := &fakeRunner{}
	h := newTestHandler(runner)

	rr := serve(t, h, http.MethodPost, "/start", startRequest{CampaignID: "c1", AccountID: "acc"})

	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, runner.started)
	assert.Equal(t, "acc", runner.started.AccountID)
	assert.Equal(t, model.CampaignTypeConnection, runner.started.Type)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "dispatching", resp["phase"])
}

func TestStartCampaignHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		runner   *fakeRunner
		body     any
		wantCode int
	}{
		{"missing account", &fakeRunner{}, startRequest{CampaignID: "c1"}, http.StatusBadRequest},
		{"unknown campaign", &fakeRunner{}, startRequest{CampaignID: "nope", AccountID: "acc"}, http.StatusNotFound},
		{"type mismatch", &fakeRunner{}, startRequest{CampaignID: "c1", AccountID: "acc", Type: model.CampaignTypeCommenting}, http.StatusBadRequest},
		{"busy elsewhere", &fakeRunner{startErr: appErrors.ErrCampaignBusy}, startRequest{CampaignID: "c1", AccountID: "acc"}, http.StatusConflict},
		{"shutting down", &fakeRunner{startErr: appErrors.ErrEngineClosed}, startRequest{CampaignID: "c1", AccountID: "acc"}, http.StatusServiceUnavailable},
		{"malformed body", &fakeRunner{}, "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(t, newTestHandler(tt.runner), http.MethodPost, "/start", tt.body)
			assert.Equal(t, tt.wantCode, rr.Code)
		})
	}
}

func TestStopCampaignHandler(t *testing.T) {
	runner := &fakeRunner{running: true}
	rr := serve(t, newTestHandler(runner), http.MethodPost, "/stop", startRequest{CampaignID: "c1", Type: model.CampaignTypeConnection})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "c1", runner.stopped)
	assert.JSONEq(t, `{"message":"campaign stopped","stopped":true}`, rr.Body.String())

	rr = serve(t, newTestHandler(&fakeRunner{}), http.MethodPost, "/stop", startRequest{CampaignID: "c1", Type: model.CampaignTypeConnection})
	assert.JSONEq(t, `{"message":"campaign is not running","stopped":false}`, rr.Body.String())

	rr = serve(t, newTestHandler(&fakeRunner{stopErr: appErrors.NewCampaignNotFound("c9")}), http.MethodPost, "/stop", startRequest{CampaignID: "c9", Type: model.CampaignTypeConnection})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = serve(t, newTestHandler(&fakeRunner{stopErr: appErrors.Invalid("unknown campaign type")}), http.MethodPost, "/stop", startRequest{CampaignID: "c1", Type: "Bogus"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStopCampaignHandler_TypeFromStoredCampaign(t *testing.T) {
	runner := &fakeRunner{running: true}
	rr := serve(t, newTestHandler(runner), http.MethodPost, "/stop", startRequest{CampaignID: "c1"})

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "c1", runner.stopped)
	assert.Equal(t, model.CampaignTypeConnection, runner.stoppedType)

	runner = &fakeRunner{}
	rr = serve(t, newTestHandler(runner), http.MethodPost, "/stop", startRequest{CampaignID: "c9"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Empty(t, runner.stopped)
}

func TestGetCampaignStateHandler(t *testing.T) {
	h := newTestHandler(&fakeRunner{})

	rr := serve(t, h, http.MethodGet, "/c1", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		State model.CampaignState `json:"state"`
		Phase string              `json:"phase"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, 7, resp.State.RequestsSentToday)
	assert.Equal(t, "idle", resp.Phase)

	rr = serve(t, h, http.MethodGet, "/c2", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
