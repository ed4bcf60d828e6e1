package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Outbox

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"cdigit/internal/backendsync"
	"cdigit/internal/backendsync/handler/mocks"
	"cdigit/internal/policy"
	dErrors "cdigit/pkg/domain-errors"
	"cdigit/pkg/platform/circuit"
	"cdigit/pkg/platform/sentinel"
	"cdigit/pkg/testutil"
)

type allowAll struct{}

func (allowAll) RequirePermission(...policy.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler { return next }
}

func newRouter(outbox Outbox) chi.Router {
	r := chi.NewRouter()
	New(outbox, allowAll{}, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func TestStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	outbox := mocks.NewMockOutbox(ctrl)
	outbox.EXPECT().Stats().Return(backendsync.Stats{Delivered: 4, DeadLetters: 1, Circuit: circuit.StateOpen})
	outbox.EXPECT().DeadLetters().Return([]backendsync.Command{{ID: "c-1", Kind: backendsync.KindWorkflowCreated, VoucherID: "V-1"}})

	rr := testutil.DoRequest(newRouter(outbox), testutil.NewRequest(t, http.MethodGet, "/admin/sync"))
	testutil.AssertStatusOK(t, rr)

	resp := testutil.UnmarshalResponse[statusResponse](t, rr)
	assert.EqualValues(t, 4, resp.Stats.Delivered)
	assert.Equal(t, circuit.StateOpen, resp.Stats.Circuit)
	assert.Len(t, resp.DeadLetters, 1)
}

func TestReplay(t *testing.T) {
	t.Run("reports the replayed count", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		outbox := mocks.NewMockOutbox(ctrl)
		outbox.EXPECT().Replay(gomock.Any()).Return(3, nil)

		rr := testutil.DoRequest(newRouter(outbox), testutil.NewRequest(t, http.MethodPost, "/admin/sync/replay"))
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "replayed", float64(3))
	})

	t.Run("closed outbox is unavailable", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		outbox := mocks.NewMockOutbox(ctrl)
		outbox.EXPECT().Replay(gomock.Any()).Return(0, sentinel.ErrClosed)

		rr := testutil.DoRequest(newRouter(outbox), testutil.NewRequest(t, http.MethodPost, "/admin/sync/replay"))
		testutil.AssertStatusAndError(t, rr, http.StatusServiceUnavailable, string(dErrors.CodeUnavailable))
	})

	t.Run("interrupted replay is unavailable", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		outbox := mocks.NewMockOutbox(ctrl)
		outbox.EXPECT().Replay(gomock.Any()).Return(1, context.DeadlineExceeded)

		rr := testutil.DoRequest(newRouter(outbox), testutil.NewRequest(t, http.MethodPost, "/admin/sync/replay"))
		testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
	})
}

func TestSyncDisabled(t *testing.T) {
	router := newRouter(nil)

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/admin/sync"))
	testutil.AssertStatusAndError(t, rr, http.StatusServiceUnavailable, string(dErrors.CodeUnavailable))

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodPost, "/admin/sync/replay"))
	testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
}
