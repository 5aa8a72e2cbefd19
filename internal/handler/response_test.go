package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolkov/bankcore/internal/apperr"
)

func testHandler() *Handler {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Handler{log: log}
}

func TestStatusForKind(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.KindNotFound:          http.StatusNotFound,
		apperr.KindForbidden:         http.StatusForbidden,
		apperr.KindInsufficientFunds: http.StatusBadRequest,
		apperr.KindInvalidState:      http.StatusBadRequest,
		apperr.KindAmountExceedsDue:  http.StatusBadRequest,
		apperr.KindConflict:          http.StatusConflict,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusForKind(kind))
	}
}

func TestWriteErrorRendersKnownKinds(t *testing.T) {
	h := testHandler()
	rec := httptest.NewRecorder()
	h.writeError(rec, apperr.New(apperr.KindInsufficientFunds, "insufficient funds"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "insufficient funds", body.Error)
}

func TestWriteErrorHidesUnclassifiedErrors(t *testing.T) {
	h := testHandler()
	rec := httptest.NewRecorder()
	h.writeError(rec, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "internal error", body.Error, "driver errors must not leak to clients")
}
