package apierr

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteJSONMapsKindToStatus(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, nil, New(Full, "lobby is full"))

	require.Equal(t, 409, w.Code)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	require.Equal(t, false, decoded["success"])
	errObj := decoded["error"].(map[string]interface{})
	require.Equal(t, "full", errObj["kind"])
	require.Equal(t, "lobby is full", errObj["message"])
}

func TestWriteJSONHidesInternalCause(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, nil, Wrap(Internal, "could not save lobby", errors.New("pgx: connection refused")))

	require.Equal(t, 500, w.Code)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	errObj := decoded["error"].(map[string]interface{})
	require.NotContains(t, errObj["message"], "pgx")
}

func TestWriteJSONWrapsPlainErrors(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, nil, errors.New("some unexpected failure"))
	require.Equal(t, 500, w.Code)
}

func TestAsExtractsUnderlyingError(t *testing.T) {
	err := Wrap(NotFound, "no such lobby", errors.New("index miss"))
	apiErr, ok := As(err)
	require.True(t, ok)
	require.Equal(t, NotFound, apiErr.Kind)
}
