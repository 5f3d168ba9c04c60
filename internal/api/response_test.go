package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BTreeMap/CoachPipe/internal/models"
)

func TestWriteJSONResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSONResponse(rec, http.StatusOK, models.SuccessWithMessage("done", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("unexpected status: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type: %q", ct)
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if resp.Status != models.APIStatusOK || resp.Message != "done" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
}

func TestWriteJSONResponseMarshalFaultFallsBack(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSONResponse(rec, http.StatusOK, make(chan int))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 on marshal fault, got %d", rec.Code)
	}
	expected, err := json.Marshal(models.Error("Internal server error"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	// The canned fallback must stay in lockstep with the envelope shape.
	if rec.Body.String() != string(expected) {
		t.Errorf("fallback body drifted from the error envelope: %s", rec.Body.String())
	}
}
