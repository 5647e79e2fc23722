package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/bytecodelab/app/services/labd/handlers"
	"github.com/ardanlabs/bytecodelab/app/services/labd/handlers/v1/labgrp"
	"github.com/ardanlabs/bytecodelab/business/core/grouping"
	"github.com/ardanlabs/bytecodelab/business/core/jobs"
	"github.com/ardanlabs/bytecodelab/foundation/contract/artifact"
	"github.com/ardanlabs/bytecodelab/foundation/contract/equivalence"
	"github.com/ardanlabs/bytecodelab/foundation/events"
	"github.com/ardanlabs/bytecodelab/foundation/logger"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const validatorABI = `[{"inputs":[{"name":"threshold","type":"uint256"}],"stateMutability":"nonpayable","type":"constructor"}]`

func newMux(t *testing.T) (http.Handler, *jobs.Slot, string) {
	reports := t.TempDir()

	store, err := artifact.NewDisk(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	runtime := []byte{0x60, 0x80, 0x60, 0x40, 0x52, 0xa1, 0xa1, 0x00, 0x02}
	for _, prefix := range []string{"embedded1", "embedded200"} {
		a := artifact.Artifact{Contract: "TokenValidator", ABI: []byte(validatorABI), Bytecode: []byte{0x00}, DeployedBytecode: runtime}
		if err := store.Save(prefix, a); err != nil {
			t.Fatal(err)
		}
	}

	slot := jobs.NewSlot(nil)
	t.Cleanup(func() { slot.Shutdown(context.Background()) })

	mux := handlers.APIMux(handlers.MuxConfig{
		Shutdown:   make(chan os.Signal, 1),
		Log:        logger.NewNop(),
		CORSOrigin: "*",
		Slot:       slot,
		Evts:       events.New(),
		Lab: labgrp.Lab{
			Store:       store,
			ReportsPath: reports,
			Datasets: []grouping.Dataset{
				{Name: "tokenValidator", Contract: "TokenValidator", Prefixes: []string{"embedded1", "embedded200"}},
			},
		},
	})

	return mux, slot, reports
}

func call(mux http.Handler, method string, path string, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

func waitIdle(t *testing.T, slot *jobs.Slot) {
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if _, running := slot.Current(); !running {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("\t%s\tShould finish the job in time.", failed)
}

// =============================================================================

func Test_GroupJob(t *testing.T) {
	mux, slot, _ := newMux(t)

	t.Log("Given a service with stored variants.")
	{
		t.Logf("\tTest 0:\tWhen the report does not exist yet.")
		{
			w := call(mux, http.MethodGet, "/v1/reports/"+labgrp.GroupsReport, "")
			if w.Code != http.StatusNotFound {
				t.Fatalf("\t%s\tTest 0:\tShould receive a 404: %d", failed, w.Code)
			}
			t.Logf("\t%s\tTest 0:\tShould receive a 404.", success)
		}

		t.Logf("\tTest 1:\tWhen running a stored grouping job.")
		{
			w := call(mux, http.MethodPost, "/v1/jobs/group", `{"source":"stored","hash":"stripped"}`)
			if w.Code != http.StatusAccepted {
				t.Fatalf("\t%s\tTest 1:\tShould accept the job: %d %s", failed, w.Code, w.Body)
			}
			t.Logf("\t%s\tTest 1:\tShould accept the job.", success)

			waitIdle(t, slot)

			w = call(mux, http.MethodGet, "/v1/jobs", "")
			var resp labgrp.JobsResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould decode the job list: %v", failed, err)
			}
			if resp.Current != nil || len(resp.History) != 1 || resp.History[0].State != jobs.StateSucceeded {
				t.Fatalf("\t%s\tTest 1:\tShould report the success: %+v", failed, resp)
			}
			t.Logf("\t%s\tTest 1:\tShould report the success.", success)

			w = call(mux, http.MethodGet, "/v1/reports/"+labgrp.GroupsReport, "")
			if w.Code != http.StatusOK {
				t.Fatalf("\t%s\tTest 1:\tShould serve the report: %d", failed, w.Code)
			}

			var doc map[string][]equivalence.ReportGroup
			if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould serve valid json: %v", failed, err)
			}
			if groups := doc["tokenValidatorGroups"]; len(groups) != 1 || len(groups[0].Contracts) != 2 {
				t.Fatalf("\t%s\tTest 1:\tShould group both variants together: %+v", failed, doc)
			}
			t.Logf("\t%s\tTest 1:\tShould group both variants together.", success)
		}
	}
}

func Test_JobRequests(t *testing.T) {
	mux, slot, _ := newMux(t)

	t.Log("Given the need to reject bad job requests.")
	{
		t.Logf("\tTest 0:\tWhen the kind is unknown.")
		{
			w := call(mux, http.MethodPost, "/v1/jobs/compile", "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest 0:\tShould receive a 400: %d", failed, w.Code)
			}
			t.Logf("\t%s\tTest 0:\tShould receive a 400.", success)
		}

		t.Logf("\tTest 1:\tWhen the source is invalid.")
		{
			w := call(mux, http.MethodPost, "/v1/jobs/group", `{"source":"chain"}`)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest 1:\tShould receive a 400: %d", failed, w.Code)
			}
			t.Logf("\t%s\tTest 1:\tShould receive a 400.", success)
		}

		t.Logf("\tTest 2:\tWhen a job is already running.")
		{
			release := make(chan struct{})
			if _, err := slot.Start("audit", func(ctx context.Context, runID string) error {
				<-release
				return nil
			}); err != nil {
				t.Fatal(err)
			}

			w := call(mux, http.MethodPost, "/v1/jobs/group", `{"source":"stored"}`)
			if w.Code != http.StatusConflict {
				t.Fatalf("\t%s\tTest 2:\tShould receive a 409: %d", failed, w.Code)
			}
			t.Logf("\t%s\tTest 2:\tShould receive a 409.", success)

			close(release)
			waitIdle(t, slot)
		}

		t.Logf("\tTest 3:\tWhen the report name escapes the folder.")
		{
			w := call(mux, http.MethodGet, "/v1/reports/..secret", "")
			if w.Code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest 3:\tShould receive a 400: %d", failed, w.Code)
			}
			t.Logf("\t%s\tTest 3:\tShould receive a 400.", success)
		}

		t.Logf("\tTest 4:\tWhen cancelling with no job running.")
		{
			w := call(mux, http.MethodDelete, "/v1/jobs/current", "")
			if w.Code != http.StatusNotFound {
				t.Fatalf("\t%s\tTest 4:\tShould receive a 404: %d", failed, w.Code)
			}
			t.Logf("\t%s\tTest 4:\tShould receive a 404.", success)
		}
	}
}
