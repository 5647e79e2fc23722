package mid_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ardanlabs/bytecodelab/business/web/errs"
	"github.com/ardanlabs/bytecodelab/business/web/mid"
	"github.com/ardanlabs/bytecodelab/foundation/contract/artifact"
	"github.com/ardanlabs/bytecodelab/foundation/logger"
	"github.com/ardanlabs/bytecodelab/foundation/validate"
	"github.com/ardanlabs/bytecodelab/foundation/web"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_Errors(t *testing.T) {
	log := logger.NewNop()

	app := web.NewApp(make(chan os.Signal, 1), mid.Logger(log), mid.Errors(log), mid.Cors("*"), mid.Panics())

	fail := func(err error) web.Handler {
		return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			return err
		}
	}

	app.Handle(http.MethodGet, "", "/trusted", fail(errs.Conflict(errors.New("a job is already running"))))
	app.Handle(http.MethodGet, "", "/fields", fail(validate.FieldErrors{{Field: "kind", Error: "kind is required"}}))
	app.Handle(http.MethodGet, "", "/missing", fail(fmt.Errorf("load: %w", artifact.ErrNotFound)))
	app.Handle(http.MethodGet, "", "/internal", fail(errors.New("disk on fire")))
	app.Handle(http.MethodGet, "", "/panic", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		panic("boom")
	})

	tt := []struct {
		path   string
		status int
		msg    string
	}{
		{"/trusted", http.StatusConflict, "a job is already running"},
		{"/fields", http.StatusBadRequest, "data validation error"},
		{"/missing", http.StatusNotFound, "load: artifact not found"},
		{"/internal", http.StatusInternalServerError, "Internal Server Error"},
		{"/panic", http.StatusInternalServerError, "Internal Server Error"},
	}

	t.Log("Given the need to map handler errors to responses.")
	{
		for i, tst := range tt {
			t.Logf("\tTest %d:\tWhen calling %s.", i, tst.path)
			{
				r := httptest.NewRequest(http.MethodGet, tst.path, nil)
				w := httptest.NewRecorder()
				app.ServeHTTP(w, r)

				if w.Code != tst.status {
					t.Fatalf("\t%s\tTest %d:\tShould receive status %d: %d", failed, i, tst.status, w.Code)
				}
				t.Logf("\t%s\tTest %d:\tShould receive status %d.", success, i, tst.status)

				var resp errs.Response
				if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould decode the response: %v", failed, i, err)
				}

				if resp.Error != tst.msg {
					t.Fatalf("\t%s\tTest %d:\tShould see message %q: %q", failed, i, tst.msg, resp.Error)
				}
				t.Logf("\t%s\tTest %d:\tShould see the expected message.", success, i)

				if w.Header().Get("Access-Control-Allow-Origin") != "*" {
					t.Fatalf("\t%s\tTest %d:\tShould set the cors headers.", failed, i)
				}
			}
		}
	}
}
