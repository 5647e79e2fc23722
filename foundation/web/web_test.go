package web_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/ardanlabs/bytecodelab/foundation/web"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_App(t *testing.T) {
	shutdown := make(chan os.Signal, 1)

	var order []string
	mw := func(name string) web.Middleware {
		return func(h web.Handler) web.Handler {
			return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
				order = append(order, name)
				return h(ctx, w, r)
			}
		}
	}

	app := web.NewApp(shutdown, mw("first"), mw("second"))

	app.Handle(http.MethodGet, "v1", "/echo/:name", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		resp := struct {
			Name    string `json:"name"`
			TraceID string `json:"trace_id"`
		}{
			Name:    web.Param(r, "name"),
			TraceID: web.GetTraceID(ctx),
		}
		return web.Respond(ctx, w, resp, http.StatusOK)
	}, mw("route"))

	app.Handle(http.MethodPost, "v1", "/decode", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		var body struct {
			Value int `json:"value"`
		}
		if err := web.Decode(r, &body); err != nil {
			return web.Respond(ctx, w, nil, http.StatusBadRequest)
		}
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	})

	app.Handle(http.MethodGet, "", "/fatal", func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		return web.NewShutdownError("integrity issue")
	})

	t.Log("Given the need to route requests through middleware.")
	{
		t.Logf("\tTest 0:\tWhen calling a route with a parameter.")
		{
			r := httptest.NewRequest(http.MethodGet, "/v1/echo/bill", nil)
			w := httptest.NewRecorder()
			app.ServeHTTP(w, r)

			if w.Code != http.StatusOK {
				t.Fatalf("\t%s\tTest 0:\tShould receive a 200 status: %d", failed, w.Code)
			}
			t.Logf("\t%s\tTest 0:\tShould receive a 200 status.", success)

			var resp struct {
				Name    string `json:"name"`
				TraceID string `json:"trace_id"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould decode the response: %v", failed, err)
			}

			if resp.Name != "bill" || resp.TraceID == "" {
				t.Fatalf("\t%s\tTest 0:\tShould see the parameter and a trace id: %+v", failed, resp)
			}
			t.Logf("\t%s\tTest 0:\tShould see the parameter and a trace id.", success)

			if strings.Join(order, ",") != "first,second,route" {
				t.Fatalf("\t%s\tTest 0:\tShould run middleware in order: %v", failed, order)
			}
			t.Logf("\t%s\tTest 0:\tShould run middleware in order.", success)
		}

		t.Logf("\tTest 1:\tWhen posting unknown fields.")
		{
			r := httptest.NewRequest(http.MethodPost, "/v1/decode", strings.NewReader(`{"other":1}`))
			w := httptest.NewRecorder()
			app.ServeHTTP(w, r)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("\t%s\tTest 1:\tShould reject the payload: %d", failed, w.Code)
			}
			t.Logf("\t%s\tTest 1:\tShould reject the payload.", success)
		}

		t.Logf("\tTest 2:\tWhen a handler reports a shutdown error.")
		{
			r := httptest.NewRequest(http.MethodGet, "/fatal", nil)
			w := httptest.NewRecorder()
			app.ServeHTTP(w, r)

			select {
			case <-shutdown:
				t.Logf("\t%s\tTest 2:\tShould signal shutdown.", success)
			default:
				t.Fatalf("\t%s\tTest 2:\tShould signal shutdown.", failed)
			}
		}
	}
}
