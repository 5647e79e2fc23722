package mid

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/ardanlabs/bytecodelab/foundation/web"
)

// Panics recovers from panics and converts the panic to an error so it is
// handled in Errors.
func Panics() web.Middleware {
	m := func(handler web.Handler) web.Handler {

		// Use the named return so the deferred function can set the error.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					trace := debug.Stack()
					err = fmt.Errorf("PANIC [%v] TRACE[%s]", rec, string(trace))
				}
			}()

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}
