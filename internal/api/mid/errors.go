package mid

import (
	"context"
	"errors"
	"net/http"
	"path"

	"github.com/ahrav/notification-service/internal/api/errs"
	"github.com/ahrav/notification-service/pkg/common/logger"
	"github.com/ahrav/notification-service/pkg/web"
)

// Errors handles errors coming out of the call chain. Errors that are not
// *errs.Error are logged and reported as internal errors.
func Errors(log *logger.Logger) web.MidFunc {
	m := func(next web.HandlerFunc) web.HandlerFunc {
		h := func(ctx context.Context, r *http.Request) web.Encoder {
			resp := next(ctx, r)

			err, ok := resp.(error)
			if !ok || err == nil {
				return resp
			}

			var appErr *errs.Error
			if !errors.As(err, &appErr) {
				appErr = errs.Newf(errs.Internal, "Internal Server Error")
			}

			log.Error(ctx, "handled error during request",
				"err", err,
				"source_err_file", path.Base(appErr.FileName),
				"source_err_func", path.Base(appErr.FuncName))

			if appErr.Code == errs.InternalOnlyLog {
				appErr = errs.Newf(errs.Internal, "Internal Server Error")
			}

			return appErr
		}

		return h
	}

	return m
}
