// Package httprouter exposes the gateway over HTTP.
package httprouter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"vidgate/internal/config"
	"vidgate/internal/consts"
	"vidgate/internal/errs"
	"vidgate/internal/infrastructure/delivery/http/middleware"
	"vidgate/internal/infrastructure/delivery/http/request"
	"vidgate/internal/infrastructure/delivery/http/response"
	"vidgate/internal/observability"
	"vidgate/internal/service"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// ReadinessChecker reports whether the service can handle requests.
type ReadinessChecker interface {
	Ready() error
}

type Router struct {
	*http.ServeMux
	log         *slog.Logger
	cfg         *config.Config
	globalChain []func(http.Handler) http.Handler
	routeChain  []func(http.Handler) http.Handler
	isSubRouter bool
	svc         service.Gateway
	metrics     *observability.Metrics
	readiness   ReadinessChecker
}

// New builds the router. readiness may be nil.
func New(log *slog.Logger, cfg *config.Config, svc service.Gateway, metrics *observability.Metrics,
	readiness ReadinessChecker,
) *Router {
	r := &Router{
		ServeMux:  http.NewServeMux(),
		log:       log.With(slog.String("package", "httprouter")),
		cfg:       cfg,
		svc:       svc,
		metrics:   metrics,
		readiness: readiness,
	}

	r.SetGlobalMiddlewares()
	r.SetRoutes()

	return r
}

func (r *Router) Use(middleware ...func(http.Handler) http.Handler) {
	if r.isSubRouter {
		r.routeChain = append(r.routeChain, middleware...)
	} else {
		r.globalChain = append(r.globalChain, middleware...)
	}
}

func (r *Router) Group(fn func(r *Router)) {
	subRouter := &Router{
		isSubRouter: true,
		routeChain:  slices.Clone(r.routeChain),
		ServeMux:    r.ServeMux,
	}

	fn(subRouter)
}

func (r *Router) HandleFunc(pattern string, h http.HandlerFunc) {
	r.Handle(pattern, h)
}

func (r *Router) Handle(pattern string, h http.Handler) {
	for _, middleware := range slices.Backward(r.routeChain) {
		h = middleware(h)
	}

	r.ServeMux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var h http.Handler = r.ServeMux

	for _, middleware := range slices.Backward(r.globalChain) {
		h = middleware(h)
	}

	h.ServeHTTP(w, req)
}

func (r *Router) SetGlobalMiddlewares() {
	origins, allowOrigin := corsOrigins(r.cfg.HTTP.CORSOrigins)

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:  origins,
		AllowOriginFunc: allowOrigin,
		AllowedMethods:  []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Disposition", middleware.HeaderXRequestID},
		AllowCredentials: true,
	})

	r.Use(
		middleware.Recoverer,
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger,
		middleware.Metrics(r.metrics),
		corsMiddleware.Handler,
	)
}

// corsOrigins turns a "*" entry into an accept-all origin check.
// cors echoes the request origin for it, never a literal "*", so credentialed requests keep working.
func corsOrigins(configured []string) ([]string, func(*http.Request, string) bool) {
	if !slices.Contains(configured, "*") {
		return configured, nil
	}

	return nil, func(*http.Request, string) bool { return true }
}

func (r *Router) SetRoutes() {
	r.SetRoutesHealthcheck()
	r.SetRoutesMetrics()
	r.SetRoutesAPI()
}

func (r *Router) SetRoutesHealthcheck() {
	healthcheckRouter := &Router{
		ServeMux: http.NewServeMux(),
	}
	healthcheckRouter.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		if r.readiness != nil {
			if err := r.readiness.Ready(); err != nil {
				http.Error(w, err.Error(), http.StatusServiceUnavailable)

				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/v1/", http.StripPrefix("/v1", healthcheckRouter))
}

func (r *Router) SetRoutesMetrics() {
	r.Handle("GET /metrics", r.metrics.Handler())
}

func (r *Router) SetRoutesAPI() {
	r.Group(func(api *Router) {
		api.Use(middleware.RateLimit(r.cfg.HTTP.RateLimit, r.cfg.HTTP.RateBurst))

		api.HandleFunc("POST /api/video-info", r.VideoInfo)
		api.HandleFunc("POST /api/download", r.Download)
		api.HandleFunc("POST /api/cleanup", r.Cleanup)
	})
}

func (r *Router) VideoInfo(w http.ResponseWriter, req *http.Request) {
	log := r.log.With("handler", "VideoInfo")
	ctx := req.Context()

	var in request.Info
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		log.ErrorContext(ctx, consts.RespInvalidRequestBody, slog.Any("error", err))
		response.BadRequest(w, consts.RespInvalidRequestBody, errs.ErrInvalidRequestBody)

		return
	}

	in.Normalize()

	if err := in.Validate(); err != nil {
		log.ErrorContext(ctx, consts.RespUnprocessableEntity, slog.Any("error", err))
		response.BadRequest(w, consts.RespUnprocessableEntity, err)

		return
	}

	meta, err := r.svc.Info(ctx, in.URL)
	if err != nil {
		r.writeError(ctx, w, log, err)

		return
	}

	response.JSON(w, http.StatusOK, meta)
}

func (r *Router) Download(w http.ResponseWriter, req *http.Request) {
	log := r.log.With("handler", "Download")
	ctx := req.Context()

	var in request.Download
	if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
		log.ErrorContext(ctx, consts.RespInvalidRequestBody, slog.Any("error", err))
		response.BadRequest(w, consts.RespInvalidRequestBody, errs.ErrInvalidRequestBody)

		return
	}

	in.Normalize()

	if err := in.Validate(); err != nil {
		log.ErrorContext(ctx, consts.RespUnprocessableEntity, slog.Any("error", err))
		response.BadRequest(w, consts.RespUnprocessableEntity, err)

		return
	}

	dl, err := r.svc.Download(ctx, service.DownloadRequest{
		URL:       in.URL,
		Format:    in.Format,
		AudioOnly: in.AudioOnly,
	})
	if err != nil {
		r.writeError(ctx, w, log, err)

		return
	}

	defer func() {
		if err := dl.Close(context.WithoutCancel(ctx)); err != nil {
			log.ErrorContext(ctx, "release download", slog.Any("error", err))
		}
	}()

	n, err := response.Attachment(w, dl.Name, dl.ContentType, dl.Size, dl.File)
	r.metrics.RecordStreamed(n)

	if err != nil {
		// headers are already sent, the client sees a truncated body
		log.WarnContext(ctx, "stream interrupted", slog.Any("error", err), slog.Int64("written", n))

		return
	}

	log.InfoContext(ctx, "download streamed", slog.String("file", dl.Name), slog.Int64("bytes", n))
}

func (r *Router) Cleanup(w http.ResponseWriter, req *http.Request) {
	log := r.log.With("handler", "Cleanup")
	ctx := req.Context()

	removed, err := r.svc.Cleanup(ctx)
	if err != nil {
		log.ErrorContext(ctx, consts.RespCleanupFailed, slog.Any("error", err))
		response.InternalServerError(w, consts.RespCleanupFailed, nil, err)

		return
	}

	log.InfoContext(ctx, consts.RespCleanupDone, slog.Int("removed", removed))
	response.OK(w, consts.RespCleanupDone, nil, nil)
}

// writeError maps gateway errors to status codes.
func (r *Router) writeError(ctx context.Context, w http.ResponseWriter, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, errs.ErrInvalidURL):
		log.InfoContext(ctx, consts.RespUnprocessableEntity, slog.Any("error", err))
		response.BadRequest(w, consts.RespUnprocessableEntity, err)
	case errors.Is(err, errs.ErrInvalidFormat):
		log.InfoContext(ctx, consts.RespInvalidFormat, slog.Any("error", err))
		response.BadRequest(w, consts.RespInvalidFormat, errs.ErrInvalidFormat)
	case errors.Is(err, errs.ErrResolveFailed):
		log.WarnContext(ctx, consts.RespResolveFailed, slog.Any("error", err))
		response.BadRequest(w, consts.RespResolveFailed, engineError(err))
	case errors.Is(err, errs.ErrDownloadFailed):
		log.ErrorContext(ctx, consts.RespDownloadFailed, slog.Any("error", err))
		response.InternalServerError(w, consts.RespDownloadFailed, nil, err)
	case errors.Is(err, errs.ErrFileNotFound):
		log.ErrorContext(ctx, consts.RespFileNotFound, slog.Any("error", err))
		response.InternalServerError(w, consts.RespFileNotFound, nil, err)
	default:
		log.ErrorContext(ctx, consts.RespInternalError, slog.Any("error", err))
		response.InternalServerError(w, consts.RespInternalError, nil, err)
	}
}

// engineError strips the sentinel prefix so clients see the engine's own message.
func engineError(err error) error {
	msg, ok := strings.CutPrefix(err.Error(), errs.ErrResolveFailed.Error()+": ")
	if !ok {
		return err
	}

	return errors.New(msg)
}
