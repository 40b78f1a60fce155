package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ridha-boughediri/mys3/pkg/engine"
	"github.com/ridha-boughediri/mys3/pkg/storage"
)

// Handler serves the bucket and object operations.
type Handler struct {
	store  *storage.Store
	region string
	log    *slog.Logger
}

func NewHandler(store *storage.Store, region string, log *slog.Logger) *Handler {
	if region == "" {
		region = "us-east-1"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{store: store, region: region, log: log}
}

// NewRouter registers routes and the middleware stack. Every request that
// reaches a route is announced on events once it has completed.
func NewRouter(h *Handler, events engine.Publisher) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(h.log))
	r.Use(loggingMiddleware(h.log))

	r.Get("/healthz", h.healthz)

	r.Group(func(r chi.Router) {
		r.Use(completionMiddleware(events, h.log))

		r.Get("/buckets", h.listBuckets)
		r.Post("/bucket", h.createBucket)
		r.Delete("/bucket", h.deleteBucket)

		r.Route("/{bucket}", func(r chi.Router) {
			r.Head("/", h.headBucket)
			r.Put("/", h.putBucket)
			r.Get("/location", h.bucketLocation)
			r.Post("/rename", h.renameBucket)
			r.Get("/objects", h.listObjects)
			r.Post("/object", h.uploadObject)
			r.Get("/object/{object}", h.getObject)
			r.Delete("/object/{object}", h.deleteObject)

			// S3 path-style access
			r.Get("/{object}", h.getObject)
			r.Head("/{object}", h.headObject)
		})
	})

	return r
}
