package api

import (
	"encoding/xml"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ridha-boughediri/mys3/pkg/storage"
)

// maxUploadMemory is how much of a multipart upload is held in memory before spilling to disk.
const maxUploadMemory = 32 << 20

type bucketXML struct {
	Name         string `xml:"Name"`
	CreationDate string `xml:"CreationDate"`
}

type listAllMyBucketsResult struct {
	XMLName xml.Name    `xml:"ListAllMyBucketsResult"`
	Buckets []bucketXML `xml:"Buckets>Bucket"`
}

type objectXML struct {
	Key          string `xml:"Key"`
	Size         int64  `xml:"Size"`
	LastModified string `xml:"LastModified"`
}

type listBucketResult struct {
	XMLName  xml.Name    `xml:"ListBucketResult"`
	Name     string      `xml:"Name"`
	KeyCount int         `xml:"KeyCount"`
	Contents []objectXML `xml:"Contents"`
}

type createBucketConfiguration struct {
	XMLName            xml.Name `xml:"CreateBucketConfiguration"`
	LocationConstraint string   `xml:"LocationConstraint"`
}

type locationConstraint struct {
	XMLName xml.Name `xml:"LocationConstraint"`
	Region  string   `xml:",chardata"`
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) listBuckets(w http.ResponseWriter, _ *http.Request) {
	buckets, err := h.store.ListBuckets()
	if err != nil {
		h.log.Error("list buckets failed", "error", err)
		writeStoreError(w, err)
		return
	}

	result := listAllMyBucketsResult{Buckets: make([]bucketXML, 0, len(buckets))}
	for _, b := range buckets {
		result.Buckets = append(result.Buckets, bucketXML{
			Name:         b.Name,
			CreationDate: b.CreationDate.Format(time.RFC3339),
		})
	}
	writeXML(w, http.StatusOK, result)
}

// bucketNameFrom accepts the name from the query string or a form field, as
// sent by hx-post / hx-delete forms.
func bucketNameFrom(r *http.Request) string {
	if name := r.URL.Query().Get("name"); name != "" {
		return name
	}
	return r.FormValue("name")
}

func (h *Handler) createBucket(w http.ResponseWriter, r *http.Request) {
	name := bucketNameFrom(r)
	if err := h.store.CreateBucket(name); err != nil {
		writeStoreError(w, err)
		return
	}
	h.log.Info("bucket created", "bucket", name)
	writeXML(w, http.StatusOK, createBucketConfiguration{LocationConstraint: h.region})
}

func (h *Handler) deleteBucket(w http.ResponseWriter, r *http.Request) {
	name := bucketNameFrom(r)
	if err := h.store.DeleteBucket(name); err != nil {
		writeStoreError(w, err)
		return
	}
	h.log.Info("bucket deleted", "bucket", name)
	w.WriteHeader(http.StatusNoContent)
}

// putBucket creates the bucket named in the path, as S3 CreateBucket does.
func (h *Handler) putBucket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucket")
	if err := h.store.CreateBucket(name); err != nil {
		writeStoreError(w, err)
		return
	}
	h.log.Info("bucket created", "bucket", name)
	w.Header().Set("Location", "/"+name)
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) headBucket(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HeadBucket(chi.URLParam(r, "bucket")); err != nil {
		if errors.Is(err, storage.ErrBucketNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) bucketLocation(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HeadBucket(chi.URLParam(r, "bucket")); err != nil {
		writeStoreError(w, err)
		return
	}
	writeXML(w, http.StatusOK, locationConstraint{Region: h.region})
}

func (h *Handler) renameBucket(w http.ResponseWriter, r *http.Request) {
	oldName := chi.URLParam(r, "bucket")
	newName := r.URL.Query().Get("newName")
	if newName == "" {
		writeError(w, http.StatusBadRequest, "InvalidArgument", "newName is required")
		return
	}
	if err := h.store.RenameBucket(oldName, newName); err != nil {
		writeStoreError(w, err)
		return
	}
	h.log.Info("bucket renamed", "from", oldName, "to", newName)
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("Bucket renamed successfully"))
}

func (h *Handler) listObjects(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	objects, err := h.store.ListObjects(bucket)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	result := listBucketResult{Name: bucket, KeyCount: len(objects), Contents: make([]objectXML, 0, len(objects))}
	for _, o := range objects {
		result.Contents = append(result.Contents, objectXML{
			Key:          o.Key,
			Size:         o.Size,
			LastModified: o.LastModified.Format(time.RFC3339),
		})
	}
	writeXML(w, http.StatusOK, result)
}

func (h *Handler) uploadObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "MalformedPOSTRequest", "unable to parse multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "MalformedPOSTRequest", "missing file field")
		return
	}
	defer file.Close()

	n, err := h.store.PutObject(bucket, header.Filename, file)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	h.log.Info("object uploaded", "bucket", bucket, "object", header.Filename, "bytes", n)
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("Object uploaded successfully"))
}

func (h *Handler) getObject(w http.ResponseWriter, r *http.Request) {
	f, obj, err := h.store.GetObject(chi.URLParam(r, "bucket"), chi.URLParam(r, "object"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.Header().Set("Last-Modified", obj.LastModified.Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

func (h *Handler) headObject(w http.ResponseWriter, r *http.Request) {
	obj, err := h.store.StatObject(chi.URLParam(r, "bucket"), chi.URLParam(r, "object"))
	switch {
	case errors.Is(err, storage.ErrBucketNotFound), errors.Is(err, storage.ErrObjectNotFound):
		w.WriteHeader(http.StatusNotFound)
		return
	case err != nil:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	w.Header().Set("Last-Modified", obj.LastModified.Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) deleteObject(w http.ResponseWriter, r *http.Request) {
	bucket, key := chi.URLParam(r, "bucket"), chi.URLParam(r, "object")
	if err := h.store.DeleteObject(bucket, key); err != nil {
		writeStoreError(w, err)
		return
	}
	h.log.Info("object deleted", "bucket", bucket, "object", key)
	w.WriteHeader(http.StatusNoContent)
}
