package api

import (
	"encoding/xml"
	"errors"
	"net/http"

	"github.com/ridha-boughediri/mys3/pkg/storage"
)

type xmlError struct {
	XMLName xml.Name `xml:"Error"`
	Code    string   `xml:"Code"`
	Message string   `xml:"Message"`
}

func writeXML(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(xml.Header))
	_ = xml.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeXML(w, status, xmlError{Code: code, Message: message})
}

// writeStoreError maps storage sentinels onto S3 error codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "InvalidArgument", err.Error())
	case errors.Is(err, storage.ErrBucketExists):
		writeError(w, http.StatusConflict, "BucketAlreadyExists", err.Error())
	case errors.Is(err, storage.ErrBucketNotFound):
		writeError(w, http.StatusNotFound, "NoSuchBucket", err.Error())
	case errors.Is(err, storage.ErrObjectNotFound):
		writeError(w, http.StatusNotFound, "NoSuchKey", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "InternalError", "internal server error")
	}
}
