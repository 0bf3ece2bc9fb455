package submission

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	apperrors "clinic-forms/internal/common/errors"
	"clinic-forms/internal/common/validation"
	"clinic-forms/internal/forms"
)

// multipartMemory is the in-memory part of a multipart body; the rest
// spills to temporary files removed after the request.
const multipartMemory = 8 << 20

var errNotObject = errors.New("request body must be a JSON object")

// parsed is a request body reduced to plain values.
type parsed struct {
	fields validation.Record
	files  map[string]*validation.FileValue
}

// parseRequest reads JSON, urlencoded or multipart bodies. Only file parts
// the form declares are read.
func parseRequest(r *http.Request, def *forms.Definition, maxBytes int64) (*parsed, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, apperrors.NewUnsupportedMediaTypeError(r.Header.Get("Content-Type"))
	}

	out := &parsed{fields: validation.Record{}, files: map[string]*validation.FileValue{}}
	switch mediaType {
	case "application/json":
		if err := decodeJSON(r.Body, out.fields); err != nil {
			return nil, classify(err, maxBytes)
		}

	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return nil, classify(err, maxBytes)
		}
		copyValues(out.fields, r.PostForm)

	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return nil, classify(err, maxBytes)
		}
		defer r.MultipartForm.RemoveAll()
		copyValues(out.fields, r.MultipartForm.Value)

		for _, f := range def.Schema.FileFields() {
			headers := r.MultipartForm.File[f.Name]
			if len(headers) == 0 {
				continue
			}
			fh := headers[0]
			file, err := fh.Open()
			if err != nil {
				return nil, apperrors.NewMalformedRequestError(err)
			}
			content, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				return nil, classify(err, maxBytes)
			}
			out.files[f.Name] = validation.NewFileValue(fh.Filename, fh.Header.Get("Content-Type"), content)
		}

	default:
		return nil, apperrors.NewUnsupportedMediaTypeError(mediaType)
	}

	return out, nil
}

func decodeJSON(body io.Reader, into validation.Record) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return errNotObject
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON object")
	}
	for k, val := range obj {
		into[k] = val
	}
	return nil
}

// copyValues flattens form values: one value stays a string, repeated keys
// become a string slice.
func copyValues(into validation.Record, values map[string][]string) {
	for k, v := range values {
		switch len(v) {
		case 0:
		case 1:
			into[k] = v[0]
		default:
			into[k] = append([]string(nil), v...)
		}
	}
}

func classify(err error, limit int64) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apperrors.NewPayloadTooLargeError(limit)
	}
	return apperrors.NewMalformedRequestError(err)
}
