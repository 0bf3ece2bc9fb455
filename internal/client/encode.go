package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strconv"
	"strings"

	"clinic-forms/internal/common/validation"
	"clinic-forms/internal/forms"
)

// encode serializes normalized data. Forms with file fields are sent as
// multipart/form-data with list values as JSON arrays; all others as JSON.
func encode(def *forms.Definition, data validation.Record) ([]byte, string, error) {
	if !def.HasAssets() {
		body, err := json.Marshal(data)
		if err != nil {
			return nil, "", fmt.Errorf("encode %s: %w", def.Name, err)
		}
		return body, "application/json", nil
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		var err error
		switch v := data[k].(type) {
		case *validation.FileValue:
			err = writeFile(w, k, v)
		case string:
			err = w.WriteField(k, v)
		case bool:
			err = w.WriteField(k, strconv.FormatBool(v))
		case float64:
			err = w.WriteField(k, strconv.FormatFloat(v, 'f', -1, 64))
		default:
			var raw []byte
			if raw, err = json.Marshal(v); err == nil {
				err = w.WriteField(k, string(raw))
			}
		}
		if err != nil {
			return nil, "", fmt.Errorf("encode %s field %s: %w", def.Name, k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeFile(w *multipart.Writer, field string, f *validation.FileValue) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, quoteEscaper.Replace(field), quoteEscaper.Replace(f.Filename)))
	h.Set("Content-Type", f.MediaType())
	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(f.Content)
	return err
}
