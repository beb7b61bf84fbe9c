package model

import "encoding/json"

type DocumentStatus string

const (
	StatusUploaded DocumentStatus = "uploaded"
	StatusIndexing DocumentStatus = "indexing"
	StatusReady    DocumentStatus = "ready"
	StatusFailed   DocumentStatus = "failed"
)

// IsTerminal reports whether polling can stop. Statuses the client does not
// know about are treated as still in progress.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Document is the record returned by GET /documents/{id}. Raw holds the full
// response body so fields the client does not model survive a replace.
type Document struct {
	ID           string          `json:"id"`
	Name         string          `json:"name,omitempty"`
	Status       DocumentStatus  `json:"status"`
	FilePath     string          `json:"file_path"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

func (d *Document) UnmarshalJSON(data []byte) error {
	type plain Document
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*d = Document(decoded)
	d.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// WithStatus returns a copy of d with its status replaced.
func (d Document) WithStatus(status DocumentStatus) Document {
	d.Status = status
	return d
}
