package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
)

const (
	FieldPDF   = "pdf"
	FieldQuery = "query"

	ContentTypePDF  = "application/pdf"
	ContentTypeJSON = "application/json"
)

// Request is an outbound run. When PDF is set the request is sent as a
// multipart form; otherwise Text is sent as a JSON body.
type Request struct {
	Query    string
	PDF      []byte
	Filename string
	Text     string
}

// TextBody is the JSON body used for pre-extracted text.
type TextBody struct {
	Text  string `json:"text"`
	Query string `json:"query"`
}

// Encode returns the request body and its content type.
func (r Request) Encode() (io.Reader, string, error) {
	if strings.TrimSpace(r.Query) == "" {
		return nil, "", errors.New("query must not be empty")
	}
	if r.PDF != nil {
		return r.encodeMultipart()
	}
	if r.Text == "" {
		return nil, "", errors.New("request carries neither a PDF nor text")
	}

	body, err := json.Marshal(TextBody{Text: r.Text, Query: r.Query})
	if err != nil {
		return nil, "", fmt.Errorf("marshal text body: %w", err)
	}
	return bytes.NewReader(body), ContentTypeJSON, nil
}

func (r Request) encodeMultipart() (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	filename := r.Filename
	if filename == "" {
		filename = "document.pdf"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldPDF, escapeQuotes(filename)))
	header.Set("Content-Type", ContentTypePDF)

	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create pdf part: %w", err)
	}
	if _, err := part.Write(r.PDF); err != nil {
		return nil, "", fmt.Errorf("write pdf part: %w", err)
	}
	if err := mw.WriteField(FieldQuery, r.Query); err != nil {
		return nil, "", fmt.Errorf("write query field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
