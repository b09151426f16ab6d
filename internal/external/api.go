package external

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"pagenotify/internal/mailer"
	"pagenotify/internal/types"
)

// apiRequest is a provider-agnostic description of one mail-send HTTP call.
type apiRequest struct {
	url         string
	contentType string
	body        []byte
	// header name -> value, applied after contentType
	headers map[string]string
}

// apiBuilder turns a composed message plus credentials into the provider's
// mail-send request. One builder per +api scheme.
type apiBuilder func(msg *mailer.Message, user, pass string) (apiRequest, error)

// apiBuilders is the declarative registry of provider HTTP APIs. Adding a
// provider mode is a new entry here plus a resolver table row.
var apiBuilders = map[string]apiBuilder{
	"sendgrid+api":   buildSendGridRequest,
	"mailgun+api":    buildMailgunRequest,
	"mailgun+https":  buildMailgunRequest,
	"postmark+api":   buildPostmarkRequest,
	"mandrill+api":   buildMandrillRequest,
	"mailjet+api":    buildMailjetRequest,
	"sendinblue+api": buildSendinblueRequest,
	"ohmysmtp+api":   buildOhmysmtpRequest,
}

// APITransport delivers through a provider's HTTP mail-send API. All calls
// go through the shared BaseClient so they inherit circuit breaking and
// retry behavior.
type APITransport struct {
	base    *BaseClient
	builder apiBuilder
	scheme  string
	user    string
	pass    string
	logger  types.Logger
}

// NewAPITransport selects the builder for the spec's scheme and wraps it
// in a resilient HTTP client.
func NewAPITransport(spec mailer.ConnectionSpec, logger types.Logger) (*APITransport, error) {
	builder, ok := apiBuilders[spec.Scheme]
	if !ok {
		return nil, types.NewAppErrorWithDetails(
			types.ErrCodeTransportUnsupported,
			"transport not supported",
			nil,
			map[string]any{"scheme": spec.Scheme},
		)
	}

	base := NewBaseClient(
		&http.Client{Timeout: 10 * time.Second},
		spec.Scheme,
		DefaultRetryPolicy(),
		"pagenotify/1.0",
	)

	return &APITransport{
		base:    base,
		builder: builder,
		scheme:  spec.Scheme,
		user:    spec.Username.Unmask(),
		pass:    spec.Password.Unmask(),
		logger:  logger,
	}, nil
}

// Send builds and executes the provider request. Any non-2xx response is a
// per-recipient transport failure; the dispatch engine records it and
// keeps going.
func (t *APITransport) Send(ctx context.Context, msg *mailer.Message) error {
	apiReq, err := t.builder(msg, t.user, t.pass)
	if err != nil {
		return types.NewAppError(types.ErrCodeTransportSendFailed, "building provider payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiReq.url, bytes.NewReader(apiReq.body))
	if err != nil {
		return types.NewAppError(types.ErrCodeTransportSendFailed, "building provider request", err)
	}
	req.Header.Set("Content-Type", apiReq.contentType)
	for k, v := range apiReq.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.NewAppErrorWithDetails(
			types.ErrCodeTransportSendFailed,
			fmt.Sprintf("provider returned %d", resp.StatusCode),
			nil,
			map[string]any{"scheme": t.scheme, "response": string(detail)},
		)
	}

	t.logger.Info("message sent via provider api", "scheme", t.scheme, "message_id", msg.MessageID)
	return nil
}

// textHeaders extracts the message's transmittable extra headers plus the
// Message-ID as a flat map for providers that accept custom headers.
func textHeaders(msg *mailer.Message) map[string]string {
	headers := map[string]string{}
	if msg.MessageID != "" {
		headers["Message-ID"] = msg.MessageID
	}
	for _, h := range msg.Headers {
		headers[h.Name] = h.Value
	}
	return headers
}

func buildSendGridRequest(msg *mailer.Message, user, _ string) (apiRequest, error) {
	type sgAddr struct {
		Email string `json:"email"`
		Name  string `json:"name,omitempty"`
	}
	tos := make([]sgAddr, len(msg.To))
	for i, to := range msg.To {
		tos[i] = sgAddr{Email: to.Email, Name: to.Name}
	}

	var content []map[string]string
	if msg.Text != "" {
		content = append(content, map[string]string{"type": "text/plain", "value": msg.Text})
	}
	if msg.HTML != "" {
		content = append(content, map[string]string{"type": "text/html", "value": msg.HTML})
	}

	payload := map[string]any{
		"personalizations": []map[string]any{{"to": tos}},
		"from":             sgAddr{Email: msg.From.Email, Name: msg.From.Name},
		"subject":          msg.Subject,
		"content":          content,
	}
	if h := textHeaders(msg); len(h) > 0 {
		payload["headers"] = h
	}
	if len(msg.Attachments) > 0 {
		var atts []map[string]string
		for _, a := range msg.Attachments {
			atts = append(atts, map[string]string{
				"content":  base64.StdEncoding.EncodeToString(a.Data),
				"filename": a.Filename,
				"type":     a.ContentType,
			})
		}
		payload["attachments"] = atts
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return apiRequest{}, err
	}
	return apiRequest{
		url:         "https://api.sendgrid.com/v3/mail/send",
		contentType: "application/json",
		body:        body,
		headers:     map[string]string{"Authorization": "Bearer " + user},
	}, nil
}

// buildMailgunRequest posts a multipart form to the domain-scoped messages
// endpoint. The resolved spec carries the API key as user and the sending
// domain as pass.
func buildMailgunRequest(msg *mailer.Message, user, domain string) (apiRequest, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	w.WriteField("from", msg.From.String())
	for _, to := range msg.To {
		w.WriteField("to", to.String())
	}
	w.WriteField("subject", msg.Subject)
	if msg.Text != "" {
		w.WriteField("text", msg.Text)
	}
	if msg.HTML != "" {
		w.WriteField("html", msg.HTML)
	}
	for name, value := range textHeaders(msg) {
		w.WriteField("h:"+name, value)
	}
	for _, a := range msg.Attachments {
		fw, err := w.CreateFormFile("attachment", a.Filename)
		if err != nil {
			return apiRequest{}, err
		}
		if _, err := fw.Write(a.Data); err != nil {
			return apiRequest{}, err
		}
	}
	if err := w.Close(); err != nil {
		return apiRequest{}, err
	}

	basic := base64.StdEncoding.EncodeToString([]byte("api:" + user))
	return apiRequest{
		url:         fmt.Sprintf("https://api.mailgun.net/v3/%s/messages", domain),
		contentType: w.FormDataContentType(),
		body:        buf.Bytes(),
		headers:     map[string]string{"Authorization": "Basic " + basic},
	}, nil
}

func buildPostmarkRequest(msg *mailer.Message, user, _ string) (apiRequest, error) {
	tos := make([]string, len(msg.To))
	for i, to := range msg.To {
		tos[i] = to.Email
	}
	payload := map[string]any{
		"From":     msg.From.String(),
		"To":       joinComma(tos),
		"Subject":  msg.Subject,
		"TextBody": msg.Text,
		"HtmlBody": msg.HTML,
	}
	var hdrs []map[string]string
	for name, value := range textHeaders(msg) {
		hdrs = append(hdrs, map[string]string{"Name": name, "Value": value})
	}
	if len(hdrs) > 0 {
		payload["Headers"] = hdrs
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return apiRequest{}, err
	}
	return apiRequest{
		url:         "https://api.postmarkapp.com/email",
		contentType: "application/json",
		body:        body,
		headers:     map[string]string{"X-Postmark-Server-Token": user, "Accept": "application/json"},
	}, nil
}

func buildMandrillRequest(msg *mailer.Message, user, _ string) (apiRequest, error) {
	var tos []map[string]string
	for _, to := range msg.To {
		tos = append(tos, map[string]string{"email": to.Email, "name": to.Name, "type": "to"})
	}
	payload := map[string]any{
		"key": user,
		"message": map[string]any{
			"from_email": msg.From.Email,
			"from_name":  msg.From.Name,
			"to":         tos,
			"subject":    msg.Subject,
			"text":       msg.Text,
			"html":       msg.HTML,
			"headers":    textHeaders(msg),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return apiRequest{}, err
	}
	return apiRequest{
		url:         "https://mandrillapp.com/api/1.0/messages/send",
		contentType: "application/json",
		body:        body,
	}, nil
}

func buildMailjetRequest(msg *mailer.Message, user, pass string) (apiRequest, error) {
	var tos []map[string]string
	for _, to := range msg.To {
		tos = append(tos, map[string]string{"Email": to.Email, "Name": to.Name})
	}
	payload := map[string]any{
		"Messages": []map[string]any{{
			"From":     map[string]string{"Email": msg.From.Email, "Name": msg.From.Name},
			"To":       tos,
			"Subject":  msg.Subject,
			"TextPart": msg.Text,
			"HTMLPart": msg.HTML,
			"Headers":  textHeaders(msg),
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return apiRequest{}, err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
	return apiRequest{
		url:         "https://api.mailjet.com/v3.1/send",
		contentType: "application/json",
		body:        body,
		headers:     map[string]string{"Authorization": "Basic " + basic},
	}, nil
}

func buildSendinblueRequest(msg *mailer.Message, user, _ string) (apiRequest, error) {
	var tos []map[string]string
	for _, to := range msg.To {
		tos = append(tos, map[string]string{"email": to.Email, "name": to.Name})
	}
	payload := map[string]any{
		"sender":      map[string]string{"email": msg.From.Email, "name": msg.From.Name},
		"to":          tos,
		"subject":     msg.Subject,
		"textContent": msg.Text,
		"htmlContent": msg.HTML,
		"headers":     textHeaders(msg),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return apiRequest{}, err
	}
	return apiRequest{
		url:         "https://api.brevo.com/v3/smtp/email",
		contentType: "application/json",
		body:        body,
		headers:     map[string]string{"api-key": user},
	}, nil
}

func buildOhmysmtpRequest(msg *mailer.Message, user, _ string) (apiRequest, error) {
	tos := make([]string, len(msg.To))
	for i, to := range msg.To {
		tos[i] = to.Email
	}
	payload := map[string]any{
		"from":     msg.From.String(),
		"to":       joinComma(tos),
		"subject":  msg.Subject,
		"textbody": msg.Text,
		"htmlbody": msg.HTML,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return apiRequest{}, err
	}
	return apiRequest{
		url:         "https://app.ohmysmtp.com/api/v1/send",
		contentType: "application/json",
		body:        body,
		headers:     map[string]string{"OhMySMTP-Server-Token": user},
	}, nil
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
