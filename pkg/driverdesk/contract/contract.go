// Package contract renders the signed employment contract for an approved
// application. The HTML is built locally from an embedded template; the
// HTML-to-PDF conversion is delegated to an external rendering service.
package contract

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/driverdesk/driverdesk/pkg/driverdesk"
)

const defaultTimeout = 30 * time.Second

// Renderer implements driverdesk.ContractRenderer against an HTTP rendering
// service that accepts HTML and returns PDF bytes.
type Renderer struct {
	endpoint string
	client   *http.Client
	tmpl     *template.Template
	now      func() time.Time
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithHTTPClient overrides the HTTP client used to reach the renderer.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Renderer) { r.client = client }
}

// WithClock overrides the time source used for the contract date.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// New creates a Renderer pointed at the rendering service endpoint.
func New(endpoint string, opts ...Option) (*Renderer, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("contract: empty renderer endpoint")
	}
	tmpl, err := template.New("contract").Parse(contractTemplate)
	if err != nil {
		return nil, fmt.Errorf("contract: parse template: %w", err)
	}
	r := &Renderer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultTimeout},
		tmpl:     tmpl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type templateData struct {
	App  *driverdesk.Application
	Date string
}

// RenderContract builds the contract HTML for app and converts it to PDF.
func (r *Renderer) RenderContract(ctx context.Context, app *driverdesk.Application) ([]byte, error) {
	var html bytes.Buffer
	data := templateData{App: app, Date: r.now().Format("2006-01-02")}
	if err := r.tmpl.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("contract: render template: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, &html)
	if err != nil {
		return nil, fmt.Errorf("contract: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/html; charset=utf-8")
	req.Header.Set("Accept", "application/pdf")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contract: call renderer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("contract: renderer returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("contract: read renderer response: %w", err)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("contract: renderer returned empty document")
	}
	return pdf, nil
}

const contractTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Delivery Driver Employment Contract</title>
<style>
body { font-family: serif; margin: 48px; line-height: 1.6; }
h1 { text-align: center; font-size: 20px; }
table { width: 100%; border-collapse: collapse; margin: 16px 0; }
td { padding: 4px 8px; vertical-align: top; }
td.label { width: 200px; font-weight: bold; }
.signature { margin-top: 64px; display: flex; justify-content: space-between; }
.signature div { width: 40%; border-top: 1px solid #000; text-align: center; padding-top: 8px; }
</style>
</head>
<body>
<h1>Delivery Driver Employment Contract</h1>
<p>Agreement made on {{.Date}} for application {{.App.ID}}.</p>

<h2>Driver</h2>
<table>
<tr><td class="label">Full name</td><td>{{.App.Applicant.FullName}}</td></tr>
<tr><td class="label">National ID</td><td>{{.App.Applicant.NationalID}}</td></tr>
<tr><td class="label">Phone</td><td>{{.App.Applicant.Phone}}</td></tr>
<tr><td class="label">Address</td><td>{{.App.Applicant.Address}}</td></tr>
</table>

<h2>Guarantor</h2>
<table>
<tr><td class="label">Full name</td><td>{{.App.Guarantor.FullName}}</td></tr>
<tr><td class="label">National ID</td><td>{{.App.Guarantor.NationalID}}</td></tr>
<tr><td class="label">Phone</td><td>{{.App.Guarantor.Phone}}</td></tr>
<tr><td class="label">Relation</td><td>{{.App.Guarantor.Relation}}</td></tr>
</table>

<h2>Vehicle</h2>
<table>
<tr><td class="label">Plate number</td><td>{{.App.Vehicle.PlateNumber}}</td></tr>
<tr><td class="label">Brand / model</td><td>{{.App.Vehicle.Brand}} {{.App.Vehicle.Model}}</td></tr>
<tr><td class="label">Registration</td><td>{{.App.Vehicle.RegistrationID}}</td></tr>
</table>

<div class="signature">
<div>Driver</div>
<div>Company representative</div>
</div>
</body>
</html>`
