// Package gateway builds the outbound eSewa form and reads its redirect callbacks.
package gateway

import (
	"fmt"
	"html/template"
	"net/url"

	"storefront/internal/models"
)

// FormTemplateName is the name the auto-submit form is registered under
const FormTemplateName = "esewa_form"

// Merchant fields sent with every form; eSewa only charges the total.
const (
	zeroCharge = "0"
	refParam   = "ref"
)

type Config struct {
	FormURL     string
	ProductCode string
	SuccessURL  string
	FailureURL  string
}

// Field is a hidden form input
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Form is a full-page POST to the gateway
type Form struct {
	Action    string  `json:"action"`
	Method    string  `json:"method"`
	Reference string  `json:"reference"`
	Fields    []Field `json:"fields"`
}

// Values returns the form fields as url.Values
func (f *Form) Values() url.Values {
	v := url.Values{}
	for _, field := range f.Fields {
		v.Set(field.Name, field.Value)
	}
	return v
}

// Gateway builds eSewa payment forms
type Gateway struct {
	cfg Config
}

// New creates a gateway for the given merchant configuration
func New(cfg Config) *Gateway {
	return &Gateway{cfg: cfg}
}

// BuildForm returns the form that hands attempt over to eSewa
func (g *Gateway) BuildForm(attempt *models.PaymentAttempt) (*Form, error) {
	failureURL, err := withRef(g.cfg.FailureURL, attempt.Reference)
	if err != nil {
		return nil, fmt.Errorf("invalid failure url: %w", err)
	}

	amount := attempt.Amount.String()
	return &Form{
		Action:    g.cfg.FormURL,
		Method:    "POST",
		Reference: attempt.Reference,
		Fields: []Field{
			{Name: "amount", Value: amount},
			{Name: "tax_amount", Value: zeroCharge},
			{Name: "total_amount", Value: amount},
			{Name: "transaction_uuid", Value: attempt.Reference},
			{Name: "product_code", Value: g.cfg.ProductCode},
			{Name: "product_service_charge", Value: zeroCharge},
			{Name: "product_delivery_charge", Value: zeroCharge},
			{Name: "success_url", Value: g.cfg.SuccessURL},
			{Name: "failure_url", Value: failureURL},
		},
	}, nil
}

// FailureReference extracts the attempt reference appended to the failure url
func FailureReference(query url.Values) string {
	return query.Get(refParam)
}

func withRef(raw, reference string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(refParam, reference)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// FormTemplate renders a Form as a page that submits itself
func FormTemplate() *template.Template {
	return template.Must(template.New(FormTemplateName).Parse(formHTML))
}

const formHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Redirecting to eSewa</title></head>
<body onload="document.forms[0].submit()">
<form method="{{.Method}}" action="{{.Action}}">
{{range .Fields}}<input type="hidden" name="{{.Name}}" value="{{.Value}}">
{{end}}<noscript><button type="submit">Pay with eSewa</button></noscript>
</form>
</body>
</html>
`
