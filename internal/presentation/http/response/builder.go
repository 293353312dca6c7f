package response

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/vaultshop/pkg/errorbank"
)

// Builder assembles the JSON envelope shared by every API endpoint.
type Builder struct {
	ctx    echo.Context
	status int
	data   any
	fields map[string]any
	err    error
	meta   map[string]any
}

type errorBody struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type envelope struct {
	Success bool           `json:"success"`
	Data    any            `json:"data,omitempty"`
	Error   *errorBody     `json:"error,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// New starts a 200 response for c.
func New(c echo.Context) *Builder {
	return &Builder{ctx: c, status: http.StatusOK}
}

// WithStatus overrides the status code. Non-positive values are ignored.
func (b *Builder) WithStatus(status int) *Builder {
	if status > 0 {
		b.status = status
	}
	return b
}

// WithData nests v under "data".
func (b *Builder) WithData(v any) *Builder {
	b.data, b.fields = v, nil
	return b
}

// WithFields renders fields next to "success", e.g. {"success":true,"orderId":"..."}.
func (b *Builder) WithFields(fields map[string]any) *Builder {
	if fields == nil {
		fields = map[string]any{}
	}
	b.data, b.fields = nil, fields
	return b
}

// WithError switches the response to the error envelope. The status comes
// from the error kind unless an explicit 4xx/5xx status was set.
func (b *Builder) WithError(err error) *Builder {
	b.err = err
	return b
}

// WithMeta adds a key under "meta".
func (b *Builder) WithMeta(key string, value any) *Builder {
	if key == "" {
		return b
	}
	if b.meta == nil {
		b.meta = map[string]any{}
	}
	b.meta[key] = value
	return b
}

// Build writes the response.
func (b *Builder) Build() error {
	if b.err != nil {
		appErr := errorbank.From(b.err)
		status := b.status
		if status < http.StatusBadRequest {
			status = appErr.StatusCode()
		}
		return b.ctx.JSON(status, envelope{
			Error: &errorBody{
				Kind:    string(appErr.Kind()),
				Message: appErr.Message(),
				Details: appErr.Details(),
			},
			Meta: b.meta,
		})
	}

	if b.fields != nil {
		flat := make(map[string]any, len(b.fields)+2)
		for k, v := range b.fields {
			flat[k] = v
		}
		flat["success"] = true
		if len(b.meta) > 0 {
			flat["meta"] = b.meta
		}
		return b.ctx.JSON(b.status, flat)
	}

	return b.ctx.JSON(b.status, envelope{Success: true, Data: b.data, Meta: b.meta})
}
