package httpadapter

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kirillkom/vendor-onboarding/internal/core/domain"
)

//go:embed api/openapi.yaml
var openAPIDocument []byte

const maxJSONBodyBytes = 1 << 20

type apiSchema struct {
	doc *openapi3.T
}

func loadAPISchema() (*apiSchema, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPIDocument)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	return &apiSchema{doc: doc}, nil
}

// decode validates a JSON body against a component schema before unmarshalling it.
// An empty body is validated as an empty object.
func (s *apiSchema) decode(r *http.Request, schema string, dst any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBodyBytes+1))
	if err != nil {
		return domain.FieldError("body", "unreadable request body")
	}
	if len(raw) > maxJSONBodyBytes {
		return domain.FieldError("body", "request body too large")
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		raw = []byte("{}")
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return domain.FieldError("body", "invalid json")
	}
	if err := s.validate(schema, value); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return domain.FieldError("body", "invalid json: "+err.Error())
	}
	return nil
}

func (s *apiSchema) validate(schema string, value any) error {
	ref, ok := s.doc.Components.Schemas[schema]
	if !ok || ref.Value == nil {
		return fmt.Errorf("unknown schema %q", schema)
	}
	err := ref.Value.VisitJSON(value, openapi3.MultiErrors())
	if err == nil {
		return nil
	}

	fields := map[domain.FieldName]string{}
	collectSchemaErrors(err, fields)
	if len(fields) == 0 {
		fields["body"] = err.Error()
	}
	return domain.NewValidationError(fields)
}

func collectSchemaErrors(err error, fields map[domain.FieldName]string) {
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		for _, item := range multi {
			collectSchemaErrors(item, fields)
		}
		return
	}
	var schemaErr *openapi3.SchemaError
	if errors.As(err, &schemaErr) {
		field := strings.Join(schemaErr.JSONPointer(), ".")
		if field == "" {
			field = "body"
		}
		fields[domain.FieldName(field)] = schemaErr.Reason
	}
}

func (rt *Router) serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPIDocument)
}
