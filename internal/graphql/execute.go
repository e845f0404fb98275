package graphql

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"go.uber.org/zap"
)

// Request is a GraphQL request body.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Response is a GraphQL response body.
type Response struct {
	Data   map[string]any `json:"data,omitempty"`
	Errors []GraphQLError `json:"errors,omitempty"`
}

// GraphQLError is a request-level error such as a syntax error or an unknown
// field. Business failures are reported inside each field's envelope.
type GraphQLError struct {
	Message string   `json:"message"`
	Path    []string `json:"path,omitempty"`
}

// args holds the resolved arguments of one field.
type args map[string]any

// fieldFunc resolves one top-level field.
type fieldFunc func(ctx context.Context, a args) *Result

// Execute parses the request document, runs the selected operation and
// returns the response. It never returns a Go error; every failure is part
// of the response.
func (r *Resolver) Execute(ctx context.Context, req Request) *Response {
	doc, perr := parser.ParseQuery(&ast.Source{Input: req.Query})
	if perr != nil {
		return &Response{Errors: []GraphQLError{{Message: perr.Error()}}}
	}

	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		if req.OperationName == "" {
			return &Response{Errors: []GraphQLError{{Message: "operationName is required when the document has several operations"}}}
		}
		return &Response{Errors: []GraphQLError{{Message: fmt.Sprintf("unknown operation %q", req.OperationName)}}}
	}

	var fields map[string]fieldFunc
	switch op.Operation {
	case ast.Query:
		fields = r.queries
	case ast.Mutation:
		fields = r.mutations
	default:
		return &Response{Errors: []GraphQLError{{Message: fmt.Sprintf("%s operations are not supported", op.Operation)}}}
	}

	vars := variables(op, req.Variables)
	resp := &Response{Data: map[string]any{}}

	// Mutations run in document order, one after the other.
	for _, field := range collectFields(doc, op.SelectionSet) {
		key := field.Alias
		if key == "" {
			key = field.Name
		}
		if field.Name == "__typename" {
			resp.Data[key] = typeName(op.Operation)
			continue
		}

		resolve, found := fields[field.Name]
		if !found {
			resp.Data[key] = nil
			resp.Errors = append(resp.Errors, GraphQLError{
				Message: fmt.Sprintf("unknown %s field %q", op.Operation, field.Name),
				Path:    []string{key},
			})
			continue
		}

		a, err := fieldArgs(field, vars)
		if err != nil {
			resp.Data[key] = nil
			resp.Errors = append(resp.Errors, GraphQLError{Message: err.Error(), Path: []string{key}})
			continue
		}

		result := r.run(ctx, field.Name, resolve, a)
		projected, err := project(result, field.SelectionSet, doc)
		if err != nil {
			r.Logger.Error("Failed to encode result", zap.String("field", field.Name), zap.Error(err))
			resp.Data[key] = nil
			resp.Errors = append(resp.Errors, GraphQLError{Message: "failed to encode result", Path: []string{key}})
			continue
		}
		resp.Data[key] = projected
	}

	return resp
}

func (r *Resolver) run(ctx context.Context, name string, resolve fieldFunc, a args) *Result {
	start := time.Now()
	result := resolve(ctx, a)
	elapsed := time.Since(start)

	status := "ok"
	if !result.Success {
		status = result.Error.Kind
		r.Logger.Warn("Operation failed",
			zap.String("operation", name),
			zap.String("kind", result.Error.Kind),
			zap.Int("status", result.Error.Status),
			zap.String("message", result.Error.Message),
		)
	} else {
		r.Logger.Debug("Operation completed", zap.String("operation", name), zap.Duration("duration", elapsed))
	}
	r.Metrics.RecordRequest(name, status, elapsed.Seconds())
	return result
}

func typeName(op ast.Operation) string {
	if op == ast.Mutation {
		return "Mutation"
	}
	return "Query"
}

// variables merges request variables with declared defaults.
func variables(op *ast.OperationDefinition, given map[string]any) map[string]any {
	vars := make(map[string]any, len(given))
	for k, v := range given {
		vars[k] = v
	}
	for _, def := range op.VariableDefinitions {
		if _, set := vars[def.Variable]; set || def.DefaultValue == nil {
			continue
		}
		if v, err := def.DefaultValue.Value(nil); err == nil {
			vars[def.Variable] = v
		}
	}
	return vars
}

func fieldArgs(field *ast.Field, vars map[string]any) (args, error) {
	a := make(args, len(field.Arguments))
	for _, arg := range field.Arguments {
		v, err := arg.Value.Value(vars)
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", arg.Name, err)
		}
		a[arg.Name] = v
	}
	return a, nil
}

// collectFields flattens fragments in a selection set into its fields.
func collectFields(doc *ast.QueryDocument, set ast.SelectionSet) []*ast.Field {
	var fields []*ast.Field
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			fields = append(fields, s)
		case *ast.InlineFragment:
			fields = append(fields, collectFields(doc, s.SelectionSet)...)
		case *ast.FragmentSpread:
			if def := doc.Fragments.ForName(s.Name); def != nil {
				fields = append(fields, collectFields(doc, def.SelectionSet)...)
			}
		}
	}
	return fields
}

// project encodes v and keeps only the selected keys. A field without a
// selection set keeps its whole value.
func project(v any, set ast.SelectionSet, doc *ast.QueryDocument) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return selectFields(generic, set, doc), nil
}

func selectFields(v any, set ast.SelectionSet, doc *ast.QueryDocument) any {
	if len(set) == 0 {
		return v
	}
	switch val := v.(type) {
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = selectFields(item, set, doc)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(set))
		for _, field := range collectFields(doc, set) {
			key := field.Alias
			if key == "" {
				key = field.Name
			}
			out[key] = selectFields(val[field.Name], field.SelectionSet, doc)
		}
		return out
	}
	return v
}

// decode converts resolved arguments into a typed value.
func decode(v any, out any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
