package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// FieldError is one failed validation or decode rule, keyed by the
// request body's JSON field name rather than the Go struct field name
// so a caller never sees our internal naming.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// BindJSON decodes the request body into out, reporting a 400 with a
// structured field-level breakdown on failure. Handlers call this once
// at the top and return immediately when it reports false.
func BindJSON(ctx *gin.Context, out interface{}) bool {
	if err := ctx.ShouldBindJSON(out); err != nil {
		RespondBadRequest(ctx, "Invalid request body", describeBindError(err, out))
		return false
	}
	return true
}

// describeBindError turns a gin bind error into a JSON-serializable
// detail payload. The three cases it distinguishes — struct validation
// failures, malformed JSON, and type mismatches — each need a different
// shape to be actionable for an API client.
func describeBindError(err error, out interface{}) interface{} {
	rootType := baseStructType(out)

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		fields := make([]FieldError, 0, len(validationErrs))
		for _, fe := range validationErrs {
			rule := fe.Tag()
			param := fe.Param()
			fields = append(fields, FieldError{
				Field:   fieldPathFromValidatorError(rootType, fe),
				Rule:    rule,
				Param:   param,
				Message: validationMessage(rule, param),
			})
		}
		return gin.H{"fields": fields}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return gin.H{"json": "invalid_json_syntax"}
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := fieldPathFromDotPath(rootType, typeErr.Field)
		if field == "" {
			field = strings.TrimSpace(typeErr.Field)
		}
		return gin.H{
			"json":  "invalid_json_type",
			"field": field,
			"fields": []FieldError{
				{
					Field:   field,
					Rule:    "type",
					Message: fmt.Sprintf("must be of type %s", typeErr.Type.String()),
				},
			},
		}
	}

	return gin.H{"reason": err.Error()}
}

func baseStructType(v interface{}) reflect.Type {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Kind() == reflect.Struct {
		return t
	}
	return nil
}

// fieldPathFromValidatorError recovers the JSON field path from a
// validator.FieldError's struct namespace, which is Go-field-name based
// ("SignUpRequest.Email") and needs remapping to the wire name ("email").
func fieldPathFromValidatorError(rootType reflect.Type, fe validator.FieldError) string {
	namespace := fe.StructNamespace()
	if namespace == "" {
		namespace = fe.Namespace()
	}
	if namespace == "" {
		return fe.Field()
	}

	parts := strings.Split(namespace, ".")
	if len(parts) == 0 {
		return fe.Field()
	}
	if rootType != nil && rootType.Name() != "" && parts[0] == rootType.Name() {
		parts = parts[1:]
	}

	if path := resolveJSONFieldPath(rootType, parts); path != "" {
		return path
	}
	return fe.Field()
}

func fieldPathFromDotPath(rootType reflect.Type, dotPath string) string {
	dotPath = strings.TrimSpace(dotPath)
	if dotPath == "" {
		return ""
	}
	return resolveJSONFieldPath(rootType, strings.Split(dotPath, "."))
}

// resolveJSONFieldPath walks a dotted Go-field path against rootType,
// swapping every segment for its `json:"..."` tag name and stepping into
// slice/pointer element types as it goes.
func resolveJSONFieldPath(rootType reflect.Type, parts []string) string {
	if len(parts) == 0 {
		return ""
	}

	current := rootType
	out := make([]string, 0, len(parts))

	for _, rawPart := range parts {
		if rawPart == "" {
			continue
		}

		fieldName, indexSuffix := splitFieldIndex(rawPart)
		jsonName := fieldName
		var nextType reflect.Type

		if current != nil {
			for current.Kind() == reflect.Pointer {
				current = current.Elem()
			}
			if current.Kind() == reflect.Struct {
				if sf, ok := current.FieldByName(fieldName); ok {
					jsonName = jsonNameFromStructField(sf)
					nextType = sf.Type
				}
			}
		}

		out = append(out, jsonName+indexSuffix)
		current = elemType(nextType)
	}

	return strings.Join(out, ".")
}

func splitFieldIndex(part string) (string, string) {
	idx := strings.Index(part, "[")
	if idx == -1 {
		return part, ""
	}
	return part[:idx], part[idx:]
}

func jsonNameFromStructField(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag == "" {
		return sf.Name
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return sf.Name
	}
	return name
}

// elemType strips away pointer/slice/array wrappers to reach the type a
// struct-field lookup should resume from; nil propagates through.
func elemType(t reflect.Type) reflect.Type {
	for t != nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Array:
			t = t.Elem()
		default:
			return t
		}
	}
	return nil
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	case "len":
		return "must be exactly " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
