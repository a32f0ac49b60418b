package student

import (
	"fmt"
	"strings"

	"github.com/registrarhq/registrar/internal/mcp"
)

// Tool names exposed by the server.
const (
	ToolListStudents  = "LIST_ALL_STUDENT_RECORDS"
	ToolGetStudent    = "GET_STUDENT_RECORD"
	ToolAddStudent    = "ADD_STUDENT_RECORD"
	ToolDeleteStudent = "DELETE_STUDENT_RECORD"
)

// Tools binds the student tool handlers to a store.
type Tools struct {
	store Store
}

// NewTools creates the tool set over the given store.
func NewTools(store Store) *Tools {
	return &Tools{store: store}
}

// Handler executes one tool call and returns the uniform response
// envelope. Validation failures and missing records are reported in
// the envelope; the error return is reserved for storage failures.
type Handler func(args map[string]any) (Response, error)

// Handlers returns the tool name to handler mapping.
func (t *Tools) Handlers() map[string]Handler {
	return map[string]Handler{
		ToolListStudents:  t.list,
		ToolGetStudent:    t.get,
		ToolAddStudent:    t.add,
		ToolDeleteStudent: t.delete,
	}
}

func (t *Tools) list(_ map[string]any) (Response, error) {
	students, err := t.store.List()
	if err != nil {
		return Response{}, err
	}
	return Response{
		Success: true,
		Message: fmt.Sprintf("found %d student records", len(students)),
		Data:    students,
	}, nil
}

func (t *Tools) get(args map[string]any) (Response, error) {
	id, ok := stringArg(args, "id")
	if !ok {
		return Response{Success: false, Message: "missing required argument: id"}, nil
	}

	st, err := t.store.Get(id)
	if err != nil {
		return Response{}, err
	}
	if st == nil {
		return Response{Success: false, Message: fmt.Sprintf("no student record with id %s", id)}, nil
	}
	return Response{Success: true, Message: "student record found", Data: st}, nil
}

func (t *Tools) add(args map[string]any) (Response, error) {
	var missing []string
	name, ok := stringArg(args, "name")
	if !ok {
		missing = append(missing, "name")
	}
	email, ok := stringArg(args, "email")
	if !ok {
		missing = append(missing, "email")
	}
	age, ok := intArg(args, "age")
	if !ok {
		missing = append(missing, "age")
	}
	if len(missing) > 0 {
		return Response{
			Success: false,
			Message: "missing required arguments: " + strings.Join(missing, ", "),
		}, nil
	}
	if age <= 0 {
		return Response{Success: false, Message: "age must be positive"}, nil
	}

	st := Student{
		Name:  name,
		Email: email,
		Age:   age,
	}
	if addr, ok := args["address"].(map[string]any); ok {
		st.Address.Street, _ = stringArg(addr, "street")
		st.Address.City, _ = stringArg(addr, "city")
		st.Address.State, _ = stringArg(addr, "state")
		st.Address.Zip, _ = stringArg(addr, "zip")
	}

	added, err := t.store.Add(st)
	if err != nil {
		return Response{}, err
	}
	return Response{Success: true, Message: "student record added", Data: added}, nil
}

func (t *Tools) delete(args map[string]any) (Response, error) {
	id, ok := stringArg(args, "id")
	if !ok {
		return Response{Success: false, Message: "missing required argument: id"}, nil
	}

	st, err := t.store.Delete(id)
	if err != nil {
		return Response{}, err
	}
	if st == nil {
		return Response{Success: false, Message: fmt.Sprintf("no student record with id %s", id)}, nil
	}
	return Response{Success: true, Message: "student record deleted", Data: st}, nil
}

func stringArg(args map[string]any, key string) (string, bool) {
	s, ok := args[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// intArg accepts both JSON numbers and numeric strings; models are not
// consistent about which they send.
func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

// addressSchema is shared by the add tool definition.
var addressSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"street": map[string]any{"type": "string"},
		"city":   map[string]any{"type": "string"},
		"state":  map[string]any{"type": "string"},
		"zip":    map[string]any{"type": "string"},
	},
}

// Definitions returns the MCP tool definitions for tools/list.
func (t *Tools) Definitions() []mcp.ToolDefinition {
	return []mcp.ToolDefinition{
		{
			Name:        ToolListStudents,
			Description: "List all student records in the registry.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        ToolGetStudent,
			Description: "Fetch a single student record by its ID.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "The student record ID",
					},
				},
				"required": []string{"id"},
			},
		},
		{
			Name:        ToolAddStudent,
			Description: "Add a new student record. Returns the stored record including its assigned ID.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":    map[string]any{"type": "string"},
					"email":   map[string]any{"type": "string"},
					"age":     map[string]any{"type": "integer"},
					"address": addressSchema,
				},
				"required": []string{"name", "email", "age"},
			},
		},
		{
			Name:        ToolDeleteStudent,
			Description: "Delete a student record by its ID. Returns the deleted record.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id": map[string]any{
						"type":        "string",
						"description": "The student record ID",
					},
				},
				"required": []string{"id"},
			},
		},
	}
}
