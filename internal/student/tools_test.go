package student

import (
	"strings"
	"testing"
)

func newTestTools(t *testing.T) *Tools {
	t.Helper()
	return NewTools(NewMemoryStore())
}

func addStudent(t *testing.T, tools *Tools, name string) *Student {
	t.Helper()
	resp, err := tools.Handlers()[ToolAddStudent](map[string]any{
		"name":  name,
		"email": strings.ToLower(name) + "@example.edu",
		"age":   float64(20),
	})
	if err != nil {
		t.Fatalf("add handler: %v", err)
	}
	if !resp.Success {
		t.Fatalf("add failed: %s", resp.Message)
	}
	return resp.Data.(*Student)
}

func TestAddAndGetStudent(t *testing.T) {
	tools := newTestTools(t)

	added := addStudent(t, tools, "Ada")

	resp, err := tools.Handlers()[ToolGetStudent](map[string]any{"id": added.ID})
	if err != nil {
		t.Fatalf("get handler: %v", err)
	}
	if !resp.Success {
		t.Fatalf("get failed: %s", resp.Message)
	}
	if got := resp.Data.(*Student); got.Name != "Ada" {
		t.Errorf("got %+v", got)
	}
}

func TestAddStudentMissingArguments(t *testing.T) {
	tools := newTestTools(t)

	resp, err := tools.Handlers()[ToolAddStudent](map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("add handler: %v", err)
	}
	if resp.Success {
		t.Fatal("expected validation failure")
	}
	if !strings.Contains(resp.Message, "email") || !strings.Contains(resp.Message, "age") {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestAddStudentWithAddress(t *testing.T) {
	tools := newTestTools(t)

	resp, err := tools.Handlers()[ToolAddStudent](map[string]any{
		"name":  "Grace",
		"email": "grace@example.edu",
		"age":   float64(35),
		"address": map[string]any{
			"street": "1 Navy Yard",
			"city":   "Arlington",
			"state":  "VA",
			"zip":    "22202",
		},
	})
	if err != nil {
		t.Fatalf("add handler: %v", err)
	}
	if !resp.Success {
		t.Fatalf("add failed: %s", resp.Message)
	}
	if got := resp.Data.(*Student); got.Address.City != "Arlington" {
		t.Errorf("address = %+v", got.Address)
	}
}

func TestAddStudentAgeAsString(t *testing.T) {
	tools := newTestTools(t)

	resp, err := tools.Handlers()[ToolAddStudent](map[string]any{
		"name":  "Ada",
		"email": "ada@example.edu",
		"age":   "28",
	})
	if err != nil {
		t.Fatalf("add handler: %v", err)
	}
	if !resp.Success {
		t.Fatalf("add failed: %s", resp.Message)
	}
	if got := resp.Data.(*Student); got.Age != 28 {
		t.Errorf("age = %d", got.Age)
	}
}

func TestListStudents(t *testing.T) {
	tools := newTestTools(t)
	addStudent(t, tools, "Ada")
	addStudent(t, tools, "Grace")

	resp, err := tools.Handlers()[ToolListStudents](nil)
	if err != nil {
		t.Fatalf("list handler: %v", err)
	}
	if !resp.Success {
		t.Fatalf("list failed: %s", resp.Message)
	}
	if got := resp.Data.([]Student); len(got) != 2 {
		t.Errorf("got %d records", len(got))
	}
}

func TestDeleteStudentNotFound(t *testing.T) {
	tools := newTestTools(t)

	resp, err := tools.Handlers()[ToolDeleteStudent](map[string]any{"id": "missing"})
	if err != nil {
		t.Fatalf("delete handler: %v", err)
	}
	if resp.Success {
		t.Fatal("expected not-found failure")
	}
	if !strings.Contains(resp.Message, "missing") {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestDeleteStudent(t *testing.T) {
	tools := newTestTools(t)
	added := addStudent(t, tools, "Ada")

	resp, err := tools.Handlers()[ToolDeleteStudent](map[string]any{"id": added.ID})
	if err != nil {
		t.Fatalf("delete handler: %v", err)
	}
	if !resp.Success {
		t.Fatalf("delete failed: %s", resp.Message)
	}

	get, err := tools.Handlers()[ToolGetStudent](map[string]any{"id": added.ID})
	if err != nil {
		t.Fatalf("get handler: %v", err)
	}
	if get.Success {
		t.Error("record still present after delete")
	}
}

func TestDefinitionsCoverAllHandlers(t *testing.T) {
	tools := newTestTools(t)

	defs := tools.Definitions()
	handlers := tools.Handlers()
	if len(defs) != len(handlers) {
		t.Fatalf("%d definitions, %d handlers", len(defs), len(handlers))
	}
	for _, def := range defs {
		if _, ok := handlers[def.Name]; !ok {
			t.Errorf("definition %s has no handler", def.Name)
		}
		if def.Description == "" || def.InputSchema == nil {
			t.Errorf("definition %s incomplete", def.Name)
		}
	}
}
