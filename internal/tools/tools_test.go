package tools

import (
	"reflect"
	"strings"
	"testing"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"lead":         RoleLead,
		"PM / Lead":    RoleLead,
		"Backend Dev":  RoleBackend,
		"frontend dev": RoleFrontend,
		"QA":           RoleReviewer,
		" Automation ": RoleAutomation,
	}
	for in, want := range cases {
		got, err := ParseRole(in)
		if err != nil {
			t.Errorf("ParseRole(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseRole(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseRole("janitor"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestRoleTools(t *testing.T) {
	cases := []struct {
		role Role
		want []Name
	}{
		{RoleLead, []Name{SendMessage, UpdateTaskStatus, CreateSubtask}},
		{RoleBackend, []Name{SendMessage, UpdateTaskStatus, RequestReview}},
		{RoleFrontend, []Name{SendMessage, UpdateTaskStatus, RequestReview}},
		{RoleAutomation, []Name{SendMessage, UpdateTaskStatus, RequestReview}},
		{RoleReviewer, []Name{SendMessage, UpdateTaskStatus, ApproveTask, RejectTask}},
	}
	for _, c := range cases {
		if got := c.role.Tools(); !reflect.DeepEqual(got, c.want) {
			t.Errorf("%s tools = %v, want %v", c.role, got, c.want)
		}
	}

	if RoleBackend.Allows(ApproveTask) {
		t.Error("backend must not approve tasks")
	}
	if !RoleReviewer.Allows(RejectTask) {
		t.Error("reviewer must be able to reject tasks")
	}
}

func TestEveryToolReachable(t *testing.T) {
	reachable := map[Name]bool{}
	for _, r := range Roles() {
		for _, n := range r.Tools() {
			reachable[n] = true
		}
		if len(r.Schemas()) != len(r.Tools()) {
			t.Errorf("%s: schema count does not match tool count", r)
		}
	}
	for _, s := range All() {
		if !reachable[s.Name] {
			t.Errorf("tool %s is not offered to any role", s.Name)
		}
	}
}

// Each schema parameter must map to a json field of the argument struct,
// and required parameters must be validated as required.
func TestSchemasMatchArgs(t *testing.T) {
	for _, s := range All() {
		args, ok := Args(s.Name)
		if !ok {
			t.Errorf("no argument type for %s", s.Name)
			continue
		}
		typ := reflect.TypeOf(args).Elem()
		fields := map[string]reflect.StructField{}
		for i := 0; i < typ.NumField(); i++ {
			f := typ.Field(i)
			fields[f.Tag.Get("json")] = f
		}
		if len(fields) != len(s.Params) {
			t.Errorf("%s: %d params but %d fields", s.Name, len(s.Params), len(fields))
		}
		for _, p := range s.Params {
			f, ok := fields[p.Name]
			if !ok {
				t.Errorf("%s: param %s has no field", s.Name, p.Name)
				continue
			}
			required := strings.Contains(f.Tag.Get("validate"), "required")
			if required != p.Required {
				t.Errorf("%s.%s: schema required=%v, validate required=%v", s.Name, p.Name, p.Required, required)
			}
		}
	}
}

func TestSchemaJSON(t *testing.T) {
	s, ok := Lookup(UpdateTaskStatus)
	if !ok {
		t.Fatal("expected update_task_status in catalog")
	}
	js := s.JSONSchema()
	if js["type"] != "object" {
		t.Errorf("expected object schema, got %v", js["type"])
	}
	req := s.Required()
	if !reflect.DeepEqual(req, []string{"task_id", "status"}) {
		t.Errorf("unexpected required: %v", req)
	}
	status := s.Properties()["status"].(map[string]any)
	if len(status["enum"].([]string)) != 4 {
		t.Errorf("expected 4 status values, got %v", status["enum"])
	}
	if _, ok := Lookup("launch_rockets"); ok {
		t.Error("unexpected tool found")
	}
}
