package formulation

import "testing"

func TestOpsInfoCoversEveryOperator(t *testing.T) {
	f := &Formulation{
		Operators: []Operator{
			{
				Name:       "Inc",
				Role:       RoleAny,
				Transition: func(s State, _ []any) (State, error) { return s, nil },
			},
			{
				Name:         "Dec",
				Role:         0,
				Precondition: func(s State) bool { return s.(fakeState).n > 0 },
				Transition:   func(s State, _ []any) (State, error) { return s, nil },
				Params:       []Param{{Name: "by", Type: ParamInt}},
			},
			{
				NameFor:    func(s State) string { return "Jump" },
				Role:       RoleAny,
				Transition: func(s State, _ []any) (State, error) { return s, nil },
			},
		},
	}

	ops := f.OpsInfo(fakeState{n: 0})
	if len(ops) != 3 {
		t.Fatalf("expected info for all 3 operators, got %d", len(ops))
	}
	for i, op := range ops {
		if op.Index != i {
			t.Fatalf("operator %d reports index %d", i, op.Index)
		}
	}
	if !ops[0].Applicable {
		t.Fatal("Inc should be applicable")
	}
	if ops[1].Applicable {
		t.Fatal("Dec should not be applicable at n=0")
	}
	if ops[1].Role != 0 {
		t.Fatalf("expected Dec role restriction 0, got %d", ops[1].Role)
	}
	if len(ops[1].Params) != 1 || ops[1].Params[0].Name != "by" {
		t.Fatalf("expected Dec params to carry through, got %v", ops[1].Params)
	}
	if ops[2].Name != "Jump" {
		t.Fatalf("expected dynamic name Jump, got %q", ops[2].Name)
	}

	ops = f.OpsInfo(fakeState{n: 2})
	if !ops[1].Applicable {
		t.Fatal("Dec should be applicable at n=2")
	}
}
