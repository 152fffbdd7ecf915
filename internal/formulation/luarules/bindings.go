package luarules

import (
	"github.com/Shopify/go-lua"

	"github.com/pixellator/wsz6/internal/formulation"
)

const formulationTypeName = "formulation"

// refsField names the registry table holding Lua functions referenced from
// Go. Slot 0 carries the next-slot counter; slots 1..n hold the functions.
const refsField = "wsz6 rule refs"

// noRef marks an absent function reference.
const noRef = 0

// ruleDef accumulates everything a rule script declares before it is turned
// into a formulation. Function-valued fields are registry reference slots.
type ruleDef struct {
	meta  formulation.Metadata
	roles formulation.RoleSpec
	ops   []ruleOp

	initRef    int
	goalRef    int
	goalMsgRef int
	viewRef    int
	renderRef  int
}

type ruleOp struct {
	name          string
	description   string
	role          int
	allowUndo     bool
	params        []formulation.Param
	precondRef    int
	transitionRef int
	nameRef       int
}

// registerRuleAPI installs the Formulation constructor and its method table
// into a fresh interpreter, plus the registry table backing function refs.
func registerRuleAPI(l *lua.State) {
	l.NewTable()
	l.SetField(lua.RegistryIndex, refsField)

	lua.NewMetaTable(l, formulationTypeName)
	l.NewTable()
	lua.SetFunctions(l, ruleMethods, 0)
	l.SetField(-2, "__index")
	l.Pop(1)

	l.NewTable()
	lua.SetFunctions(l, ruleConstructor, 0)
	l.SetGlobal("Formulation")
}

var ruleConstructor = []lua.RegistryFunction{
	{Name: "new", Function: ruleNew},
}

var ruleMethods = []lua.RegistryFunction{
	{Name: "brief", Function: ruleBrief},
	{Name: "version", Function: ruleVersion},
	{Name: "author", Function: ruleAuthor},
	{Name: "role", Function: ruleRole},
	{Name: "min_players", Function: ruleMinPlayers},
	{Name: "max_players", Function: ruleMaxPlayers},
	{Name: "init", Function: ruleInit},
	{Name: "goal", Function: ruleGoal},
	{Name: "goal_message", Function: ruleGoalMessage},
	{Name: "view", Function: ruleView},
	{Name: "render", Function: ruleRender},
	{Name: "operator", Function: ruleOperator},
}

func ruleNew(l *lua.State) int {
	name := lua.OptString(l, 1, "")
	def := &ruleDef{meta: formulation.Metadata{Name: name}}
	l.PushUserData(def)
	lua.SetMetaTableNamed(l, formulationTypeName)
	return 1
}

func checkDef(l *lua.State) *ruleDef {
	ud := lua.CheckUserData(l, 1, formulationTypeName)
	if def, ok := ud.(*ruleDef); ok && def != nil {
		return def
	}
	lua.ArgumentError(l, 1, "formulation expected")
	return nil
}

func ruleBrief(l *lua.State) int {
	def := checkDef(l)
	def.meta.Brief = lua.CheckString(l, 2)
	return 0
}

func ruleVersion(l *lua.State) int {
	def := checkDef(l)
	def.meta.Version = lua.CheckString(l, 2)
	return 0
}

func ruleAuthor(l *lua.State) int {
	def := checkDef(l)
	def.meta.Authors = append(def.meta.Authors, lua.CheckString(l, 2))
	return 0
}

// ruleRole appends a role. Role numbers are the zero-based declaration
// order, matching the current_role values in state tables.
func ruleRole(l *lua.State) int {
	def := checkDef(l)
	def.roles.Roles = append(def.roles.Roles, formulation.Role{
		Name:        lua.CheckString(l, 2),
		Description: lua.OptString(l, 3, ""),
	})
	return 0
}

func ruleMinPlayers(l *lua.State) int {
	def := checkDef(l)
	def.roles.MinPlayersToStart = lua.CheckInteger(l, 2)
	return 0
}

func ruleMaxPlayers(l *lua.State) int {
	def := checkDef(l)
	def.roles.MaxPlayers = lua.CheckInteger(l, 2)
	return 0
}

func ruleInit(l *lua.State) int {
	def := checkDef(l)
	lua.CheckType(l, 2, lua.TypeFunction)
	def.initRef = storeRef(l, 2)
	return 0
}

func ruleGoal(l *lua.State) int {
	def := checkDef(l)
	lua.CheckType(l, 2, lua.TypeFunction)
	def.goalRef = storeRef(l, 2)
	return 0
}

func ruleGoalMessage(l *lua.State) int {
	def := checkDef(l)
	lua.CheckType(l, 2, lua.TypeFunction)
	def.goalMsgRef = storeRef(l, 2)
	return 0
}

func ruleView(l *lua.State) int {
	def := checkDef(l)
	lua.CheckType(l, 2, lua.TypeFunction)
	def.viewRef = storeRef(l, 2)
	return 0
}

func ruleRender(l *lua.State) int {
	def := checkDef(l)
	lua.CheckType(l, 2, lua.TypeFunction)
	def.renderRef = storeRef(l, 2)
	return 0
}

// ruleOperator appends one operator from a descriptor table:
//
//	game:operator{
//	  name = "Add one",
//	  precondition = function(s) ... end,   -- optional, default true
//	  transition = function(s, ...) ... end,
//	  role = 0,                             -- optional, default any
//	  params = {{name="n", type="int", min=1, max=3}},
//	  allow_undo_in_parallel = true,
//	  name_for = function(s) ... end,       -- optional dynamic name
//	}
func ruleOperator(l *lua.State) int {
	def := checkDef(l)
	lua.CheckType(l, 2, lua.TypeTable)

	op := ruleOp{role: formulation.RoleAny}

	l.Field(2, "name")
	if s, ok := l.ToString(-1); ok {
		op.name = s
	}
	l.Pop(1)

	l.Field(2, "description")
	if s, ok := l.ToString(-1); ok {
		op.description = s
	}
	l.Pop(1)

	l.Field(2, "role")
	if n, ok := l.ToInteger(-1); ok {
		op.role = n
	}
	l.Pop(1)

	l.Field(2, "allow_undo_in_parallel")
	if l.TypeOf(-1) == lua.TypeBoolean {
		op.allowUndo = l.ToBoolean(-1)
	}
	l.Pop(1)

	l.Field(2, "precondition")
	if l.TypeOf(-1) == lua.TypeFunction {
		op.precondRef = storeRef(l, -1)
	}
	l.Pop(1)

	l.Field(2, "name_for")
	if l.TypeOf(-1) == lua.TypeFunction {
		op.nameRef = storeRef(l, -1)
	}
	l.Pop(1)

	l.Field(2, "params")
	if l.TypeOf(-1) == lua.TypeTable {
		op.params = paramSpecs(goTable(l, -1))
	}
	l.Pop(1)

	l.Field(2, "transition")
	if l.TypeOf(-1) != lua.TypeFunction {
		lua.Errorf(l, "operator %q needs a transition function", op.name)
		return 0
	}
	op.transitionRef = storeRef(l, -1)
	l.Pop(1)

	def.ops = append(def.ops, op)
	return 0
}

// paramSpecs reads operator parameter descriptors out of the converted
// params array. Malformed entries are dropped; type validation happens in
// Formulation.Validate.
func paramSpecs(raw any) []formulation.Param {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]formulation.Param, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, formulation.Param{
			Name: formulation.StringFrom(m, "name", ""),
			Type: formulation.StringFrom(m, "type", formulation.ParamString),
			Min:  optionalFloat(m, "min"),
			Max:  optionalFloat(m, "max"),
		})
	}
	return out
}

func optionalFloat(m map[string]any, key string) *float64 {
	switch v := m[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	case int64:
		f := float64(v)
		return &f
	}
	return nil
}

// storeRef files the value at index into the registry refs table and returns
// its slot number.
func storeRef(l *lua.State, index int) int {
	index = l.AbsIndex(index)
	l.Field(lua.RegistryIndex, refsField)

	l.RawGetInt(-1, 0)
	slot, _ := l.ToInteger(-1)
	l.Pop(1)
	slot++

	l.PushInteger(slot)
	l.RawSetInt(-2, 0)

	l.PushValue(index)
	l.RawSetInt(-2, slot)
	l.Pop(1)
	return slot
}

// pushStoredRef pushes the value filed under slot onto the stack.
func pushStoredRef(l *lua.State, slot int) {
	l.Field(lua.RegistryIndex, refsField)
	l.RawGetInt(-1, slot)
	l.Remove(-2)
}
