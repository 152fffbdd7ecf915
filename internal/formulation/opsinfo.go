package formulation

// OpInfo describes one operator as evaluated against a specific state. The
// engine includes a slice of these in every notification so clients can build
// move menus without knowing the rules.
type OpInfo struct {
	Index      int     `json:"index"`
	Name       string  `json:"name"`
	Applicable bool    `json:"applicable"`
	Role       int     `json:"role"`
	Params     []Param `json:"params,omitempty"`
}

// OpsInfo evaluates every operator against s, resolving dynamic names and
// preconditions. Operators whose precondition fails (or panics) report
// Applicable false; the slice always covers the full operator list so indexes
// stay stable.
func (f *Formulation) OpsInfo(s State) []OpInfo {
	out := make([]OpInfo, len(f.Operators))
	for i, op := range f.Operators {
		out[i] = OpInfo{
			Index:      i,
			Name:       op.DisplayName(s),
			Applicable: op.Applicable(s),
			Role:       op.Role,
			Params:     op.Params,
		}
	}
	return out
}
