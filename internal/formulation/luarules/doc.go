// Package luarules loads game formulations written in Lua.
//
// # Layout
//
// Each game lives in its own directory under the loader root, named by the
// game slug. The rule script is <slug>.lua (hyphens may be written as
// underscores); a directory holding exactly one non-vis .lua file also works.
// The script builds a formulation through the Formulation.new constructor and
// returns it:
//
//	local game = Formulation.new("Counting Duel")
//	game:role("Left", "Counts first.")
//	game:init(function(config)
//	  return { count = 0, current_role = 0, parallel = false }
//	end)
//	game:operator{
//	  name = "Add one",
//	  transition = function(s)
//	    s.count = s.count + 1
//	    return s
//	  end,
//	}
//	return game
//
// # Isolation
//
// Every Load call interprets the script in a fresh Lua machine, so
// script-level globals never leak between concurrent play-throughs of the
// same game. States cross the boundary as plain tables copied in and out on
// every call; the Go side keeps only immutable snapshots.
//
// # Visualization
//
// A companion <name>_vis.lua file returning a render function is picked up
// automatically when the rule script did not install a renderer itself.
package luarules
