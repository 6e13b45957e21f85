package engine

import "fmt"

// Kinds lists the engine types NewEngine understands.
var Kinds = []string{TypeEngineLua, TypeEngineJs, TypeEngineGo}

// NewEngine returns an unopened engine of the given type; call New on it
// before use.
func NewEngine(engineType string) (Engine, error) {
	switch engineType {
	case TypeEngineLua, "":
		return &LuaEngine{}, nil
	case TypeEngineJs:
		return &JsEngine{}, nil
	case TypeEngineGo:
		return &GoEngine{}, nil
	}
	return nil, fmt.Errorf("engine: unknown engine type %q", engineType)
}
