package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

func init() {
	buildInfo = moduleBuildInfo
}

// moduleBuildInfo lists the main module and every dependency linked in,
// one per line, with replacements shown after "=>".
func moduleBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "not built in module mode"
	}

	var sb strings.Builder
	module := func(kind string, m *debug.Module) {
		fmt.Fprintf(&sb, " %s\t%s\t%s", kind, m.Path, m.Version)
		if m.Replace != nil {
			fmt.Fprintf(&sb, "\t=> %s\t%s", m.Replace.Path, m.Replace.Version)
		}
		sb.WriteByte('\n')
	}
	module("mod", &info.Main)
	for _, dep := range info.Deps {
		module("dep", dep)
	}
	return sb.String()
}
