// Package precheck parses a script with esbuild before any engine sees it,
// turning parse errors into SyntaxFaults and module loading of any kind into
// ImportAttempts.
package precheck

import (
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"

	"github.com/cryguy/sandbox/internal/core"
)

const pluginName = "sandbox-imports"

// Warning IDs esbuild attaches to require()/import() calls it cannot
// resolve statically. esbuild logs them at debug level; logOverrides raises
// them so they show up in the build result.
var dynamicImportWarnings = map[string]bool{
	"unsupported-require-call":   true,
	"unsupported-dynamic-import": true,
}

var logOverrides = map[string]esbuild.LogLevel{
	"unsupported-require-call":   esbuild.LogLevelWarning,
	"unsupported-dynamic-import": esbuild.LogLevelWarning,
}

// rejectImports fails every resolution. esbuild attaches the location of
// the import statement or call to the returned error.
var rejectImports = esbuild.Plugin{
	Name: pluginName,
	Setup: func(build esbuild.PluginBuild) {
		build.OnResolve(esbuild.OnResolveOptions{Filter: ".*"},
			func(args esbuild.OnResolveArgs) (esbuild.OnResolveResult, error) {
				if args.Kind == esbuild.ResolveEntryPoint {
					return esbuild.OnResolveResult{}, nil
				}
				return esbuild.OnResolveResult{
					Errors: []esbuild.Message{{Text: "import of " + args.Path}},
				}, nil
			})
	},
}

// Check parses source and returns nil, or a *core.Fault of kind FaultImport
// or FaultSyntax. Positions refer to source itself.
func Check(source string) error {
	result := esbuild.Build(esbuild.BuildOptions{
		Stdin: &esbuild.StdinOptions{
			Contents:   source,
			Sourcefile: "script.js",
			Loader:     esbuild.LoaderJS,
		},
		Bundle:      true,
		Write:       false,
		Format:      esbuild.FormatIIFE,
		Platform:    esbuild.PlatformNeutral,
		Target:      esbuild.ESNext,
		LogLevel:    esbuild.LogLevelSilent,
		LogOverride: logOverrides,
		Plugins:     []esbuild.Plugin{rejectImports},
	})

	// An import may surface as a plugin error or as a parse error
	// mentioning the statement; either way imports win over syntax.
	for _, m := range result.Errors {
		if m.PluginName == pluginName {
			return faultAt(core.FaultImport, m)
		}
	}
	for _, m := range result.Warnings {
		if dynamicImportWarnings[m.ID] {
			return faultAt(core.FaultImport, m)
		}
	}
	if len(result.Errors) > 0 {
		return faultAt(core.FaultSyntax, result.Errors[0])
	}
	return nil
}

func faultAt(kind core.FaultKind, m esbuild.Message) *core.Fault {
	f := core.NewFault(kind, "%s", strings.TrimSpace(m.Text))
	if kind == core.FaultSyntax {
		f.Name = "SyntaxError"
	}
	if loc := m.Location; loc != nil {
		f.Line = loc.Line
		f.Column = loc.Column
		f.Excerpt = loc.LineText
	}
	return f
}
