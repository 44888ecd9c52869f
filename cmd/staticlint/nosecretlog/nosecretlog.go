// Package nosecretlog defines an analyzer that reports passwords, password
// hashes, tokens and secrets handed to a logging call.
package nosecretlog

import (
	"go/ast"
	"go/types"
	"strings"

	"golang.org/x/tools/go/analysis"
)

// Analyzer reports identifiers with a sensitive name among the arguments of
// zap Logger/SugaredLogger methods and of the standard log package functions.
var Analyzer = &analysis.Analyzer{
	Name: "nosecretlog",
	Doc:  "reports passwords, tokens and secrets passed to logging calls",
	Run:  run,
}

const zapPath = "go.uber.org/zap"

var sensitiveFragments = []string{"password", "passwd", "secret", "token"}

var zapLoggerTypes = map[string]bool{
	"Logger":        true,
	"SugaredLogger": true,
}

func run(pass *analysis.Pass) (interface{}, error) {
	for _, file := range pass.Files {
		ast.Inspect(file, func(n ast.Node) bool {
			call, ok := n.(*ast.CallExpr)
			if !ok || !isLoggingCall(pass, call) {
				return true
			}

			for _, arg := range call.Args {
				if name, found := findSensitive(arg); found {
					pass.Reportf(arg.Pos(), "%s must not be logged", name)
					break
				}
			}

			return true
		})
	}

	return nil, nil
}

func isLoggingCall(pass *analysis.Pass, call *ast.CallExpr) bool {
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return false
	}

	fn, ok := pass.TypesInfo.Uses[sel.Sel].(*types.Func)
	if !ok || fn.Pkg() == nil {
		return false
	}

	signature, ok := fn.Type().(*types.Signature)
	if !ok {
		return false
	}

	switch fn.Pkg().Path() {
	case "log":
		return signature.Recv() == nil
	case zapPath:
		return signature.Recv() != nil && zapLoggerTypes[receiverName(signature.Recv().Type())]
	}

	return false
}

func receiverName(recv types.Type) string {
	if pointer, ok := recv.(*types.Pointer); ok {
		recv = pointer.Elem()
	}
	named, ok := recv.(*types.Named)
	if !ok {
		return ""
	}

	return named.Obj().Name()
}

// findSensitive looks at identifiers only, so string keys such as "token"
// in a key-value pair are fine.
func findSensitive(expr ast.Expr) (string, bool) {
	var (
		name  string
		found bool
	)

	ast.Inspect(expr, func(n ast.Node) bool {
		if found {
			return false
		}
		if call, ok := n.(*ast.CallExpr); ok {
			// Skip the callee, zap.String(...) is not itself a secret.
			for _, arg := range call.Args {
				if argName, argFound := findSensitive(arg); argFound {
					name, found = argName, true
					return false
				}
			}
			return false
		}
		ident, ok := n.(*ast.Ident)
		if ok && isSensitive(ident.Name) {
			name, found = ident.Name, true
			return false
		}
		return true
	})

	return name, found
}

func isSensitive(name string) bool {
	lowered := strings.ToLower(name)
	for _, fragment := range sensitiveFragments {
		if strings.Contains(lowered, fragment) {
			return true
		}
	}

	return false
}
