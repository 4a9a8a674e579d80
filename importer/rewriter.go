package importer

import (
	"fmt"
	"reflect"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/openwebvulndb/openwebvulndb-tools/vulndb"
)

// RewriterEnv exposes the CPE components a rule can read. Rules use the
// expr builtins, e.g. `trimSuffix(product, "_plugin")` or `product + "-pro"`.
type RewriterEnv struct {
	Part     string `expr:"part"`
	Vendor   string `expr:"vendor"`
	Product  string `expr:"product"`
	Version  string `expr:"version"`
	TargetSW string `expr:"target_sw"`
}

// CompiledRewriter adjusts one component of a CPE when its predicate holds,
// e.g. to map a vendor naming scheme onto plugin slugs.
type CompiledRewriter struct {
	Predicate   *vm.Program
	RewriteRule *vm.Program
	Field       string
}

func NewCompiledRewriter(r vulndb.Rewriter) (cr CompiledRewriter, err error) {
	switch r.Field {
	case "":
		cr.Field = "product"
	case "product", "vendor", "version", "target_sw":
		cr.Field = r.Field
	default:
		return cr, fmt.Errorf("unsupported rewrite field %q", r.Field)
	}

	cr.Predicate, err = expr.Compile(r.Predicate, expr.Env(RewriterEnv{}), expr.AsBool())
	if err != nil {
		return cr, fmt.Errorf("error compiling predicate: %w", err)
	}

	cr.RewriteRule, err = expr.Compile(r.RewriteRule, expr.Env(RewriterEnv{}), expr.AsKind(reflect.String))
	if err != nil {
		return cr, fmt.Errorf("error compiling rewrite rule: %w", err)
	}

	return cr, err
}

// CompileRewriters compiles every configured rule in order.
func CompileRewriters(rules []vulndb.Rewriter) ([]CompiledRewriter, error) {
	rewriters := make([]CompiledRewriter, 0, len(rules))
	for i, rule := range rules {
		cr, err := NewCompiledRewriter(rule)
		if err != nil {
			return nil, fmt.Errorf("could not parse rewrite rule %d, %w", i+1, err)
		}
		rewriters = append(rewriters, cr)
	}
	return rewriters, nil
}

func (c CompiledRewriter) Rewrite(cpe CPE23Uri) CPE23Uri {
	env := RewriterEnv{
		Part:     cpe.Part,
		Vendor:   cpe.Vendor,
		Product:  cpe.Product,
		Version:  cpe.Version,
		TargetSW: cpe.TargetSw,
	}
	predicate, err := expr.Run(c.Predicate, env)
	if err != nil {
		return cpe
	}
	if matched, ok := predicate.(bool); !ok || !matched {
		return cpe
	}
	result, err := expr.Run(c.RewriteRule, env)
	if err != nil {
		return cpe
	}
	resultStr, _ := result.(string)
	switch c.Field {
	case "product":
		cpe.Product = resultStr
	case "vendor":
		cpe.Vendor = resultStr
	case "version":
		cpe.Version = resultStr
	case "target_sw":
		cpe.TargetSw = resultStr
	}

	return cpe
}

func rewriteAll(rewriters []CompiledRewriter, cpe CPE23Uri) CPE23Uri {
	for _, rewriter := range rewriters {
		cpe = rewriter.Rewrite(cpe)
	}
	return cpe
}
