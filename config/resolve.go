package config

import (
	"errors"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

var paramRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ResolveParams replaces `${NAME}` references in every scalar of the document
// with values from params. A scalar that is exactly one reference takes the
// YAML type of its value, so `${PARALLELISM}` can fill an integer field. All
// missing parameters are reported together.
func ResolveParams(node *yaml.Node, params *Params) error {
	var errs []error
	resolveNode(node, params, &errs)
	return errors.Join(errs...)
}

func resolveNode(node *yaml.Node, params *Params, errs *[]error) {
	if node.Kind != yaml.ScalarNode {
		for _, child := range node.Content {
			resolveNode(child, params, errs)
		}
		return
	}

	if !paramRef.MatchString(node.Value) {
		return
	}

	whole := paramRef.FindStringSubmatchIndex(node.Value)
	isWholeValue := whole[0] == 0 && whole[1] == len(node.Value)

	node.Value = paramRef.ReplaceAllStringFunc(node.Value, func(ref string) string {
		name := paramRef.FindStringSubmatch(ref)[1]
		value, ok := params.Get(name)
		if !ok {
			*errs = append(*errs, fmt.Errorf("line %d: missing parameter %q", node.Line, name))
			return ref
		}
		return value
	})

	// Let the decoder infer the type of a plain scalar that was one reference.
	if isWholeValue && node.Style == 0 {
		node.Tag = ""
	}
}
