package engine

import (
	_ "embed"
	"fmt"
	"os"
)

//go:embed kb/pitfall.pl
var embeddedRuleBase string

// RuleBase names a rule base source and knows how to read it.
type RuleBase struct {
	Name string
	Load func() (string, error)
}

// EmbeddedRuleBase is the rule base shipped next to this package.
func EmbeddedRuleBase() RuleBase {
	return RuleBase{
		Name: "embedded:kb/pitfall.pl",
		Load: func() (string, error) { return embeddedRuleBase, nil },
	}
}

// FileRuleBase reads the rule base from path each time a context starts, so a
// reset picks up edits.
func FileRuleBase(path string) RuleBase {
	return RuleBase{
		Name: path,
		Load: func() (string, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return "", err
			}
			return string(data), nil
		},
	}
}

// StringRuleBase wraps literal program text.
func StringRuleBase(name, source string) RuleBase {
	return RuleBase{
		Name: name,
		Load: func() (string, error) { return source, nil },
	}
}

func (rb RuleBase) load() (string, error) {
	if rb.Load == nil {
		return "", fmt.Errorf("%w: rule base %q has no loader", ErrRuleBase, rb.Name)
	}
	src, err := rb.Load()
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrRuleBase, rb.Name, err)
	}
	return src, nil
}
