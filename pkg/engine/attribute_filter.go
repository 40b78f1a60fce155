package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Operator is the comparison an AttributeFilterProcessor applies.
type Operator string

const (
	OpEquals   Operator = "equals"
	OpContains Operator = "contains"
	OpRegex    Operator = "regex"
)

// eventSearchPaths lists where well-known request attributes live. Frames
// arrive either as full wire events ({"detail":{"requestConfig":...}}) or as
// bare details ({"requestConfig":...}).
var eventSearchPaths = map[string][]string{
	"verb": {
		"detail.requestConfig.verb",
		"requestConfig.verb",
	},
	"path": {
		"detail.requestConfig.path",
		"requestConfig.path",
	},
	"status": {
		"detail.requestConfig.status",
		"requestConfig.status",
	},
	"requestId": {
		"detail.requestConfig.requestId",
		"requestConfig.requestId",
	},
	"origin": {
		"origin",
	},
}

// genericSearchPaths are tried for any attribute not in eventSearchPaths.
var genericSearchPaths = []string{
	"%s",
	"detail.%s",
	"detail.requestConfig.%s",
	"requestConfig.%s",
}

// AttributeFilterProcessor drops events whose JSON attribute matches a rule,
// e.g. every POST under /object so uploads do not announce a new bucket.
// It fails open: frames that are not JSON or lack the attribute pass through.
type AttributeFilterProcessor struct {
	name     string
	attr     string
	path     string
	operator Operator
	value    string
	regex    *regexp.Regexp
}

type AttributeFilterConfig struct {
	Name      string
	Attribute string // well-known or generic attribute name, searched
	Path      string // explicit slash-separated path
	Operator  Operator
	Value     string
}

// NewAttributeFilterProcessor requires exactly one of Attribute and Path.
func NewAttributeFilterProcessor(cfg AttributeFilterConfig) (*AttributeFilterProcessor, error) {
	if cfg.Attribute == "" && cfg.Path == "" {
		return nil, fmt.Errorf("either attribute or path must be specified")
	}
	if cfg.Attribute != "" && cfg.Path != "" {
		return nil, fmt.Errorf("cannot specify both attribute and path")
	}

	p := &AttributeFilterProcessor{
		name:     cfg.Name,
		attr:     cfg.Attribute,
		path:     cfg.Path,
		operator: cfg.Operator,
		value:    cfg.Value,
	}

	switch p.operator {
	case "":
		p.operator = OpEquals
	case OpEquals, OpContains:
	case OpRegex:
		re, err := regexp.Compile(cfg.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid regex pattern: %w", err)
		}
		p.regex = re
	default:
		return nil, fmt.Errorf("unknown operator %q", cfg.Operator)
	}

	return p, nil
}

func (p *AttributeFilterProcessor) Name() string {
	return p.name
}

// Process reports drop=true when the attribute is present and matches.
func (p *AttributeFilterProcessor) Process(ctx *ProcessingContext, frame []byte) ([]byte, bool, error) {
	if !gjson.ValidBytes(frame) {
		return frame, false, nil
	}

	var value gjson.Result
	if p.path != "" {
		value = gjson.GetBytes(frame, convertToGjsonPath(p.path))
	} else {
		value = p.searchAttribute(frame)
	}

	if !value.Exists() {
		return frame, false, nil
	}

	return frame, p.matchValue(value), nil
}

func (p *AttributeFilterProcessor) searchAttribute(frame []byte) gjson.Result {
	if paths, ok := eventSearchPaths[p.attr]; ok {
		for _, path := range paths {
			if result := gjson.GetBytes(frame, path); result.Exists() {
				return result
			}
		}
		return gjson.Result{}
	}

	escapedAttr := strings.ReplaceAll(p.attr, ".", "\\.")
	for _, pathTemplate := range genericSearchPaths {
		path := fmt.Sprintf(pathTemplate, escapedAttr)
		if result := gjson.GetBytes(frame, path); result.Exists() {
			return result
		}
	}

	return gjson.Result{}
}

func (p *AttributeFilterProcessor) matchValue(value gjson.Result) bool {
	strValue := value.String()

	switch p.operator {
	case OpEquals:
		return strValue == p.value
	case OpContains:
		return strings.Contains(strValue, p.value)
	case OpRegex:
		return p.regex != nil && p.regex.MatchString(strValue)
	default:
		return false
	}
}

// convertToGjsonPath turns "detail/requestConfig/x.y" into "detail.requestConfig.x\.y".
func convertToGjsonPath(userPath string) string {
	parts := strings.Split(userPath, "/")
	for i, part := range parts {
		parts[i] = strings.ReplaceAll(part, ".", "\\.")
	}
	return strings.Join(parts, ".")
}
