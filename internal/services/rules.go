package services

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/ashmitsharp/homeledger-api/internal/models"
)

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// Match types for a rule's description condition
const (
	MatchSubstring = "substring"
	MatchExact     = "exact"
	MatchRegex     = "regex"
)

// Predicate decides whether a rule applies to a candidate
type Predicate func(c *models.TransactionCandidate) bool

// Outcome is what a matching rule assigns to a candidate. Exactly one of
// Category, IncomeSource or Ambiguity is set.
type Outcome struct {
	SetDirection models.Direction `json:"set_direction,omitempty"`
	Category     string           `json:"category,omitempty"`
	IncomeSource string           `json:"income_source,omitempty"`
	Ambiguity    string           `json:"ambiguity,omitempty"`
}

// Rule is one (predicate, outcome) pair of the ordered rule list
type Rule struct {
	Name    string    `json:"name"`
	Spec    RuleSpec  `json:"spec"`
	Outcome Outcome   `json:"outcome"`
	Match   Predicate `json:"-"`
}

// AmbiguityGroup splits rows sharing one keyword across two categories by amount
type AmbiguityGroup struct {
	Keyword   string          `json:"keyword"`
	Threshold decimal.Decimal `json:"threshold"`
	Small     string          `json:"small"`
	Large     string          `json:"large"`
}

// RuleSet is a versioned ordered rule list plus its ambiguity groups
type RuleSet struct {
	Version string                    `json:"version"`
	Rules   []Rule                    `json:"rules"`
	Groups  map[string]AmbiguityGroup `json:"ambiguity_groups"`
}

// RuleSpec is the YAML shape of one rule
type RuleSpec struct {
	Name         string   `yaml:"name" json:"name"`
	AppliesTo    string   `yaml:"applies_to" json:"applies_to,omitempty"`
	Contains     []string `yaml:"contains" json:"contains,omitempty"`
	MatchType    string   `yaml:"match_type" json:"match_type,omitempty"`
	Equals       string   `yaml:"equals" json:"equals,omitempty"`
	AtLeast      string   `yaml:"at_least" json:"at_least,omitempty"`
	AtMost       string   `yaml:"at_most" json:"at_most,omitempty"`
	Below        string   `yaml:"below" json:"below,omitempty"`
	Above        string   `yaml:"above" json:"above,omitempty"`
	SetDirection string   `yaml:"set_direction" json:"set_direction,omitempty"`
	Category     string   `yaml:"category" json:"category,omitempty"`
	IncomeSource string   `yaml:"income_source" json:"income_source,omitempty"`
	Ambiguity    string   `yaml:"ambiguity" json:"ambiguity,omitempty"`
}

type ambiguityGroupSpec struct {
	Keyword   string `yaml:"keyword"`
	Threshold string `yaml:"threshold"`
	Small     string `yaml:"small"`
	Large     string `yaml:"large"`
}

type ruleFile struct {
	Version         string               `yaml:"version"`
	AmbiguityGroups []ambiguityGroupSpec `yaml:"ambiguity_groups"`
	Rules           []RuleSpec           `yaml:"rules"`
}

// DefaultRuleSet returns the built-in rule set
func DefaultRuleSet() (*RuleSet, error) {
	return ParseRuleSet(defaultRulesYAML)
}

// LoadRuleSet reads a rule file from disk, falling back to the built-in set for an empty path
func LoadRuleSet(path string) (*RuleSet, error) {
	if path == "" {
		return DefaultRuleSet()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rules file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return ParseRuleSet(data)
}

// ParseRuleSet compiles a YAML rule document
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}

	set := &RuleSet{
		Version: file.Version,
		Groups:  make(map[string]AmbiguityGroup),
	}

	for _, g := range file.AmbiguityGroups {
		group, err := compileGroup(g)
		if err != nil {
			return nil, err
		}
		set.Groups[group.Keyword] = group
	}

	for i, spec := range file.Rules {
		rule, err := compileRule(spec)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, spec.Name, err)
		}
		if rule.Outcome.Ambiguity != "" {
			if _, ok := set.Groups[rule.Outcome.Ambiguity]; !ok {
				return nil, fmt.Errorf("rule %d (%s): unknown ambiguity group %q", i+1, spec.Name, rule.Outcome.Ambiguity)
			}
		}
		set.Rules = append(set.Rules, rule)
	}

	return set, nil
}

// FirstMatch returns the first rule whose predicate holds for the candidate
func (s *RuleSet) FirstMatch(c *models.TransactionCandidate) (Rule, bool) {
	for _, rule := range s.Rules {
		if rule.Match(c) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Group returns the ambiguity group for a keyword
func (s *RuleSet) Group(keyword string) (AmbiguityGroup, bool) {
	g, ok := s.Groups[keyword]
	return g, ok
}

func compileGroup(g ambiguityGroupSpec) (AmbiguityGroup, error) {
	if g.Keyword == "" || g.Small == "" || g.Large == "" {
		return AmbiguityGroup{}, errors.New("ambiguity group needs keyword, small and large")
	}
	threshold, err := decimal.NewFromString(g.Threshold)
	if err != nil {
		return AmbiguityGroup{}, fmt.Errorf("ambiguity group %q: invalid threshold %q", g.Keyword, g.Threshold)
	}
	return AmbiguityGroup{
		Keyword:   strings.ToUpper(g.Keyword),
		Threshold: threshold,
		Small:     g.Small,
		Large:     g.Large,
	}, nil
}

func compileRule(spec RuleSpec) (Rule, error) {
	outcome := Outcome{
		Category:     spec.Category,
		IncomeSource: spec.IncomeSource,
		Ambiguity:    strings.ToUpper(spec.Ambiguity),
	}

	set := 0
	for _, v := range []string{outcome.Category, outcome.IncomeSource, outcome.Ambiguity} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return Rule{}, errors.New("exactly one of category, income_source or ambiguity is required")
	}

	switch spec.SetDirection {
	case "":
	case string(models.DirectionIncome), string(models.DirectionExpense):
		outcome.SetDirection = models.Direction(spec.SetDirection)
	default:
		return Rule{}, fmt.Errorf("invalid set_direction %q", spec.SetDirection)
	}

	// The outcome must fit the direction the row has once the rule applies
	effective := outcome.SetDirection
	if effective == "" {
		effective = models.Direction(spec.AppliesTo)
	}
	if outcome.IncomeSource != "" && effective != models.DirectionIncome {
		return Rule{}, errors.New("income_source requires applies_to or set_direction income")
	}
	if outcome.IncomeSource == "" && effective != models.DirectionExpense {
		return Rule{}, errors.New("category and ambiguity require applies_to or set_direction expense")
	}

	var preds []Predicate

	switch spec.AppliesTo {
	case "", "any":
	case string(models.DirectionIncome), string(models.DirectionExpense):
		dir := models.Direction(spec.AppliesTo)
		preds = append(preds, func(c *models.TransactionCandidate) bool { return c.Direction == dir })
	default:
		return Rule{}, fmt.Errorf("invalid applies_to %q", spec.AppliesTo)
	}

	if len(spec.Contains) > 0 {
		pred, err := descriptionPredicate(spec.MatchType, spec.Contains)
		if err != nil {
			return Rule{}, err
		}
		preds = append(preds, pred)
	}

	amountConds := []struct {
		raw string
		cmp func(amount, bound decimal.Decimal) bool
	}{
		{spec.Equals, func(a, b decimal.Decimal) bool { return a.Equal(b) }},
		{spec.AtLeast, func(a, b decimal.Decimal) bool { return a.GreaterThanOrEqual(b) }},
		{spec.AtMost, func(a, b decimal.Decimal) bool { return a.LessThanOrEqual(b) }},
		{spec.Below, func(a, b decimal.Decimal) bool { return a.LessThan(b) }},
		{spec.Above, func(a, b decimal.Decimal) bool { return a.GreaterThan(b) }},
	}
	for _, cond := range amountConds {
		if cond.raw == "" {
			continue
		}
		bound, err := decimal.NewFromString(cond.raw)
		if err != nil {
			return Rule{}, fmt.Errorf("invalid amount %q", cond.raw)
		}
		cmp := cond.cmp
		preds = append(preds, func(c *models.TransactionCandidate) bool { return cmp(c.Amount, bound) })
	}

	if len(preds) == 0 {
		return Rule{}, errors.New("rule has no conditions")
	}

	return Rule{
		Name:    spec.Name,
		Spec:    spec,
		Outcome: outcome,
		Match: func(c *models.TransactionCandidate) bool {
			for _, p := range preds {
				if !p(c) {
					return false
				}
			}
			return true
		},
	}, nil
}

func descriptionPredicate(matchType string, keywords []string) (Predicate, error) {
	switch matchType {
	case "", MatchSubstring:
		upper := upperAll(keywords)
		return func(c *models.TransactionCandidate) bool {
			desc := strings.ToUpper(c.Description)
			for _, k := range upper {
				if strings.Contains(desc, k) {
					return true
				}
			}
			return false
		}, nil
	case MatchExact:
		upper := upperAll(keywords)
		return func(c *models.TransactionCandidate) bool {
			desc := strings.ToUpper(strings.TrimSpace(c.Description))
			for _, k := range upper {
				if desc == k {
					return true
				}
			}
			return false
		}, nil
	case MatchRegex:
		patterns := make([]*regexp.Regexp, 0, len(keywords))
		for _, k := range keywords {
			re, err := regexp.Compile(k)
			if err != nil {
				return nil, fmt.Errorf("invalid regex %q: %w", k, err)
			}
			patterns = append(patterns, re)
		}
		return func(c *models.TransactionCandidate) bool {
			desc := strings.ToUpper(c.Description)
			for _, re := range patterns {
				if re.MatchString(desc) {
					return true
				}
			}
			return false
		}, nil
	default:
		return nil, fmt.Errorf("invalid match_type %q", matchType)
	}
}

func upperAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}
