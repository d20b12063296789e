// Command farmcore is a small demo CLI for the rule evaluation core: it
// loads a JSON rule set and a JSON input bag from disk, drives them through
// the DAG builder and level executor, and prints the resulting context,
// optionally filtered by a jq query.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/itchyny/gojq"

	"github.com/smilemakc/farmcore/internal/config"
	"github.com/smilemakc/farmcore/internal/infrastructure/logger"
	"github.com/smilemakc/farmcore/pkg/dag"
	"github.com/smilemakc/farmcore/pkg/engine"
	"github.com/smilemakc/farmcore/pkg/parser"
	"github.com/smilemakc/farmcore/pkg/rule"
	"github.com/smilemakc/farmcore/pkg/value"
)

// ruleSpec is the on-disk shape of one rule entry: the JSON-Logic IR the
// parser understands, plus the declared I/O paths and ordering the DAG
// builder needs.
type ruleSpec struct {
	ID          string      `json:"id"`
	Expression  interface{} `json:"expression"`
	InputPaths  []string    `json:"input_paths"`
	OutputPaths []string    `json:"output_paths"`
	OrderIndex  int32       `json:"order_index"`
	Enabled     *bool       `json:"enabled"`
	Guard       string      `json:"guard"`
}

func main() {
	rulesPath := flag.String("rules", "", "path to a JSON array of rule specs")
	inputPath := flag.String("input", "", "path to a JSON object of input values")
	parallel := flag.Bool("parallel", false, "drive the DAG with parallel_execute instead of sequential_execute")
	query := flag.String("query", "", "jq filter applied to the result instead of printing it whole (e.g. '.context_out.final_premium')")
	flag.Parse()

	if *rulesPath == "" || *inputPath == "" {
		fmt.Fprintln(os.Stderr, "usage: farmcore -rules rules.json -input input.json [-parallel]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Logging)

	rules, err := loadRules(*rulesPath, *cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load rules: %v\n", err)
		os.Exit(1)
	}

	input, err := loadInput(*inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load input: %v\n", err)
		os.Exit(1)
	}

	opts := engine.Options{
		ContinueOnError: cfg.ContinueOnError,
		LevelDeadline:   cfg.LevelDeadline,
		MaxParallelism:  cfg.MaxParallelism,
		Logger:          log,
	}

	run := engine.SequentialExecute
	if *parallel {
		run = engine.ParallelExecute
	}

	result, err := run(context.Background(), rules, input, opts)
	if err != nil {
		log.Error("execution failed", "error", err.Error())
	}
	if result == nil {
		os.Exit(1)
	}

	out := map[string]interface{}{
		"execution_id": result.ExecutionID,
		"context_out":  result.ContextOut,
		"errors":       result.Errors,
		"per_rule_stats": result.PerRuleStats,
	}
	if *query != "" {
		if qerr := printQuery(*query, out); qerr != nil {
			fmt.Fprintf(os.Stderr, "query: %v\n", qerr)
			os.Exit(1)
		}
	} else {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(out); encErr != nil {
			fmt.Fprintf(os.Stderr, "encode output: %v\n", encErr)
			os.Exit(1)
		}
	}
	if err != nil {
		os.Exit(1)
	}
}

// printQuery runs a jq filter over the result document and prints each
// emitted value as a JSON line. The document is round-tripped through
// encoding/json first so gojq only sees JSON-native types.
func printQuery(filter string, doc map[string]interface{}) error {
	q, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("parse filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return fmt.Errorf("compile filter %q: %w", filter, err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	var normalized interface{}
	if err := json.Unmarshal(data, &normalized); err != nil {
		return err
	}

	iter := code.Run(normalized)
	for {
		v, ok := iter.Next()
		if !ok {
			return nil
		}
		if qerr, ok := v.(error); ok {
			return qerr
		}
		line, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Println(string(line))
	}
}

func loadRules(path string, cfg config.EngineConfig) ([]*dag.Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var specs []ruleSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, err
	}

	ruleOpts := rule.Options{
		PromotionThreshold: cfg.BytecodePromotionThreshold,
		MinComplexity:       cfg.BytecodeMinComplexity,
		StackLimit:          cfg.BytecodeStackLimit,
	}

	rules := make([]*dag.Rule, 0, len(specs))
	for _, s := range specs {
		ast, err := parser.Parse(s.Expression)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", s.ID, err)
		}
		enabled := true
		if s.Enabled != nil {
			enabled = *s.Enabled
		}
		r := &dag.Rule{
			ID:          s.ID,
			InputPaths:  s.InputPaths,
			OutputPaths: s.OutputPaths,
			Compiled:    rule.New(ast, ruleOpts),
			OrderIndex:  s.OrderIndex,
			Enabled:     enabled,
			Guard:       s.Guard,
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule %s: %w", s.ID, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func loadInput(path string) (map[string]value.Value, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var anyInput map[string]interface{}
	if err := json.Unmarshal(raw, &anyInput); err != nil {
		return nil, err
	}
	out := make(map[string]value.Value, len(anyInput))
	for k, v := range anyInput {
		out[k] = value.FromAny(v)
	}
	return out, nil
}
