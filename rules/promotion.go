package rules

import (
	"fmt"

	"github.com/GoCodeAlone/bookstore/comms"
	"github.com/GoCodeAlone/bookstore/world"
	"github.com/google/cel-go/cel"
)

// DefaultPromotionExpr flags books that are selling well but running out.
const DefaultPromotionExpr = "stock <= 5 && popularity > 0.7"

// PromotionRule is a compiled CEL expression over a book's stock, reorder_level,
// popularity, price and sales. It is safe to share between book agents.
type PromotionRule struct {
	expr string
	prg  cel.Program
}

// NewPromotionRule compiles expr. An empty expr selects DefaultPromotionExpr.
func NewPromotionRule(expr string) (*PromotionRule, error) {
	if expr == "" {
		expr = DefaultPromotionExpr
	}
	env, err := cel.NewEnv(
		cel.Variable("stock", cel.IntType),
		cel.Variable("reorder_level", cel.IntType),
		cel.Variable("popularity", cel.DoubleType),
		cel.Variable("price", cel.DoubleType),
		cel.Variable("sales", cel.IntType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("promotion env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile promotion rule %q: %w", expr, issues.Err())
	}
	prg, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("promotion program: %w", err)
	}
	return &PromotionRule{expr: expr, prg: prg}, nil
}

// Expr returns the source expression.
func (r *PromotionRule) Expr() string { return r.expr }

// Match evaluates the rule for one book.
func (r *PromotionRule) Match(b world.Book, inv world.InventoryRecord) (bool, error) {
	out, _, err := r.prg.Eval(map[string]any{
		"stock":         int64(inv.Quantity),
		"reorder_level": int64(inv.ReorderLevel),
		"popularity":    b.Popularity,
		"price":         b.Price,
		"sales":         int64(b.Sales),
	})
	if err != nil {
		return false, fmt.Errorf("eval promotion rule: %w", err)
	}
	val, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("promotion rule %q: result not bool", r.expr)
	}
	return val, nil
}

// Suggestion builds the promotion_suggestion broadcast for a book.
func Suggestion(b world.Book) Effects {
	return Effects{Messages: []comms.Message{comms.New(b.ID, "", comms.SystemAlert{
		Type: comms.AlertPromotionSuggestion, BookID: b.ID, Text: "high demand, low stock",
	})}}
}
