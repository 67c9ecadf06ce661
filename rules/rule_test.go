package rules

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExprEvaluator tests the ExprEvaluator implementation.
func TestExprEvaluator(t *testing.T) {
	evaluator := NewExprEvaluator()

	tests := []struct {
		name       string
		expression string
		env        map[string]interface{}
		wantResult bool
		wantErr    bool
		errMsg     string
	}{
		{
			name:       "Valid true expression",
			expression: "amount > 500000",
			env:        map[string]interface{}{"amount": 750000.0},
			wantResult: true,
		},
		{
			name:       "Valid false expression",
			expression: "days > 3",
			env:        map[string]interface{}{"days": 2.0},
			wantResult: false,
		},
		{
			name:       "String comparison",
			expression: "priority == 'urgent'",
			env:        map[string]interface{}{"priority": "urgent"},
			wantResult: true,
		},
		{
			name:       "Empty expression always matches",
			expression: "",
			env:        nil,
			wantResult: true,
		},
		{
			name:       "Non-boolean result",
			expression: "age + 5",
			env:        map[string]interface{}{"age": 25},
			wantResult: false,
			wantErr:    true,
			errMsg:     "expression 'age + 5' did not evaluate to a boolean, got int",
		},
		{
			name:       "Invalid expression",
			expression: "age >>> 18",
			env:        map[string]interface{}{"age": 25},
			wantResult: false,
			wantErr:    true,
			errMsg:     "unexpected token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(tt.expression, tt.env)
			if tt.wantErr {
				assert.Error(t, err, "Evaluate() should return an error")
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg, "Error message should match")
				}
				assert.Equal(t, tt.wantResult, result)
			} else {
				assert.NoError(t, err, "Evaluate() should not return an error")
				assert.Equal(t, tt.wantResult, result, "Evaluate() result should match")
			}
		})
	}

	t.Run("Cached program reused across environments", func(t *testing.T) {
		expression := "score > 10"
		result1, err1 := evaluator.Evaluate(expression, map[string]interface{}{"score": 15})
		assert.NoError(t, err1)
		assert.True(t, result1)

		result2, err2 := evaluator.Evaluate(expression, map[string]interface{}{"score": 5, "other": "x"})
		assert.NoError(t, err2)
		assert.False(t, result2)
	})

	t.Run("Concurrent evaluation", func(t *testing.T) {
		var wg sync.WaitGroup
		numGoroutines := 100
		env := map[string]interface{}{"value": 42}

		wg.Add(numGoroutines)
		for i := 0; i < numGoroutines; i++ {
			go func() {
				defer wg.Done()
				result, err := evaluator.Evaluate("value > 0", env)
				assert.NoError(t, err)
				assert.True(t, result)
			}()
		}
		wg.Wait()
	})

	t.Run("Option funcs do not leak into caller env", func(t *testing.T) {
		ev := NewExprEvaluator()
		ev.AddOptionFunc("weekend", func(env map[string]interface{}) interface{} {
			return env["day"] == "sat" || env["day"] == "sun"
		})
		env := map[string]interface{}{"day": "sat"}
		result, err := ev.Evaluate("weekend", env)
		assert.NoError(t, err)
		assert.True(t, result)
		_, leaked := env["weekend"]
		assert.False(t, leaked)
	})
}

func TestRouteEvaluatorAmountTotal(t *testing.T) {
	ev := NewRouteEvaluator()
	tests := []struct {
		name string
		env  map[string]interface{}
		want bool
	}{
		{"declared amount wins", map[string]interface{}{"amount": 6000000.0, "quantity": 1.0, "unit_price": 1.0}, true},
		{"quantity times unit price", map[string]interface{}{"amount": 0.0, "quantity": 3.0, "unit_price": 2000000.0}, true},
		{"below threshold", map[string]interface{}{"amount": 0.0, "quantity": 2.0, "unit_price": 2000000.0}, false},
		{"no purchase fields", map[string]interface{}{"days": 3.0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ev.Evaluate("amount_total > 5000000", tt.env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			_, leaked := tt.env["amount_total"]
			assert.False(t, leaked)
		})
	}
}

// BenchmarkEvaluate benchmarks the performance of Evaluate with caching.
func BenchmarkEvaluate(b *testing.B) {
	evaluator := NewExprEvaluator()
	env := map[string]interface{}{"x": 10}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = evaluator.Evaluate("x > 5", env)
	}
}
