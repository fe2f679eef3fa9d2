package formatter

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"

	"github.com/keisuke-w/tokenwatch/internal/data/aggregator"
)

// JSONRenderer emits the aggregation result as indented json.
type JSONRenderer struct {
	out io.Writer
}

func NewJSONRenderer(out io.Writer) *JSONRenderer {
	return &JSONRenderer{out: out}
}

func (r *JSONRenderer) Render(result *aggregator.Result) error {
	data, err := sonic.ConfigDefault.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	_, err = fmt.Fprintln(r.out, string(data))
	return err
}
