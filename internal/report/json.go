package report

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

// stable encodes maps with sorted keys and escapes HTML like encoding/json.
var stable = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// JSON renders the report as indented JSON. Output is byte-identical for equal reports.
func JSON(r model.Report) ([]byte, error) {
	b, err := stable.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}
