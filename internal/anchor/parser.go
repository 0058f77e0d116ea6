package anchor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/cache"
)

const irCacheTag = "anchor-ir-v3"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrEmptyTree is returned when tree-sitter yields no root node.
var ErrEmptyTree = errors.New("parser returned an empty syntax tree")

// Parser turns Rust source into a FileIR. It is safe for concurrent use; every Parse
// call creates its own tree-sitter parser.
type Parser struct {
	lang *sitter.Language
}

func NewParser() *Parser {
	return &Parser{lang: rust.GetLanguage()}
}

// Parse builds the IR for one source file. Syntax errors do not fail the call: the
// functions that contain them are marked Malformed and the file records an issue.
func (p *Parser) Parse(ctx context.Context, file string, src []byte) (*FileIR, error) {
	ts := sitter.NewParser()
	ts.SetLanguage(p.lang)
	tree, err := ts.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	defer tree.Close()
	root := tree.RootNode()
	if root == nil {
		return nil, fmt.Errorf("parse %s: %w", file, ErrEmptyTree)
	}
	c := &converter{
		src:    src,
		file:   file,
		parser: ts,
		ir:     &FileIR{File: file, Structs: map[string]*AccountsStruct{}},
	}
	c.items(root, false)
	c.link()
	return c.ir, nil
}

// BuildIR parses a file through the content-addressed cache.
func BuildIR(ctx context.Context, p *Parser, filePath string, content []byte, useCache bool) (*FileIR, error) {
	var key string
	if useCache {
		abs, _ := filepath.Abs(filePath)
		key = cache.Key(irCacheTag, abs, string(content))
		if b, ok := cache.Load(key); ok {
			var ir FileIR
			if err := json.Unmarshal(b, &ir); err == nil {
				ir.File = filePath
				return &ir, nil
			}
		}
	}
	ir, err := p.Parse(ctx, filePath, content)
	if err != nil {
		return nil, err
	}
	if useCache {
		if data, err := json.Marshal(ir); err == nil {
			_ = cache.Store(key, data)
		}
	}
	return ir, nil
}

// link attaches #[derive(Accounts)] fields to the handlers that take Context<T>.
// Structs may be declared after the program module, so this runs once the whole file
// has been read.
func (c *converter) link() {
	for _, fn := range c.ir.Functions {
		if fn.AccountsType == "" {
			continue
		}
		st, ok := c.ir.Structs[fn.AccountsType]
		if !ok {
			fn.Issues = append(fn.Issues, Issue{
				Kind:    "unresolved-accounts",
				Message: fmt.Sprintf("accounts struct %s is not declared in this file", fn.AccountsType),
				Span:    fn.Span,
			})
			continue
		}
		fields := make([]AccountDecl, 0, len(st.Fields)+len(fn.Accounts))
		fields = append(fields, st.Fields...)
		fn.Accounts = append(fields, fn.Accounts...)
	}
}
