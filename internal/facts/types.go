package facts

import (
	"errors"

	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/analysis"
	"github.com/0x-Crisbanks/panda-smart-contract-auditor/internal/model"
)

// ErrMalformedFunction is returned for functions whose syntax tree contains errors.
var ErrMalformedFunction = errors.New("function body is malformed")

// Binding is an account visible to the analyzed function.
type Binding struct {
	Name    string     `json:"name"`
	Type    string     `json:"type,omitempty"`
	Mutable bool       `json:"mutable"`
	Signer  bool       `json:"signer"`
	Source  string     `json:"source"` // accounts-struct | parameter | local
	Span    model.Span `json:"span"`

	OwnerChecked bool `json:"owner_checked,omitempty"`
	RentExempt   bool `json:"rent_exempt,omitempty"`
	Initialized  bool `json:"initialized,omitempty"`
	PDAValidated bool `json:"pda_validated,omitempty"`
	// Fresh marks an account this function creates or initializes.
	Fresh bool `json:"fresh,omitempty"`
}

type GuardKind string

const (
	SignerCheck      GuardKind = "SignerCheck"
	OwnerCheck       GuardKind = "OwnerCheck"
	RentExemptCheck  GuardKind = "RentExemptCheck"
	PdaCheck         GuardKind = "PdaCheck"
	InitializedCheck GuardKind = "InitializedCheck"
	NonZeroCheck     GuardKind = "NonZeroCheck"
)

// Guard is a predicate known to hold at CFG node Node. Subject is the account it
// constrains (or the divisor text for NonZeroCheck); empty means any account. Target
// is the PDA variable a PdaCheck compares.
type Guard struct {
	Kind     GuardKind  `json:"kind"`
	Subject  string     `json:"subject,omitempty"`
	Target   string     `json:"target,omitempty"`
	Node     int        `json:"path_id"`
	Declared bool       `json:"declared,omitempty"`
	// Via is the member the predicate tests (is_signer, owner, data_len, ...) or the
	// declaration constraint it came from.
	Via  string     `json:"via,omitempty"`
	Span model.Span `json:"span"`
	Text string     `json:"text,omitempty"`
}

// Covers reports whether the guard speaks about subject.
func (g Guard) Covers(subject string) bool {
	return g.Subject == "" || g.Subject == subject
}

type OpKind string

const (
	LamportMutation    OpKind = "LamportMutation"
	RawDeserialization OpKind = "RawDeserialization"
	ArithmeticOp       OpKind = "ArithmeticOp"
	AccountDataWrite   OpKind = "AccountDataWrite"
	PdaDerivation      OpKind = "PdaDerivation"
	AccountCreation    OpKind = "AccountCreation"
	ForceUnwrap        OpKind = "ForceUnwrap"
)

type ArithKind string

const (
	Add ArithKind = "Add"
	Sub ArithKind = "Sub"
	Mul ArithKind = "Mul"
	Div ArithKind = "Div"
	Rem ArithKind = "Rem"
)

type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
	Set    Direction = "set"
)

// Operation is a sensitive operation together with the guards dominating it.
type Operation struct {
	Kind     OpKind     `json:"kind"`
	Subjects []string   `json:"subjects,omitempty"`
	Span     model.Span `json:"span"`
	Node     int        `json:"node"`
	Text     string     `json:"text,omitempty"`

	Arith   ArithKind `json:"arith,omitempty"`
	Checked bool      `json:"checked,omitempty"`
	// Tainted is set when an operand derives from instruction arguments or account data.
	Tainted bool `json:"tainted,omitempty"`
	// Divisor is the normalized right operand of Div/Rem; empty when it is a constant.
	Divisor   string    `json:"divisor,omitempty"`
	Direction Direction `json:"direction,omitempty"`
	// Result names the variable a PdaDerivation is bound to; empty when discarded.
	Result string `json:"result,omitempty"`
	Method string `json:"method,omitempty"`

	Guards []Guard `json:"guards,omitempty"`
}

// Subject returns the first subject account, or "".
func (o Operation) Subject() string {
	if len(o.Subjects) == 0 {
		return ""
	}
	return o.Subjects[0]
}

// GuardedBy reports whether a dominating guard of kind k covers subject.
func (o Operation) GuardedBy(k GuardKind, subject string) bool {
	for _, g := range o.Guards {
		if g.Kind == k && g.Covers(subject) {
			return true
		}
	}
	return false
}

// Issue is a construct the extractor could not classify.
type Issue struct {
	Message string     `json:"message"`
	Span    model.Span `json:"span"`
}

// FactSet is the semantic summary of one function.
type FactSet struct {
	File        string      `json:"file"`
	Function    string      `json:"function"`
	Span        model.Span  `json:"span"`
	ReturnsBool bool        `json:"returns_bool,omitempty"`
	Bindings    []Binding   `json:"bindings"`
	Guards      []Guard     `json:"guards"`
	Operations  []Operation `json:"operations"`
	Issues      []Issue     `json:"issues,omitempty"`

	// CFG the guards and operations refer to; nil for empty fact sets.
	CFG *analysis.CFG `json:"-"`
}

func (fs *FactSet) Binding(name string) (Binding, bool) {
	for _, b := range fs.Bindings {
		if b.Name == name {
			return b, true
		}
	}
	return Binding{}, false
}

// GuardsOf returns the guards of kind k, in extraction order.
func (fs *FactSet) GuardsOf(k GuardKind) []Guard {
	var out []Guard
	for _, g := range fs.Guards {
		if g.Kind == k {
			out = append(out, g)
		}
	}
	return out
}

func (fs *FactSet) OperationsOf(k OpKind) []Operation {
	var out []Operation
	for _, o := range fs.Operations {
		if o.Kind == k {
			out = append(out, o)
		}
	}
	return out
}

// Validate checks the internal consistency detectors rely on.
func (fs *FactSet) Validate() error {
	if fs == nil {
		return errors.New("nil fact set")
	}
	if fs.Function == "" {
		return errors.New("fact set has no function name")
	}
	n := 0
	if fs.CFG != nil {
		n = len(fs.CFG.Nodes)
	}
	for _, o := range fs.Operations {
		if fs.CFG != nil && (o.Node < 0 || o.Node >= n) {
			return errors.New("operation refers to a node outside the control-flow graph")
		}
	}
	for _, g := range fs.Guards {
		if fs.CFG != nil && (g.Node < 0 || g.Node >= n) {
			return errors.New("guard refers to a node outside the control-flow graph")
		}
	}
	return nil
}
