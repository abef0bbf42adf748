package parser

import "github.com/panbanda/strata/pkg/uast"

type set map[string]bool

func newSet(items ...string) set {
	s := make(set, len(items))
	for _, item := range items {
		s[item] = true
	}
	return s
}

// callRule names the fields of a call node holding the callee and, when the
// grammar splits them, the receiver.
type callRule struct {
	name string
	qual string
}

// langSpec is the per-language table driving the tree-sitter front-end.
type langSpec struct {
	comments  set
	functions set // callable declarations; unnamed ones fold into their parent
	anonymous set // lambda-like nodes that are never declarations on their own
	methods   set // callables that are methods regardless of scope
	types     map[string]uast.NodeKind
	modules   set
	constants set
	impls     set
	calls     map[string]callRule
	news      map[string]string // node type -> field naming the instantiated type
	typeRefs  set
	imports   set

	ifs       set
	elseIfs   set
	elses     set
	loops     set
	switches  set
	arms      set
	catches   set
	ternaries set
	boolOps   set
	jumps     set
	labels    set // child types naming the target of a labelled break/continue
}

var specs = map[Language]*langSpec{
	LangGo:         goSpec(),
	LangRust:       rustSpec(),
	LangPython:     pythonSpec(),
	LangJavaScript: jsSpec(),
	LangTypeScript: jsSpec(),
	LangTSX:        jsSpec(),
	LangJava:       javaSpec(),
	LangC:          cSpec(false),
	LangCPP:        cSpec(true),
	LangCSharp:     csharpSpec(),
	LangRuby:       rubySpec(),
	LangPHP:        phpSpec(),
	LangBash:       bashSpec(),
}

func goSpec() *langSpec {
	return &langSpec{
		comments:  newSet("comment"),
		functions: newSet("function_declaration", "method_declaration"),
		anonymous: newSet("func_literal"),
		methods:   newSet("method_declaration"),
		types:     map[string]uast.NodeKind{"type_spec": uast.KindClass},
		modules:   newSet(),
		constants: newSet("const_declaration"),
		impls:     newSet(),
		calls:     map[string]callRule{"call_expression": {name: "function"}},
		news:      map[string]string{"composite_literal": "type"},
		typeRefs:  newSet("type_identifier"),
		imports:   newSet("import_spec"),
		ifs:       newSet("if_statement"),
		elseIfs:   newSet(),
		elses:     newSet("else"),
		loops:     newSet("for_statement"),
		switches:  newSet("expression_switch_statement", "type_switch_statement", "select_statement"),
		arms:      newSet("expression_case", "type_case", "default_case", "communication_case"),
		catches:   newSet(),
		ternaries: newSet(),
		boolOps:   newSet("binary_expression"),
		jumps:     newSet("goto_statement", "break_statement", "continue_statement"),
		labels:    newSet("label_name"),
	}
}

func rustSpec() *langSpec {
	return &langSpec{
		comments:  newSet("line_comment", "block_comment"),
		functions: newSet("function_item"),
		anonymous: newSet("closure_expression"),
		methods:   newSet(),
		types: map[string]uast.NodeKind{
			"struct_item": uast.KindClass,
			"union_item":  uast.KindClass,
			"enum_item":   uast.KindEnum,
			"trait_item":  uast.KindTrait,
		},
		modules:   newSet("mod_item"),
		constants: newSet("const_item", "static_item"),
		impls:     newSet("impl_item"),
		calls: map[string]callRule{
			"call_expression":        {name: "function"},
			"method_call_expression": {name: "name", qual: "receiver"},
		},
		news:      map[string]string{"struct_expression": "name"},
		typeRefs:  newSet("type_identifier"),
		imports:   newSet("use_declaration"),
		ifs:       newSet("if_expression", "if_let_expression"),
		elseIfs:   newSet(),
		elses:     newSet("else_clause"),
		loops:     newSet("for_expression", "while_expression", "while_let_expression", "loop_expression"),
		switches:  newSet("match_expression"),
		arms:      newSet("match_arm"),
		catches:   newSet(),
		ternaries: newSet(),
		boolOps:   newSet("binary_expression"),
		jumps:     newSet("break_expression", "continue_expression"),
		labels:    newSet("label"),
	}
}

func pythonSpec() *langSpec {
	return &langSpec{
		comments:  newSet("comment"),
		functions: newSet("function_definition"),
		anonymous: newSet("lambda"),
		methods:   newSet(),
		types:     map[string]uast.NodeKind{"class_definition": uast.KindClass},
		modules:   newSet(),
		constants: newSet("assignment"),
		impls:     newSet(),
		calls:     map[string]callRule{"call": {name: "function"}},
		news:      map[string]string{},
		typeRefs:  newSet(),
		imports:   newSet("import_statement", "import_from_statement"),
		ifs:       newSet("if_statement", "if_clause"),
		elseIfs:   newSet("elif_clause"),
		elses:     newSet("else_clause"),
		loops:     newSet("for_statement", "while_statement", "for_in_clause"),
		switches:  newSet("match_statement"),
		arms:      newSet("case_clause"),
		catches:   newSet("except_clause", "except_group_clause"),
		ternaries: newSet("conditional_expression"),
		boolOps:   newSet("boolean_operator"),
		jumps:     newSet(),
		labels:    newSet(),
	}
}

func jsSpec() *langSpec {
	return &langSpec{
		comments: newSet("comment"),
		functions: newSet("function_declaration", "generator_function_declaration", "method_definition",
			"arrow_function", "function_expression", "function", "generator_function"),
		anonymous: newSet("arrow_function", "function_expression", "function", "generator_function"),
		methods:   newSet("method_definition"),
		types: map[string]uast.NodeKind{
			"class_declaration":          uast.KindClass,
			"abstract_class_declaration": uast.KindClass,
			"interface_declaration":      uast.KindTrait,
			"enum_declaration":           uast.KindEnum,
		},
		modules:   newSet("internal_module"),
		constants: newSet("lexical_declaration"),
		impls:     newSet(),
		calls:     map[string]callRule{"call_expression": {name: "function"}},
		news:      map[string]string{"new_expression": "constructor"},
		typeRefs:  newSet("type_identifier"),
		imports:   newSet("import_statement"),
		ifs:       newSet("if_statement"),
		elseIfs:   newSet(),
		elses:     newSet("else_clause"),
		loops:     newSet("for_statement", "for_in_statement", "while_statement", "do_statement"),
		switches:  newSet("switch_statement"),
		arms:      newSet("switch_case", "switch_default"),
		catches:   newSet("catch_clause"),
		ternaries: newSet("ternary_expression"),
		boolOps:   newSet("binary_expression"),
		jumps:     newSet("break_statement", "continue_statement"),
		labels:    newSet("statement_identifier"),
	}
}

func javaSpec() *langSpec {
	return &langSpec{
		comments:  newSet("line_comment", "block_comment"),
		functions: newSet("method_declaration", "constructor_declaration"),
		anonymous: newSet("lambda_expression"),
		methods:   newSet("method_declaration", "constructor_declaration"),
		types: map[string]uast.NodeKind{
			"class_declaration":     uast.KindClass,
			"record_declaration":    uast.KindClass,
			"interface_declaration": uast.KindTrait,
			"enum_declaration":      uast.KindEnum,
		},
		modules:   newSet(),
		constants: newSet("field_declaration"),
		impls:     newSet(),
		calls:     map[string]callRule{"method_invocation": {name: "name", qual: "object"}},
		news:      map[string]string{"object_creation_expression": "type"},
		typeRefs:  newSet("type_identifier"),
		imports:   newSet("import_declaration"),
		ifs:       newSet("if_statement"),
		elseIfs:   newSet(),
		elses:     newSet("else"),
		loops:     newSet("for_statement", "enhanced_for_statement", "while_statement", "do_statement"),
		switches:  newSet("switch_expression", "switch_statement"),
		arms:      newSet("switch_block_statement_group", "switch_rule"),
		catches:   newSet("catch_clause"),
		ternaries: newSet("ternary_expression"),
		boolOps:   newSet("binary_expression"),
		jumps:     newSet("break_statement", "continue_statement"),
		labels:    newSet("identifier"),
	}
}

func cSpec(cpp bool) *langSpec {
	s := &langSpec{
		comments:  newSet("comment"),
		functions: newSet("function_definition"),
		anonymous: newSet(),
		methods:   newSet(),
		types: map[string]uast.NodeKind{
			"struct_specifier": uast.KindClass,
			"union_specifier":  uast.KindClass,
			"enum_specifier":   uast.KindEnum,
		},
		modules:   newSet(),
		constants: newSet("preproc_def"),
		impls:     newSet(),
		calls:     map[string]callRule{"call_expression": {name: "function"}},
		news:      map[string]string{},
		typeRefs:  newSet("type_identifier"),
		imports:   newSet("preproc_include"),
		ifs:       newSet("if_statement"),
		elseIfs:   newSet(),
		elses:     newSet("else_clause", "else"),
		loops:     newSet("for_statement", "while_statement", "do_statement"),
		switches:  newSet("switch_statement"),
		arms:      newSet("case_statement"),
		catches:   newSet(),
		ternaries: newSet("conditional_expression"),
		boolOps:   newSet("binary_expression"),
		jumps:     newSet("goto_statement"),
		labels:    newSet(),
	}
	if cpp {
		s.types["class_specifier"] = uast.KindClass
		s.modules["namespace_definition"] = true
		s.anonymous["lambda_expression"] = true
		s.news["new_expression"] = "type"
		s.loops["for_range_loop"] = true
		s.catches["catch_clause"] = true
	}
	return s
}

func csharpSpec() *langSpec {
	return &langSpec{
		comments: newSet("comment"),
		functions: newSet("method_declaration", "constructor_declaration", "destructor_declaration",
			"local_function_statement"),
		anonymous: newSet("lambda_expression", "anonymous_method_expression"),
		methods:   newSet("method_declaration", "constructor_declaration", "destructor_declaration"),
		types: map[string]uast.NodeKind{
			"class_declaration":     uast.KindClass,
			"struct_declaration":    uast.KindClass,
			"record_declaration":    uast.KindClass,
			"interface_declaration": uast.KindTrait,
			"enum_declaration":      uast.KindEnum,
		},
		modules:   newSet("namespace_declaration", "file_scoped_namespace_declaration"),
		constants: newSet("field_declaration"),
		impls:     newSet(),
		calls:     map[string]callRule{"invocation_expression": {name: "function"}},
		news:      map[string]string{"object_creation_expression": "type"},
		typeRefs:  newSet(),
		imports:   newSet("using_directive"),
		ifs:       newSet("if_statement"),
		elseIfs:   newSet(),
		elses:     newSet("else"),
		loops:     newSet("for_statement", "for_each_statement", "foreach_statement", "while_statement", "do_statement"),
		switches:  newSet("switch_statement", "switch_expression"),
		arms:      newSet("switch_section", "switch_expression_arm"),
		catches:   newSet("catch_clause"),
		ternaries: newSet("conditional_expression"),
		boolOps:   newSet("binary_expression"),
		jumps:     newSet("goto_statement"),
		labels:    newSet(),
	}
}

func rubySpec() *langSpec {
	return &langSpec{
		comments:  newSet("comment"),
		functions: newSet("method", "singleton_method"),
		anonymous: newSet("block", "do_block", "lambda"),
		methods:   newSet("singleton_method"),
		types:     map[string]uast.NodeKind{"class": uast.KindClass},
		modules:   newSet("module"),
		constants: newSet("assignment"),
		impls:     newSet(),
		calls: map[string]callRule{
			"call":        {name: "method", qual: "receiver"},
			"method_call": {name: "method", qual: "receiver"},
		},
		news:      map[string]string{},
		typeRefs:  newSet(),
		imports:   newSet(),
		ifs:       newSet("if", "unless", "if_modifier", "unless_modifier"),
		elseIfs:   newSet("elsif"),
		elses:     newSet("else"),
		loops:     newSet("while", "until", "for", "while_modifier", "until_modifier"),
		switches:  newSet("case", "case_match"),
		arms:      newSet("when", "in_clause"),
		catches:   newSet("rescue", "rescue_modifier"),
		ternaries: newSet("conditional"),
		boolOps:   newSet("binary"),
		jumps:     newSet(),
		labels:    newSet(),
	}
}

func phpSpec() *langSpec {
	return &langSpec{
		comments:  newSet("comment"),
		functions: newSet("function_definition", "method_declaration"),
		anonymous: newSet("anonymous_function_creation_expression", "anonymous_function", "arrow_function"),
		methods:   newSet("method_declaration"),
		types: map[string]uast.NodeKind{
			"class_declaration":     uast.KindClass,
			"interface_declaration": uast.KindTrait,
			"trait_declaration":     uast.KindTrait,
			"enum_declaration":      uast.KindEnum,
		},
		modules:   newSet("namespace_definition"),
		constants: newSet("const_declaration"),
		impls:     newSet(),
		calls: map[string]callRule{
			"function_call_expression":        {name: "function"},
			"member_call_expression":          {name: "name", qual: "object"},
			"nullsafe_member_call_expression": {name: "name", qual: "object"},
			"scoped_call_expression":          {name: "name", qual: "scope"},
		},
		news:     map[string]string{"object_creation_expression": ""},
		typeRefs: newSet(),
		imports: newSet("namespace_use_declaration", "require_expression", "require_once_expression",
			"include_expression", "include_once_expression"),
		ifs:       newSet("if_statement"),
		elseIfs:   newSet("else_if_clause"),
		elses:     newSet("else_clause"),
		loops:     newSet("for_statement", "foreach_statement", "while_statement", "do_statement"),
		switches:  newSet("switch_statement", "match_expression"),
		arms:      newSet("case_statement", "default_statement", "match_conditional_expression", "match_default_expression"),
		catches:   newSet("catch_clause"),
		ternaries: newSet("conditional_expression"),
		boolOps:   newSet("binary_expression"),
		jumps:     newSet("goto_statement"),
		labels:    newSet(),
	}
}

func bashSpec() *langSpec {
	return &langSpec{
		comments:  newSet("comment"),
		functions: newSet("function_definition"),
		anonymous: newSet(),
		methods:   newSet(),
		types:     map[string]uast.NodeKind{},
		modules:   newSet(),
		constants: newSet(),
		impls:     newSet(),
		calls:     map[string]callRule{"command": {name: "name"}},
		news:      map[string]string{},
		typeRefs:  newSet(),
		imports:   newSet(),
		ifs:       newSet("if_statement"),
		elseIfs:   newSet("elif_clause"),
		elses:     newSet("else_clause"),
		loops:     newSet("for_statement", "c_style_for_statement", "while_statement"),
		switches:  newSet("case_statement"),
		arms:      newSet("case_item"),
		catches:   newSet(),
		ternaries: newSet("ternary_expression"),
		boolOps:   newSet("list", "binary_expression"),
		jumps:     newSet(),
		labels:    newSet(),
	}
}
