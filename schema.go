package opts

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jyscao/tail-risk/grammar"
	"github.com/jyscao/tail-risk/internal/errs"
	"github.com/jyscao/tail-risk/internal/hydrate"
	"github.com/jyscao/tail-risk/schemas"
)

// Schema is an ordered, validated set of option descriptors. It is immutable
// once loaded; every resolution run works on clones of its descriptors.
type Schema struct {
	name    string
	order   []string
	options map[string]*Descriptor
}

// Name identifies the schema, by default the stem of the file it came from.
func (s *Schema) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

// Names returns the option names in declaration order.
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Len reports the number of declared options.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Lookup returns a copy of the named descriptor.
func (s *Schema) Lookup(name string) (*Descriptor, bool) {
	if s == nil {
		return nil, false
	}
	d, ok := s.options[name]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// Descriptors returns copies of every descriptor in declaration order.
func (s *Schema) Descriptors() []*Descriptor {
	if s == nil {
		return nil
	}
	out := make([]*Descriptor, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.options[name].Clone())
	}
	return out
}

// GroupDefaults maps option names to the defaults used in group mode.
// Choice-map defaults are grammar.ChoiceMap values.
type GroupDefaults map[string]any

// Clone returns a deep copy of g.
func (g GroupDefaults) Clone() GroupDefaults {
	if g == nil {
		return nil
	}
	out := make(GroupDefaults, len(g))
	for name, value := range g {
		out[name] = cloneData(value)
	}
	return out
}

// SchemaOption configures LoadSchema.
type SchemaOption func(*schemaConfig)

type schemaConfig struct {
	name      string
	callbacks *CallbackRegistry
}

// WithSchemaName overrides the schema name.
func WithSchemaName(name string) SchemaOption {
	return func(cfg *schemaConfig) {
		cfg.name = name
	}
}

// WithSchemaCallbacks validates callback names against registry instead of
// the built-in set.
func WithSchemaCallbacks(registry *CallbackRegistry) SchemaOption {
	return func(cfg *schemaConfig) {
		cfg.callbacks = registry
	}
}

// attributeSpec is the typed view of one option's attribute block, minus the
// default which is read from the YAML node to keep mapping order.
type attributeSpec struct {
	ParamDecls  []string `json:"param_decls"`
	Type        any      `json:"type"`
	Callback    string   `json:"callback"`
	Class       string   `json:"cls"`
	Eager       bool     `json:"is_eager"`
	Hidden      bool     `json:"hidden"`
	Multiple    bool     `json:"multiple"`
	Help        string   `json:"help"`
	ShowDefault *bool    `json:"show_default"`
	Metavar     *string  `json:"metavar"`
	Applicable  string   `json:"applicable"`
	Engine      string   `json:"engine"`
}

var specialAttributes = []string{"type", "callback", "cls"}

var attributeDecoder = hydrate.NewDecoder[attributeSpec](
	hydrate.WithPreHook[attributeSpec](mergeAliases),
	hydrate.WithPreHook[attributeSpec](rejectFalsySpecials),
	hydrate.WithPostHook[attributeSpec](fillMetaAttributes),
	hydrate.WithDisallowUnknownFields[attributeSpec](),
)

// mergeAliases folds the "aliases" spelling into param_decls.
func mergeAliases(_ hydrate.Context, payload map[string]any) (map[string]any, error) {
	aliases, ok := payload["aliases"]
	if !ok {
		return payload, nil
	}
	delete(payload, "aliases")
	list, _ := aliases.([]any)
	if existing, ok := payload["param_decls"].([]any); ok {
		list = append(existing, list...)
	}
	payload["param_decls"] = list
	return payload, nil
}

func rejectFalsySpecials(ctx hydrate.Context, payload map[string]any) (map[string]any, error) {
	for _, attr := range specialAttributes {
		value, ok := payload[attr]
		if !ok {
			continue
		}
		if isFalsy(value) {
			return nil, errs.New(errs.ErrSchema, "cannot use %s as '%s' for option %s", describeFalsy(value), attr, ctx.Option)
		}
	}
	return payload, nil
}

func fillMetaAttributes(_ hydrate.Context, attrs *attributeSpec) error {
	if attrs.ShowDefault == nil {
		show := true
		attrs.ShowDefault = &show
	}
	if attrs.Metavar == nil {
		empty := ""
		attrs.Metavar = &empty
	}
	return nil
}

func isFalsy(v any) bool {
	switch typed := v.(type) {
	case nil:
		return true
	case string:
		return typed == ""
	case bool:
		return !typed
	case []any:
		return len(typed) == 0
	case map[string]any:
		return len(typed) == 0
	default:
		return false
	}
}

func describeFalsy(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%q", fmt.Sprint(v))
}

// LoadSchema parses a YAML schema document. Options keep their declaration
// order and choice-map defaults keep their key order.
func LoadSchema(r io.Reader, opts ...SchemaOption) (*Schema, error) {
	cfg := schemaConfig{name: "schema"}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.callbacks == nil {
		cfg.callbacks = DefaultCallbacks()
	}

	root, err := decodeDocument(r)
	if err != nil {
		return nil, err
	}
	if root == nil || len(root.Content) == 0 {
		return nil, errs.New(errs.ErrSchema, "schema %s declares no options", cfg.name)
	}

	schema := &Schema{name: cfg.name, options: make(map[string]*Descriptor)}
	flags := make(map[string]string)
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valueNode := root.Content[i], root.Content[i+1]
		name := keyNode.Value
		if _, dup := schema.options[name]; dup {
			return nil, errs.New(errs.ErrSchema, "option %s declared twice", name)
		}
		desc, err := buildDescriptor(cfg, name, valueNode)
		if err != nil {
			return nil, errs.Attach(err, name)
		}
		for _, flag := range append(desc.Flags(), desc.NegatedFlags()...) {
			if owner, taken := flags[flag]; taken && owner != name {
				return nil, errs.New(errs.ErrSchema, "flag %s declared by both %s and %s", flag, owner, name)
			}
			flags[flag] = name
		}
		schema.options[name] = desc
		schema.order = append(schema.order, name)
	}
	return schema, nil
}

// LoadSchemaFile loads the schema at path, naming it after the file stem.
func LoadSchemaFile(path string, opts ...SchemaOption) (*Schema, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.ErrMissingResource, "cannot find schema file '%s'", path)
	}
	defer file.Close()
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return LoadSchema(file, append([]SchemaOption{WithSchemaName(name)}, opts...)...)
}

// DefaultSchema loads the embedded option schema.
func DefaultSchema(opts ...SchemaOption) (*Schema, error) {
	return LoadSchema(bytes.NewReader(schemas.Attributes),
		append([]SchemaOption{WithSchemaName("attributes")}, opts...)...)
}

// LoadGroupDefaults parses a YAML table of group-mode defaults.
func LoadGroupDefaults(r io.Reader) (GroupDefaults, error) {
	root, err := decodeDocument(r)
	if err != nil {
		return nil, err
	}
	out := make(GroupDefaults)
	if root == nil {
		return out, nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		value, err := nodeValue(root.Content[i+1])
		if err != nil {
			return nil, errs.Attach(err, name)
		}
		out[name] = value
	}
	return out, nil
}

// LoadGroupDefaultsFile loads the group-defaults table at path.
func LoadGroupDefaultsFile(path string) (GroupDefaults, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errs.New(errs.ErrMissingResource, "cannot find group defaults file '%s'", path)
	}
	defer file.Close()
	return LoadGroupDefaults(file)
}

// DefaultGroupDefaults loads the embedded group-mode default table.
func DefaultGroupDefaults() (GroupDefaults, error) {
	return LoadGroupDefaults(bytes.NewReader(schemas.GroupDefaults))
}

// decodeDocument returns the top-level mapping node, nil for an empty
// document.
func decodeDocument(r io.Reader) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, errs.Wrap(errs.ErrSchema, fmt.Errorf("parse yaml: %w", err))
	}
	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, nil
		}
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, errs.New(errs.ErrSchema, "expected a mapping at the top level, found %s", nodeKind(root))
	}
	return root, nil
}

func buildDescriptor(cfg schemaConfig, name string, node *yaml.Node) (*Descriptor, error) {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return nil, errs.New(errs.ErrSchema, "attributes must be a mapping, found %s", nodeKind(node))
	}

	var defaultNode *yaml.Node
	rest := &yaml.Node{Kind: yaml.MappingNode}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "default" {
			defaultNode = node.Content[i+1]
			continue
		}
		rest.Content = append(rest.Content, node.Content[i], node.Content[i+1])
	}

	payload := map[string]any{}
	if err := rest.Decode(&payload); err != nil {
		return nil, errs.Wrap(errs.ErrSchema, err)
	}
	attrs, err := attributeDecoder.Decode(hydrate.Context{Option: name, Source: cfg.name}, payload)
	if err != nil {
		if errs.KindOf(err) == nil {
			err = errs.Wrap(errs.ErrSchema, err)
		}
		return nil, err
	}

	desc := &Descriptor{
		Name:        name,
		Aliases:     attrs.ParamDecls,
		Class:       attrs.Class,
		Callback:    attrs.Callback,
		Eager:       attrs.Eager,
		Hidden:      attrs.Hidden,
		Multiple:    attrs.Multiple,
		Help:        attrs.Help,
		ShowDefault: *attrs.ShowDefault,
		Metavar:     *attrs.Metavar,
		Applicable:  attrs.Applicable,
		Engine:      attrs.Engine,
	}

	if defaultNode != nil {
		if desc.Default, err = nodeValue(defaultNode); err != nil {
			return nil, err
		}
	}
	if desc.Type, err = resolveType(attrs.Type); err != nil {
		return nil, err
	}
	if err := resolveClass(desc); err != nil {
		return nil, err
	}
	if desc.Callback != "" {
		if _, ok := cfg.callbacks.Lookup(desc.Callback); !ok {
			return nil, unknownName("callback", desc.Callback, cfg.callbacks.Names())
		}
	}
	if !knownEngine(desc.Engine) {
		return nil, unknownName("engine", desc.Engine, []string{EngineExpr, EngineCEL, EngineJS})
	}
	if desc.Engine == EngineJS && !jsEvaluatorAvailable() {
		return nil, errs.New(errs.ErrSchema, "engine 'js' requires a build with the js_eval tag")
	}
	if desc.Engine != "" && desc.Applicable == "" {
		return nil, errs.New(errs.ErrSchema, "'engine' given without an 'applicable' rule")
	}
	return desc, nil
}

var scalarTypes = []string{string(TypeString), string(TypeInt), string(TypeFloat), string(TypeBool), string(TypePath)}

func resolveType(raw any) (TypeSpec, error) {
	switch typed := raw.(type) {
	case nil:
		return TypeSpec{}, nil
	case string:
		for _, name := range scalarTypes {
			if typed == name {
				return TypeSpec{Name: ValueType(typed)}, nil
			}
		}
		return TypeSpec{}, unknownName("type", typed, scalarTypes)
	case []any:
		choices := make([]string, 0, len(typed))
		for _, member := range typed {
			switch member.(type) {
			case string, bool, int, int64, float64:
				choices = append(choices, fmt.Sprint(member))
			default:
				return TypeSpec{}, errs.New(errs.ErrSchema, "choice members must be scalars, got %v", member)
			}
		}
		return TypeSpec{Name: TypeChoice, Choices: choices}, nil
	default:
		return TypeSpec{}, errs.New(errs.ErrSchema, "cannot use %v as 'type'", raw)
	}
}

func resolveClass(desc *Descriptor) error {
	_, isMap := desc.Default.(grammar.ChoiceMap)
	switch desc.Class {
	case "":
		if isMap {
			return errs.New(errs.ErrSchema, "a mapping default requires cls: %s", VnargsClass)
		}
		desc.Kind = GrammarScalar
	case VnargsClass:
		switch desc.Default.(type) {
		case grammar.ChoiceMap:
			desc.Kind = GrammarChoiceMap
		case nil:
			desc.Kind = GrammarVariadic
		case []any:
			desc.Kind = GrammarVariadic
			desc.Default = stringList(desc.Default.([]any))
		default:
			return errs.New(errs.ErrSchema, "%s default must be a mapping, a list or null; got %v", VnargsClass, desc.Default)
		}
	default:
		return unknownName("cls", desc.Class, []string{VnargsClass})
	}
	return nil
}

func stringList(values []any) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, fmt.Sprint(v))
	}
	return out
}

func unknownName(attr, name string, candidates []string) error {
	err := errs.New(errs.ErrSchema, "unknown %s '%s'; must be one of [%s]", attr, name, strings.Join(candidates, ", "))
	if hint := grammar.Suggest(name, candidates); hint != "" {
		err.Msg += fmt.Sprintf(" (did you mean %q?)", hint)
	}
	return err
}

// nodeValue converts a YAML default into engine data: mappings become an
// ordered grammar.ChoiceMap, integers become int64.
func nodeValue(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.AliasNode:
		return nodeValue(node.Alias)
	case yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return nil, errs.Wrap(errs.ErrSchema, err)
		}
		if i, ok := v.(int); ok {
			return int64(i), nil
		}
		return v, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(node.Content))
		for _, child := range node.Content {
			v, err := nodeValue(child)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.MappingNode:
		choices := make(grammar.ChoiceMap, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			args, err := choiceArgs(node.Content[i+1])
			if err != nil {
				return nil, errs.Attach(err, node.Content[i].Value)
			}
			choices = append(choices, grammar.ChoiceDefault{Key: node.Content[i].Value, Args: args})
		}
		return choices, nil
	default:
		return nil, errs.New(errs.ErrSchema, "unsupported default %s", nodeKind(node))
	}
}

func choiceArgs(node *yaml.Node) (grammar.Args, error) {
	if node.Kind == yaml.AliasNode {
		node = node.Alias
	}
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return grammar.Null(), nil
		}
		return grammar.ArgsOf(node.Value), nil
	case yaml.SequenceNode:
		values := make([]string, 0, len(node.Content))
		for _, child := range node.Content {
			if child.Kind != yaml.ScalarNode {
				return grammar.Args{}, errs.New(errs.ErrSchema, "choice arguments must be scalars")
			}
			values = append(values, child.Value)
		}
		if len(values) == 0 {
			return grammar.ArgsOf(), nil
		}
		return grammar.Args{Shape: grammar.ShapeSequence, Values: values}, nil
	default:
		return grammar.Args{}, errs.New(errs.ErrSchema, "choice arguments must be null or a list, found %s", nodeKind(node))
	}
}

func nodeKind(node *yaml.Node) string {
	switch node.Kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "unknown"
	}
}
