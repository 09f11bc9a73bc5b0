package record

import (
	"errors"
	"fmt"
)

// ErrValidation is returned when field values don't satisfy a kind's schema,
// or when a required input (such as a natural key) is missing.
var ErrValidation = errors.New("espalier: validation failed")

// Kind identifies one of the fixed record kinds.
type Kind string

const (
	KindAccount     Kind = "account"
	KindContact     Kind = "contact"
	KindOpportunity Kind = "opportunity"
	KindLead        Kind = "lead"
	KindCase        Kind = "case"
)

// FieldDef declares the type of a schema field.
type FieldDef struct {
	// Type is the required value type for the field.
	Type Type

	// LinksTo is the kind a TypeID field must reference.
	// Empty for non-reference fields.
	LinksTo Kind
}

// Schema declares the allowed fields for a record kind.
type Schema struct {
	// Kind is the record kind this schema describes.
	Kind Kind

	// NaturalKey is the name of the field used for existence lookups.
	// Always a TypeString field, distinct from the system identifier.
	NaturalKey string

	// Fields maps allowed field names to their definitions.
	Fields map[string]FieldDef
}

// Link names a reference field on a record kind.
type Link struct {
	// Kind is the kind carrying the reference field.
	Kind Kind

	// Field is the name of the TypeID field.
	Field string
}

var schemas = map[Kind]*Schema{}

func register(s *Schema) {
	schemas[s.Kind] = s
}

func init() {
	register(&Schema{
		Kind:       KindAccount,
		NaturalKey: "name",
		Fields: map[string]FieldDef{
			"name":           {Type: TypeString},
			"industry":       {Type: TypeString},
			"website":        {Type: TypeString},
			"phone":          {Type: TypeString},
			"employees":      {Type: TypeNumber},
			"annual_revenue": {Type: TypeNumber},
		},
	})
	register(&Schema{
		Kind:       KindContact,
		NaturalKey: "email",
		Fields: map[string]FieldDef{
			"email":      {Type: TypeString},
			"first_name": {Type: TypeString},
			"last_name":  {Type: TypeString},
			"title":      {Type: TypeString},
			"phone":      {Type: TypeString},
			"account_id": {Type: TypeID, LinksTo: KindAccount},
		},
	})
	register(&Schema{
		Kind:       KindOpportunity,
		NaturalKey: "name",
		Fields: map[string]FieldDef{
			"name":       {Type: TypeString},
			"stage":      {Type: TypeString},
			"amount":     {Type: TypeNumber},
			"close_date": {Type: TypeDate},
			"account_id": {Type: TypeID, LinksTo: KindAccount},
		},
	})
	register(&Schema{
		Kind:       KindLead,
		NaturalKey: "email",
		Fields: map[string]FieldDef{
			"email":      {Type: TypeString},
			"first_name": {Type: TypeString},
			"last_name":  {Type: TypeString},
			"company":    {Type: TypeString},
			"status":     {Type: TypeString},
		},
	})
	register(&Schema{
		Kind:       KindCase,
		NaturalKey: "subject",
		Fields: map[string]FieldDef{
			"subject":    {Type: TypeString},
			"status":     {Type: TypeString},
			"priority":   {Type: TypeString},
			"opened_at":  {Type: TypeDate},
			"account_id": {Type: TypeID, LinksTo: KindAccount},
			"contact_id": {Type: TypeID, LinksTo: KindContact},
		},
	})
}

// SchemaOf returns the schema for a kind, or false for unknown kinds.
func SchemaOf(kind Kind) (*Schema, bool) {
	s, ok := schemas[kind]
	return s, ok
}

// LinksTo returns every reference field across all schemas that points
// at the given kind.
func LinksTo(target Kind) []Link {
	var links []Link
	for _, kind := range Kinds() {
		s := schemas[kind]
		for name, def := range s.Fields {
			if def.Type == TypeID && def.LinksTo == target {
				links = append(links, Link{Kind: kind, Field: name})
			}
		}
	}
	return links
}

// Kinds returns all registered kinds in a stable order.
func Kinds() []Kind {
	return []Kind{KindAccount, KindContact, KindOpportunity, KindLead, KindCase}
}

// Validate checks a field set against the schema.
func (s *Schema) Validate(fields Fields) error {
	for name, value := range fields {
		def, ok := s.Fields[name]
		if !ok {
			return fmt.Errorf("%w: unknown field %q for kind %s", ErrValidation, name, s.Kind)
		}
		if value.Type() != def.Type {
			return fmt.Errorf("%w: field %q of kind %s wants type %d, got %d",
				ErrValidation, name, s.Kind, def.Type, value.Type())
		}
	}
	return nil
}
