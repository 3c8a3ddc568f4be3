package testutil

import "github.com/roach88/eavq/internal/schema"

// StatusType is the enum used by the Employee fixture.
var StatusType = schema.EnumOf("Status", "Active", "OnLeave", "Retired")

// SkillType is an element of Employee.Skills.
var SkillType = schema.ObjectOf("Skill",
	schema.F("Name", schema.String),
	schema.F("Level", schema.Int),
)

// AddressType nests a second business class to exercise depth limits.
var AddressType = schema.ObjectOf("Address",
	schema.F("City", schema.String),
	schema.F("Zip", schema.String),
	schema.F("Geo", schema.ObjectOf("Geo",
		schema.F("Lat", schema.Float),
		schema.F("Lon", schema.Float),
	)),
)

// Employee returns a property-bag kind covering every declared kind.
//
// Name deliberately shadows the envelope's Name so tests can tell the
// base-field and property-bag scopes apart.
func Employee() *schema.EntityKind {
	return &schema.EntityKind{
		Name: "Employees",
		Fields: []schema.Field{
			schema.F("Name", schema.String),
			schema.F("Age", schema.Int),
			schema.F("Salary", schema.Decimal),
			schema.F("Rating", schema.Float),
			schema.F("Active", schema.Bool),
			schema.F("HiredAt", schema.DateTime),
			schema.F("Badge", schema.Guid),
			schema.F("Department", schema.String),
			schema.F("Status", StatusType),
			schema.F("Manager", schema.RefTo("Employees")),
			schema.F("Tags", schema.ArrayOf(schema.String)),
			schema.F("Skills", schema.ArrayOf(SkillType)),
			schema.F("Projects", schema.ArrayOf(schema.RefTo("Projects"))),
			schema.F("Scores", schema.DictOf(schema.String, schema.Int)),
			schema.F("Grants", schema.DictOf(schema.Guid, schema.Bool)),
			schema.F("Address", AddressType),
		},
	}
}

// EmployeeCUE is the CUE source equivalent of Employee.
const EmployeeCUE = `
entity: Employees: {
	Name:       string
	Age:        int
	Salary:     string @eav(decimal)
	Rating:     float
	Active:     bool
	HiredAt:    string @eav(datetime)
	Badge:      string @eav(guid)
	Department: string
	Status:     ("Active" | "OnLeave" | "Retired") @eav(enum=Status)
	Manager:    int @eav(ref=Employees)
	Tags: [...string]
	Skills: [...{
		Name:  string
		Level: int
	}]
	Projects: [...int] @eav(ref=Projects)
	Scores: {[string]: int} @eav(dict)
	Grants: {[string]: bool} @eav(dict,key=guid)
	Address: {
		City: string
		Zip:  string
		Geo: {
			Lat: float
			Lon: float
		}
	}
}
`
