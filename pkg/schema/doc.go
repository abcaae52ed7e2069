// Package schema generates JSON Schemas from Go types and validates documents against them.
//
// Schemas are reflected with invopop/jsonschema and compiled with santhosh-tekuri/jsonschema.
// Validation failures are reported as an AggregateError of ValidationError values, one per
// leaf cause, each carrying the instance location.
//
//	data, _ := schema.Generate(&config.Agent{}, schema.Info{ID: "agent.json"})
//	if err := schema.Validate(data, doc); err != nil {
//	    for _, e := range schema.ValidationErrors(err) {
//	        fmt.Println(e)
//	    }
//	}
package schema
