// Package harness provides conformance testing for entity repositories.
//
// A scenario seeds every backend with the same objects, runs the same
// repository calls against each of them, and checks both the declared
// expectations and that the backends answered identically.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	mapping: ../mappings/animal.yaml
//	backends: [memory, sqlite]
//	seed:
//	  - {id: a-1, name: Rex, age: 3}
//	steps:
//	  - op: findAll
//	    criteria: {age: {$IsGreaterThan: 2}}
//	    options: {sortBy: [{age: desc}], limit: 1}
//	    expect:
//	      ids: [a-1]
//	  - op: findAllAndUpdate
//	    criteria: {id: a-1}
//	    update: {age: {$Increment: 1}}
//	    expect: {count: 1}
//	assertions:
//	  - type: final_state
//	    where: {id: a-1}
//	    expect: [{age: 4}]
//
// Criteria, updates and options use the "$Tag" text form read by
// queryir.DecodeCriteria, queryir.DecodeUpdate and
// queryir.DecodeSearchOptions.
//
// # Expectations
//
// A step's expect clause may check:
//
//   - error: an algebra error code, or NOT_FOUND for findOneOrFail
//   - ids: the ids of the returned objects, in order
//   - count: the returned count
//   - object / objects: subset match against the returned objects
//   - null: a single-object operation returned nothing
//
// # Backends
//
//   - memory: repository.Memory
//   - sqlite: repository.Relational over an in-memory SQLite store, with
//     tables derived from the mapping
//
// Each backend gets fresh state and its own sequential id generator ("g-1",
// "g-2", ...), so created ids are identical everywhere and across runs.
// This keeps golden snapshots stable.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/find.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, msg := range result.Errors {
//	    log.Println(msg)
//	}
package harness
