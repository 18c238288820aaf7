// Package harness runs YAML queue scenarios and records their traces.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: fifo_order
//	description: "Items come out in insertion order"
//	variant: fifo          # fifo, lifo or unique
//	auto_commit: true      # default true
//	serializer: json       # optional codec name
//	steps:
//	  - op: put
//	    value: x
//	    expect: { id: 1, size: 1 }
//	  - op: get
//	    block: true
//	    timeout: 100ms
//	    expect: { value: x }
//	  - op: get
//	    expect: { empty: true }
//
// # Operations
//
//   - put: store value; expect.rejected matches a Unique duplicate
//   - get: dispatch the head (or id); supports block and timeout
//   - peek: read the head without dispatching it
//   - done: finalize dispatched items; expect.removed counts deleted rows
//   - remove: delete the item with id
//   - size: record the current size
//   - reopen: close and reopen the queue on the same file
//
// # Deterministic Testing
//
// Every run uses a fresh database file in a temporary directory and a
// testutil.DeterministicClock for record timestamps, so identical scenarios
// produce byte-identical traces. RunWithGolden compares the canonical JSON
// trace against testdata/golden/{name}.golden.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/fifo_order.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
