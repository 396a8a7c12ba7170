// Package harness runs YAML scenarios of client submissions against a
// server over in-memory storage and checks the resulting project file.
//
// # Scenario Format
//
//	name: rename_task
//	description: "What this scenario validates"
//	project_file: ../testdata/plan.gan   # or inline: project: |
//	snapshot_every: 2
//	steps:
//	  - user: alice
//	    base: 0
//	    records:
//	      - operations:
//	          - type: update
//	            table: task
//	            binaryConditions: [{column: uid, pred: EQ, value: qwerty}]
//	            newValues: {name: "Task2"}
//	    expect:
//	      committed: true
//	      new_base: 1
//	assertions:
//	  - type: task
//	    uid: qwerty
//	    expect: {name: "Task2"}
//	  - type: task_absent
//	    uid: gone
//	  - type: dependency
//	    dependee: qwerty
//	    dependant: asdfg
//	  - type: log_count
//	    count: 1
//
// Records use the wire JSON shape and are validated against the wire
// schema, so column values must be quoted strings.
//
// # Assertion Types
//
//   - task: the task exists and its listed fields have the given values
//   - task_absent: no task has the uid
//   - dependency: the dependency exists, optionally with field values
//   - contains: the project file contains text
//   - log_count: the server log holds exactly count records
//
// # Determinism
//
// Steps without a tracking code get one from testutil.TrackingCodes, so a
// scenario always submits the same transactions and the final project file
// can be compared with a golden file.
package harness
