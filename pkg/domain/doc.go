/*
Package domain contains the core domain models of the blobrelay transfer engine.

It defines the orchestration state machine and the values that flow through it.
The package is kept free of I/O and persistence, following Hexagonal Architecture
principles; adapters live under pkg/adapters.

# Key Entities

  - TransferRequest: the immutable input (object id + correlation id).
  - Instance: the durable orchestration record (phase, attempt, step history, output).
  - StepResult / StepRecord: the tagged Success|Failure outcome of a step.
  - StepError / ErrorKind: the failure taxonomy that drives retry decisions.
  - LifecycleHooks: callbacks for logging and metrics.
*/
package domain
