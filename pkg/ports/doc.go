/*
Package ports defines the driven ports (interfaces) of the stagecraft engine.

These interfaces decouple the orchestrator and the task layer from concrete collaborators:
where agent configurations come from, how targets are found, how humans confirm, where
task records and run archives are kept, and where lifecycle events go.

# Key Interfaces

  - ConfigSource: reads raw agent configuration documents.
  - TargetSelector / Navigator: locate the target a stage-item acts on.
  - Dispatcher: executes one action against its target.
  - TaskStore: the task registry (task id -> lifecycle record).
  - DistributedLocker: coordinates task updates across replicas.
  - RunArchive: persists the outcome of one agent run.
*/
package ports
