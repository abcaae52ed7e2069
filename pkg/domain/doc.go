/*
Package domain contains the core models of the stagecraft orchestration engine.

It defines the addressing model (Name, ConfigPath), the executable unit (Action and its
ActionResult), the three-level result hierarchy built on Container, and the task lifecycle
records shared by the task layer and its adapters. The package is kept free of I/O.

# Key Entities

  - Name: a (value, identifier) pair. Iterated stages keep their value and get a qualified identifier.
  - ConfigPath: addresses a stage ([stages, s]) or a stage-item ([stages, s, stage-items, i]).
  - Action: an operation name (possibly negated) with arguments resolved at construction.
  - Container: a keyed, closable aggregate with a success predicate.
  - Task: one submitted run request and the lifecycle of each of its agents.
*/
package domain
