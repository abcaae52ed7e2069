/*
Package variables resolves variable references embedded in configuration text.

A reference is written $name, ${name} or ${scope.a.b[idx]}. The scope prefix selects one of
three namespaces:

  - results: the historical result hierarchy of the current run. The reserved segment "me"
    expands to the current [agent, stage, stage-item].
  - context: the live, mutable store of the current run.
  - self (no prefix): the agent's own configuration, resolved once at load time. Structural
    keys ("stages", "stage-items") may be skipped so paths stay short.

When the referenced value is a list, the optional index selects an element. Without an
index the last element is used; negative indexes count from the end. Results references
resolve to the payload of an action result, never to a container.

Resolved text is spliced in literally and never re-expanded.
*/
package variables
