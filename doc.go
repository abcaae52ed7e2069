/*
Package stagecraft runs declarative, staged automation agents.

An agent is a YAML, JSON or TOML document listing stages. Each stage holds
stage-items, and each stage-item holds actions: short signatures such as
`equals ${name} admin` or `confirm "Deploy now?"` dispatched to handler modules.
The engine walks the stages, evaluates expected outcomes, and reacts to the
onstart, onerror and onsuccess events with directives (continue, fail, retry,
run other stages or run an action). Every action result lands in a keyed
result container that later stages can read through ${...} variables.

Tasks group agents. A task runs its agents in order on a bounded worker pool,
keeps its record in a TaskStore (memory, file or Redis) and can be stopped at
the next stage boundary.

# Usage

	app, err := stagecraft.New("./agents")
	if err != nil {
		log.Fatal(err)
	}
	defer app.Shutdown(context.Background())

	task, err := app.Run(ctx, []string{"smoke"}, map[string]any{"env": "staging"})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(task.Status)

The cmd/stagecraft binary exposes the same operations through a CLI, an HTTP
control surface and an MCP server.
*/
package stagecraft
